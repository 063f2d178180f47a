// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package config_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotbridge/hotbridge/internal/config"
)

func TestGenerateSchema(t *testing.T) {
	data, err := config.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.Equal(t, config.SchemaID, schema["$id"])
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{
		"managed-root", "install-path", "plugin-segment", "managed-dir", "framework-module",
		"module-patterns", "checksum", "warn-after", "give-up-after", "log-format",
		"metrics-addr", "debounce",
	} {
		assert.Contains(t, props, key)
	}
	assert.Nil(t, schema["required"], "every key is optional")
}

func TestValidateSchema(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"empty document", "", false},
		{"full document", `
managed-root: /srv/Managed
module-patterns: ["*.wasm", "*.lua"]
checksum: 3
warn-after: 5000
give-up-after: 10000
log-format: json
metrics-addr: 127.0.0.1:9100
debounce: 500ms
`, false},
		{"unknown key", "colour: blue\n", true},
		{"log format outside enum", "log-format: xml\n", true},
		{"warn after below minimum", "warn-after: 0\n", true},
		{"patterns not a list", "module-patterns: '*.lua'\n", true},
		{"debounce as number", "debounce: 5\n", true},
		{"malformed yaml", "checksum: [\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := config.ValidateSchema([]byte(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
