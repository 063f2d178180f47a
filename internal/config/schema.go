// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package config

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the configuration schema.
const SchemaID = "https://hotbridge.dev/schemas/config.schema.json"

var compiled = sync.OnceValues(compileSchema)

// GenerateSchema generates a JSON Schema from the Config struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&Config{})

	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "hotbridge configuration"
	schema.Description = "Schema for hotbridge config.yaml files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATION_FAILED").Wrap(err)
	}
	return data, nil
}

// ValidateSchema validates YAML configuration data against the schema. An
// empty document is valid.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("CONFIG_YAML_INVALID").Hint("invalid YAML").Wrap(err)
	}
	if doc == nil {
		return nil
	}

	sch, err := compiled()
	if err != nil {
		return err
	}

	if err := sch.Validate(toJSONTypes(doc)); err != nil {
		return oops.Code("CONFIG_SCHEMA_INVALID").Wrapf(err, "schema validation failed")
	}
	return nil
}

func compileSchema() (*jschema.Schema, error) {
	schemaBytes, err := GenerateSchema()
	if err != nil {
		return nil, err
	}

	var schemaData any
	if err := json.Unmarshal(schemaBytes, &schemaData); err != nil {
		return nil, oops.Code("SCHEMA_GENERATION_FAILED").Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("config.schema.json", schemaData); err != nil {
		return nil, oops.Code("SCHEMA_GENERATION_FAILED").Wrap(err)
	}
	sch, err := c.Compile("config.schema.json")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATION_FAILED").Wrap(err)
	}
	return sch, nil
}

// toJSONTypes converts YAML-decoded values to the types the validator expects.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = toJSONTypes(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = toJSONTypes(v)
		}
		return out
	case string, int, int64, float64, bool, nil:
		return val
	default:
		// Round-trip anything else through JSON.
		if b, err := json.Marshal(val); err == nil {
			var out any
			if err := json.Unmarshal(b, &out); err == nil {
				return out
			}
		}
		return val
	}
}
