// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package lua_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pluginlua "github.com/hotbridge/hotbridge/internal/plugin/lua"
)

func TestStateFactory_NewState_Sandbox(t *testing.T) {
	L, err := pluginlua.NewStateFactory().NewState(context.Background(), nil)
	require.NoError(t, err)
	defer L.Close()

	for _, lib := range []string{"table", "string", "math", pluginlua.HostLibName} {
		assert.NotEqual(t, "nil", L.GetGlobal(lib).Type().String(), "library %q not loaded", lib)
	}
	for _, lib := range []string{"os", "io", "debug", "package"} {
		assert.Equal(t, "nil", L.GetGlobal(lib).Type().String(), "unsafe library %q loaded", lib)
	}
	for _, fn := range []string{"dofile", "loadfile", "loadstring", "load", "require"} {
		assert.Equal(t, "nil", L.GetGlobal(fn).Type().String(), "unsafe function %q available", fn)
	}
}

func TestStateFactory_NewState_CanExecuteLua(t *testing.T) {
	L, err := pluginlua.NewStateFactory().NewState(context.Background(), nil)
	require.NoError(t, err)
	defer L.Close()

	require.NoError(t, L.DoString(`result = string.upper("hello") .. math.max(1, 2)`))
	assert.Equal(t, "HELLO2", L.GetGlobal("result").String())
}

func TestStateFactory_NewState_HostLog(t *testing.T) {
	type entry struct {
		level   int32
		message string
	}
	var got []entry

	L, err := pluginlua.NewStateFactory().NewState(context.Background(), func(level int32, message string) {
		got = append(got, entry{level, message})
	})
	require.NoError(t, err)
	defer L.Close()

	require.NoError(t, L.DoString(`hotbridge.log(1, "careful")`))
	assert.Equal(t, []entry{{1, "careful"}}, got)

	assert.Error(t, L.DoString(`hotbridge.log("loud")`))
}

func TestStateFactory_NewState_StatesAreIndependent(t *testing.T) {
	factory := pluginlua.NewStateFactory()

	L1, err := factory.NewState(context.Background(), nil)
	require.NoError(t, err)
	defer L1.Close()
	L2, err := factory.NewState(context.Background(), nil)
	require.NoError(t, err)
	defer L2.Close()

	require.NoError(t, L1.DoString(`foo = "bar"`))
	assert.Equal(t, "nil", L2.GetGlobal("foo").Type().String())
}
