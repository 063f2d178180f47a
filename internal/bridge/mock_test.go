// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package bridge_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/bridge"
	"github.com/hotbridge/hotbridge/internal/command"
	"github.com/hotbridge/hotbridge/internal/loadctx"
	"github.com/hotbridge/hotbridge/internal/plugin"
)

type mockHost struct {
	mock.Mock
}

func (m *mockHost) Extensions() []string {
	return []string{".mod"}
}

func (m *mockHost) Inspect(ctx context.Context, path string) (*plugin.Metadata, error) {
	args := m.Called(ctx, path)
	meta, _ := args.Get(0).(*plugin.Metadata)
	return meta, args.Error(1)
}

func (m *mockHost) Load(ctx context.Context, lctx *loadctx.Context, req plugin.LoadRequest) (plugin.Loaded, error) {
	args := m.Called(ctx, lctx, req)
	loaded, _ := args.Get(0).(plugin.Loaded)
	return loaded, args.Error(1)
}

type mockLoaded struct {
	mock.Mock
}

func (m *mockLoaded) Checksum() int32 {
	return int32(m.Called().Int(0)) //nolint:gosec // test checksum
}

func (m *mockLoaded) Bootstrap(ctx context.Context, shared plugin.Shared) (map[string]plugin.Function, error) {
	args := m.Called(ctx, shared)
	fns, _ := args.Get(0).(map[string]plugin.Function)
	return fns, args.Error(1)
}

func (m *mockLoaded) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// mockTree creates Framework.mod and Game/Game.mod and expects both to be inspected.
func mockTree(t *testing.T, host *mockHost) (root, game string) {
	t.Helper()
	root = t.TempDir()
	framework := filepath.Join(root, "Framework.mod")
	game = filepath.Join(root, "Game", "Game.mod")
	require.NoError(t, os.MkdirAll(filepath.Dir(game), 0o750))
	require.NoError(t, os.WriteFile(framework, nil, 0o600))
	require.NoError(t, os.WriteFile(game, nil, 0o600))

	host.On("Inspect", mock.Anything, framework).
		Return(&plugin.Metadata{Name: "Framework", Path: framework}, nil).Maybe()
	host.On("Inspect", mock.Anything, game).
		Return(&plugin.Metadata{Name: "Game", Path: game, Dependencies: []string{"Framework"}}, nil)
	return root, game
}

func TestLoadAssemblies_BootstrapFailureClosesModule(t *testing.T) {
	host := &mockHost{}
	root, game := mockTree(t, host)

	loaded := &mockLoaded{}
	loaded.On("Checksum").Return(checksum)
	loaded.On("Bootstrap", mock.Anything, mock.Anything).Return(nil, errors.New("framework exploded"))
	loaded.On("Close", mock.Anything).Return(nil).Once()

	host.On("Load", mock.Anything, mock.Anything, mock.MatchedBy(func(req plugin.LoadRequest) bool {
		return req.Plugin.Path == game && req.Framework == "Framework"
	})).Return(loaded, nil).Once()

	rec := &recordingTable{}
	b := bridge.New(bridge.Config{ManagedRoot: root, ModulePatterns: []string{"*.mod"}}, bridge.WithHosts(host))
	ctx := context.Background()
	require.Equal(t, abi.Initialized, b.Dispatch(ctx, command.Initialize{Host: rec.table(), Checksum: checksum}))

	assert.Equal(t, abi.Null, b.Dispatch(ctx, command.LoadAssemblies{}))

	require.Len(t, rec.Exceptions(), 1)
	assert.Contains(t, rec.Exceptions()[0], bridge.LoadFailed)
	assert.Contains(t, rec.Exceptions()[0], "framework exploded")
	assert.Nil(t, b.Plugin())
	assert.Equal(t, bridge.Initialized, b.State())

	host.AssertExpectations(t)
	loaded.AssertExpectations(t)
}

func TestLoadAssemblies_InspectErrorIsReported(t *testing.T) {
	host := &mockHost{}
	root := t.TempDir()
	path := filepath.Join(root, "Broken.mod")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	host.On("Inspect", mock.Anything, path).Return(nil, errors.New("permission denied")).Once()

	rec := &recordingTable{}
	b := bridge.New(bridge.Config{ManagedRoot: root, ModulePatterns: []string{"*.mod"}}, bridge.WithHosts(host))
	ctx := context.Background()
	b.Dispatch(ctx, command.Initialize{Host: rec.table(), Checksum: checksum})

	b.Dispatch(ctx, command.LoadAssemblies{})

	require.Len(t, rec.Exceptions(), 1)
	assert.Contains(t, rec.Exceptions()[0], "permission denied")
	host.AssertNotCalled(t, "Load", mock.Anything, mock.Anything, mock.Anything)
	host.AssertExpectations(t)
}
