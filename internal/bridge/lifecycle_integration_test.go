// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

//go:build integration

package bridge_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/bridge"
	"github.com/hotbridge/hotbridge/internal/command"
	"github.com/hotbridge/hotbridge/internal/native"
	pluginlua "github.com/hotbridge/hotbridge/internal/plugin/lua"
	"github.com/hotbridge/hotbridge/internal/plugin/wasm"
	"github.com/hotbridge/hotbridge/internal/plugin/wasm/wasmtest"
)

// findManagedRoot locates the example plugins shipped with the repository.
func findManagedRoot() string {
	cwd, err := os.Getwd()
	Expect(err).NotTo(HaveOccurred())

	for _, candidate := range []string{"../../plugins/Managed", "../plugins/Managed", "./plugins/Managed"} {
		path, err := filepath.Abs(filepath.Join(cwd, candidate))
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	Fail("plugins/Managed not found from " + cwd)
	return ""
}

var _ = Describe("Lua plugin lifecycle", func() {
	var (
		ctx  context.Context
		rec  *recordingTable
		b    *bridge.Bridge
		root string
	)

	BeforeEach(func() {
		ctx = context.Background()
		rec = &recordingTable{}
		root = findManagedRoot()
		b = bridge.New(bridge.Config{ManagedRoot: root}, bridge.WithHosts(pluginlua.NewHost()))
		Expect(b.Dispatch(ctx, command.Initialize{Host: rec.table(), Checksum: 1})).To(Equal(abi.Initialized))
	})

	It("loads the greeter, runs it and unloads it", func() {
		b.Dispatch(ctx, command.LoadAssemblies{})
		Expect(rec.Exceptions()).To(BeEmpty())
		Expect(rec.Logs()).To(ConsistOf(hostLogEntry{
			native.Display,
			"framework loaded successfully for " + filepath.Join(root, "Greeter", "Greeter.lua"),
		}))

		greet := b.Dispatch(ctx, command.Find{Name: "Greet"})
		Expect(greet).NotTo(Equal(abi.Null))

		rec.Reset()
		b.Dispatch(ctx, command.Execute{Function: greet, Argument: abi.ArgumentFromWords(5, 0, 0)})
		b.Dispatch(ctx, command.Execute{Function: greet, Argument: abi.ArgumentFromWords(6, 0, 0)})
		Expect(rec.Logs()).To(Equal([]hostLogEntry{
			{native.Display, "hello #1 with 5"},
			{native.Display, "hello #2 with 6"},
		}))

		fail := b.Dispatch(ctx, command.Find{Name: "Fail"})
		b.Dispatch(ctx, command.Execute{Function: fail})
		Expect(rec.Exceptions()).To(HaveLen(1))
		Expect(rec.Exceptions()[0]).To(ContainSubstring("greeter failed on purpose"))

		p := b.Plugin()
		b.Dispatch(ctx, command.UnloadAssemblies{})
		Expect(p.Context.Released()).To(BeTrue())
		Expect(b.Plugin()).To(BeNil())
	})

	It("starts fresh state after a reload", func() {
		b.Dispatch(ctx, command.LoadAssemblies{})
		greet := b.Dispatch(ctx, command.Find{Name: "Greet"})
		b.Dispatch(ctx, command.Execute{Function: greet})

		b.Dispatch(ctx, command.LoadAssemblies{})
		rec.Reset()
		greet = b.Dispatch(ctx, command.Find{Name: "Greet"})
		b.Dispatch(ctx, command.Execute{Function: greet})

		Expect(rec.Logs()).To(Equal([]hostLogEntry{{native.Display, "hello #1 with 0"}}))
	})

	It("refuses an incompatible framework", func() {
		b = bridge.New(bridge.Config{ManagedRoot: root}, bridge.WithHosts(pluginlua.NewHost()))
		rec = &recordingTable{}
		b.Dispatch(ctx, command.Initialize{Host: rec.table(), Checksum: 2})

		b.Dispatch(ctx, command.LoadAssemblies{})
		Expect(rec.Logs()).To(HaveLen(1))
		Expect(rec.Logs()[0].Level).To(Equal(native.Fatal))
		Expect(b.Plugin()).To(BeNil())
	})
})

var _ = Describe("WebAssembly plugin lifecycle", func() {
	var (
		ctx  context.Context
		rec  *recordingTable
		b    *bridge.Bridge
		host *wasm.Host
	)

	write := func(path string, m wasmtest.Module) {
		Expect(os.MkdirAll(filepath.Dir(path), 0o750)).To(Succeed())
		Expect(os.WriteFile(path, m.Bytes(), 0o600)).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		root := GinkgoT().TempDir()

		write(filepath.Join(root, "Framework.wasm"), wasmtest.Module{
			Name:      "Framework",
			Functions: []wasmtest.Func{{Export: "marker"}},
			Globals:   []wasmtest.Global{{Export: "checksum", Type: wasmtest.I32, Value: 3}},
		})
		write(filepath.Join(root, "Game", "Game.wasm"), wasmtest.Module{
			Name:    "Game",
			Imports: []wasmtest.Import{{Module: "Framework", Name: "marker"}},
			Functions: []wasmtest.Func{
				{Export: "Tick", Params: []wasmtest.ValType{wasmtest.I64}, Body: wasmtest.TrapOnZero()},
			},
		})
		Expect(os.WriteFile(filepath.Join(root, "Game", "readme.wasm"), []byte("not wasm"), 0o600)).To(Succeed())

		host = wasm.NewHost(wasm.WithInterpreter())
		DeferCleanup(func() { _ = host.Close(ctx) })

		rec = &recordingTable{}
		b = bridge.New(bridge.Config{ManagedRoot: root}, bridge.WithHosts(host))
		Expect(b.Dispatch(ctx, command.Initialize{Host: rec.table(), Checksum: 3})).To(Equal(abi.Initialized))
	})

	It("executes exports and reports traps", func() {
		b.Dispatch(ctx, command.LoadAssemblies{})
		Expect(rec.Exceptions()).To(BeEmpty())

		tick := b.Dispatch(ctx, command.Find{Name: "Tick"})
		Expect(tick).NotTo(Equal(abi.Null))

		b.Dispatch(ctx, command.Execute{Function: tick, Argument: abi.ArgumentFromWords(1, 0, 0)})
		Expect(rec.Exceptions()).To(BeEmpty())

		b.Dispatch(ctx, command.Execute{Function: tick})
		Expect(rec.Exceptions()).To(HaveLen(1))
		Expect(rec.Exceptions()[0]).To(ContainSubstring("unreachable"))

		p := b.Plugin()
		b.Dispatch(ctx, command.UnloadAssemblies{})
		Expect(p.Context.Released()).To(BeTrue())
	})
})
