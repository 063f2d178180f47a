// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

//go:build integration

package plugin_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/loadctx"
	"github.com/hotbridge/hotbridge/internal/plugin"
	pluginlua "github.com/hotbridge/hotbridge/internal/plugin/lua"
)

// findPluginsDir locates the shipped plugins directory from the test's
// working directory.
func findPluginsDir() string {
	cwd, err := os.Getwd()
	Expect(err).NotTo(HaveOccurred())

	candidates := []string{
		"../../plugins",
		"../../../plugins",
		"./plugins",
	}
	for _, candidate := range candidates {
		path, err := filepath.Abs(filepath.Join(cwd, candidate))
		if err != nil {
			continue
		}
		if info, err := os.Stat(filepath.Join(path, "Managed")); err == nil && info.IsDir() {
			return path
		}
	}

	Fail("plugins directory not found from " + cwd)
	return ""
}

var _ = Describe("Shipped Lua plugins", func() {
	var (
		ctx  context.Context
		root string
		host *pluginlua.Host
	)

	BeforeEach(func() {
		ctx = context.Background()
		root = filepath.Join(findPluginsDir(), "Managed")
		host = pluginlua.NewHost()
	})

	It("discovers the greeter as a framework dependent", func() {
		d, err := plugin.NewDiscoverer(root, []string{"*.lua"}, host)
		Expect(err).NotTo(HaveOccurred())

		var names []string
		for candidate, err := range d.Modules(ctx) {
			Expect(err).NotTo(HaveOccurred())
			names = append(names, candidate.Metadata.Name)
			if candidate.Metadata.Name == "Greeter" {
				Expect(candidate.Metadata.DependsOn("Framework")).To(BeTrue())
			}
		}
		Expect(names).To(Equal([]string{"Greeter", "Framework"}))
	})

	It("loads, binds and releases the greeter", func() {
		d, err := plugin.NewDiscoverer(root, []string{"*.lua"}, host)
		Expect(err).NotTo(HaveOccurred())

		greeterPath := filepath.Join(root, "Greeter", "Greeter.lua")
		meta, err := host.Inspect(ctx, greeterPath)
		Expect(err).NotTo(HaveOccurred())
		frameworkPath, err := d.FrameworkPath(meta, "Framework")
		Expect(err).NotTo(HaveOccurred())
		Expect(frameworkPath).To(Equal(filepath.Join(root, "Framework.lua")))

		var messages []string
		lctx, handle := loadctx.NewManager().Provision()
		loaded, err := host.Load(ctx, lctx, plugin.LoadRequest{
			Plugin:        meta,
			Framework:     "Framework",
			FrameworkPath: frameworkPath,
			Log:           func(_ int32, message string) { messages = append(messages, message) },
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Checksum()).To(Equal(int32(1)))

		fns, err := loaded.Bootstrap(ctx, plugin.Shared{Events: 1, Functions: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(fns).To(HaveKey("Greet"))
		Expect(fns).To(HaveKey("OnBeginPlay"))

		Expect(fns["Greet"].Call(ctx, abi.ArgumentFromWords(3, 0, 0))).To(Succeed())
		Expect(messages).To(Equal([]string{"hello #1 with 3"}))
		Expect(fns["Fail"].Call(ctx, abi.Argument{})).To(MatchError(ContainSubstring("greeter failed on purpose")))

		Expect(loaded.Close(ctx)).To(Succeed())
		lctx.RequestUnload()
		Expect(handle.Alive()).To(BeFalse())
	})
})
