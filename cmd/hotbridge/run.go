// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package main

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/command"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	calls []string
}

// NewRunCmd creates the run subcommand.
func NewRunCmd(deps *Deps) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load a plugin, call functions and unload it",
		Long: `Initialize the bridge, load the first plugin found under the managed
root, find and execute every --call in order, then unload the plugin.
A call is NAME or NAME:HEX where HEX encodes up to 24 argument bytes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRunWithDeps(cmd.Context(), cmd, opts, deps)
		},
	}

	cmd.Flags().StringArrayVar(&opts.calls, "call", nil, "function to execute as NAME or NAME:HEX (repeatable)")

	return cmd
}

// runRunWithDeps executes the run command with injectable dependencies.
func runRunWithDeps(ctx context.Context, cmd *cobra.Command, opts *runOptions, deps *Deps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	calls := make([]call, 0, len(opts.calls))
	for _, spec := range opts.calls {
		c, err := parseCall(spec)
		if err != nil {
			return err
		}
		calls = append(calls, c)
	}

	s, err := openSession(ctx, cmd, deps)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	if err := s.load(ctx); err != nil {
		return err
	}

	for _, c := range calls {
		fn := s.bridge.Dispatch(ctx, command.Find{Name: c.name})
		if fn == abi.Null {
			return oops.Code("FUNCTION_NOT_FOUND").With("function", c.name).Errorf("function %q not found", c.name)
		}
		slog.DebugContext(ctx, "executing", "function", c.name, "address", fn)
		s.bridge.Dispatch(ctx, command.Execute{Function: fn, Argument: c.arg})
	}

	if n := s.Faults(); n > 0 {
		return oops.Code("FAULTS_REPORTED").With("faults", n).Errorf("bridge reported %d fault(s)", n)
	}
	cmd.Printf("executed %d call(s)\n", len(calls))
	return nil
}

type call struct {
	name string
	arg  abi.Argument
}

// parseCall parses NAME or NAME:HEX.
func parseCall(spec string) (call, error) {
	name, encoded, _ := strings.Cut(spec, ":")
	if name == "" {
		return call{}, oops.Code("CALL_INVALID").With("call", spec).Errorf("call %q has no function name", spec)
	}

	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return call{}, oops.Code("CALL_INVALID").With("call", spec).Wrap(err)
	}
	arg, err := abi.ArgumentFromBytes(raw)
	if err != nil {
		return call{}, oops.Code("CALL_INVALID").With("call", spec).Wrap(err)
	}
	return call{name: name, arg: arg}, nil
}
