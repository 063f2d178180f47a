// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/oops"

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/command"
	"github.com/hotbridge/hotbridge/internal/loadctx"
	"github.com/hotbridge/hotbridge/internal/native"
)

func (b *Bridge) find(_ context.Context, c command.Find) (abi.Address, error) {
	table, err := b.initialized()
	if err != nil {
		return abi.Null, err
	}

	p := b.registry.Active()
	if p == nil {
		return abi.Null, oops.Code("PLUGIN_NOT_LOADED").
			With("function", c.Name).
			Errorf("no plugin is loaded to find managed function %q", c.Name)
	}

	addr, ok := p.Find(c.Name)
	if !ok {
		if !c.Optional {
			table.Log(native.Error, fmt.Sprintf("managed function was not found %q", c.Name))
		}
		return abi.Null, nil
	}
	return addr, nil
}

func (b *Bridge) execute(ctx context.Context, c command.Execute) error {
	table, err := b.initialized()
	if err != nil {
		return err
	}

	p, fn, err := b.registry.Resolve(c.Function)
	if err != nil {
		return err
	}

	lease, err := p.Context.Acquire()
	if errors.Is(err, loadctx.ErrUnloading) {
		return oops.Code("PLUGIN_UNLOADING").
			With("address", c.Function.String()).
			With("plugin", p.Name).
			Wrap(err)
	}
	if err != nil {
		return err
	}
	defer lease.Release()

	return table.Invoke(ctx, fn, c.Argument)
}
