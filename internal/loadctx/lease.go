// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package loadctx

import (
	"runtime"
	"sync/atomic"
)

// Lease is a borrowed handle into a context.
type Lease struct {
	state   *leaseState
	cleanup runtime.Cleanup
}

// leaseState must not reference its Lease so the Lease can become unreachable.
type leaseState struct {
	ctx  *Context
	done atomic.Bool
}

func (s *leaseState) release() {
	if s.done.CompareAndSwap(false, true) {
		s.ctx.releaseLease()
	}
}

func newLease(c *Context) *Lease {
	state := &leaseState{ctx: c}
	l := &Lease{state: state}
	l.cleanup = runtime.AddCleanup(l, func(s *leaseState) { s.release() }, state)
	return l
}

// Release returns the lease to its context. Calling Release more than once is a no-op.
func (l *Lease) Release() {
	l.cleanup.Stop()
	l.state.release()
}
