// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package reclaim_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotbridge/hotbridge/internal/loadctx"
	"github.com/hotbridge/hotbridge/internal/native"
	"github.com/hotbridge/hotbridge/internal/reclaim"
	"github.com/hotbridge/hotbridge/pkg/errutil"
)

type logEntry struct {
	level   native.Level
	message string
}

type hostLog struct {
	entries []logEntry
}

func (l *hostLog) Log(level native.Level, message string) {
	l.entries = append(l.entries, logEntry{level, message})
}

func noop() {}

func TestLoop_AlreadyReleasedContextConvergesWithoutAttempts(t *testing.T) {
	c, h := loadctx.NewManager().Provision()
	c.RequestUnload()

	var log hostLog
	before := testutil.ToFloat64(reclaim.Unloads.WithLabelValues(reclaim.OutcomeConverged))

	result, err := reclaim.New(reclaim.WithCollector(noop)).Wait(context.Background(), h, log.Log)
	require.NoError(t, err)
	assert.True(t, result.Converged())
	assert.Equal(t, 0, result.Attempts)
	assert.Empty(t, log.entries)
	assert.Equal(t, before+1, testutil.ToFloat64(reclaim.Unloads.WithLabelValues(reclaim.OutcomeConverged)))
}

func TestLoop_ConvergesOnceLeaseIsReleased(t *testing.T) {
	c, h := loadctx.NewManager().Provision()
	lease, err := c.Acquire()
	require.NoError(t, err)
	c.RequestUnload()

	calls := 0
	collect := func() {
		calls++
		if calls == 3 {
			lease.Release()
		}
	}

	var log hostLog
	result, err := reclaim.New(reclaim.WithCollector(collect)).Wait(context.Background(), h, log.Log)
	require.NoError(t, err)
	assert.True(t, result.Converged())
	assert.Equal(t, 3, result.Attempts)
	assert.Empty(t, log.entries)
}

func TestLoop_NonConvergenceWarnsThenGivesUp(t *testing.T) {
	c, h := loadctx.NewManager().Provision()
	lease, err := c.Acquire()
	require.NoError(t, err)
	defer lease.Release()
	c.RequestUnload()

	var log hostLog
	result, err := reclaim.New(reclaim.WithCollector(noop)).Wait(context.Background(), h, log.Log)
	require.NoError(t, err)

	assert.Equal(t, reclaim.OutcomeAbandoned, result.Outcome)
	assert.Equal(t, reclaim.DefaultGiveUpAfter, result.Attempts)
	assert.Equal(t, []logEntry{
		{native.Warning, reclaim.WarnMessage},
		{native.Error, reclaim.GiveUpMessage},
	}, log.entries)
	assert.True(t, h.Alive(), "abandoned context stays resident")
}

func TestLoop_CustomThresholds(t *testing.T) {
	c, h := loadctx.NewManager().Provision()
	lease, err := c.Acquire()
	require.NoError(t, err)
	defer lease.Release()
	c.RequestUnload()

	attempts := 0
	var log hostLog
	loop := reclaim.New(
		reclaim.WithWarnAfter(2),
		reclaim.WithGiveUpAfter(4),
		reclaim.WithCollector(func() { attempts++ }),
	)

	result, err := loop.Wait(context.Background(), h, log.Log)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Attempts)
	assert.Equal(t, 4, attempts)
	require.Len(t, log.entries, 2)
	assert.Equal(t, native.Warning, log.entries[0].level)
	assert.Equal(t, native.Error, log.entries[1].level)
}

func TestLoop_WarnsBeforeGivingUpAtSameAttempt(t *testing.T) {
	c, h := loadctx.NewManager().Provision()
	lease, err := c.Acquire()
	require.NoError(t, err)
	defer lease.Release()
	c.RequestUnload()

	var log hostLog
	loop := reclaim.New(
		reclaim.WithWarnAfter(3),
		reclaim.WithGiveUpAfter(3),
		reclaim.WithCollector(noop),
	)

	result, err := loop.Wait(context.Background(), h, log.Log)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, []logEntry{
		{native.Warning, reclaim.WarnMessage},
		{native.Error, reclaim.GiveUpMessage},
	}, log.entries)
}

func TestLoop_CancelledContextStopsEarly(t *testing.T) {
	c, h := loadctx.NewManager().Provision()
	lease, err := c.Acquire()
	require.NoError(t, err)
	defer lease.Release()
	c.RequestUnload()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var log hostLog
	result, err := reclaim.New(reclaim.WithCollector(noop)).Wait(ctx, h, log.Log)
	errutil.AssertErrorCode(t, err, "UNLOAD_CANCELLED")
	assert.Equal(t, reclaim.OutcomeCancelled, result.Outcome)
	assert.Empty(t, log.entries)
}

func TestLoop_DefaultCollectorReclaimsDroppedLease(t *testing.T) {
	c, h := loadctx.NewManager().Provision()
	dropLease(t, c)
	c.RequestUnload()

	var log hostLog
	result, err := reclaim.New().Wait(context.Background(), h, log.Log)
	require.NoError(t, err)
	assert.True(t, result.Converged())
	assert.Empty(t, log.entries)
}

//go:noinline
func dropLease(t *testing.T, c *loadctx.Context) {
	_, err := c.Acquire()
	require.NoError(t, err)
}
