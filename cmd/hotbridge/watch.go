// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hotbridge/hotbridge/internal/bridge"
	"github.com/hotbridge/hotbridge/internal/watch"
)

// NewWatchCmd creates the watch subcommand.
func NewWatchCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Load a plugin and reload it whenever module files change",
		Long: `Initialize the bridge and load a plugin, then watch the managed root and
reload whenever module files change. Runs until interrupted, then unloads.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatchWithDeps(cmd.Context(), cmd, deps)
		},
	}
}

// runWatchWithDeps executes the watch command with injectable dependencies.
func runWatchWithDeps(ctx context.Context, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := deps.SignalContext(ctx)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := openSession(ctx, cmd, deps)
	if err != nil {
		return err
	}
	// Unload with a fresh context; ctx is already done at shutdown.
	defer s.Close(context.WithoutCancel(ctx))

	// A missing plugin is not fatal here: the next build may provide one.
	if err := s.load(ctx); err != nil {
		slog.WarnContext(ctx, "waiting for a plugin", "error", err)
	}

	root, err := s.cfg.Bridge().Root()
	if err != nil {
		return oops.Code("WATCH_FAILED").Wrap(err)
	}
	reloader, err := watch.New(root, s.bridge,
		watch.WithDebounce(s.cfg.Debounce),
		watch.WithPatterns(s.cfg.ModulePatterns...),
	)
	if err != nil {
		return err
	}

	if s.cfg.MetricsAddr != "" {
		srv := deps.ObservabilityServerFactory(s.cfg.MetricsAddr, s.bridge.Ready,
			bridge.RegisterMetrics,
			watch.RegisterMetrics,
		)
		errCh, err := srv.Start()
		if err != nil {
			_ = reloader.Close()
			return oops.Code("OBSERVABILITY_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, errCh, "observability")
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				slog.Warn("error stopping observability server", "error", err)
			}
		}()
		slog.InfoContext(ctx, "observability server started", "addr", srv.Addr())
	}

	cmd.Printf("watching %s\n", root)
	if err := reloader.Run(ctx); err != nil {
		return err
	}
	slog.Info("shutting down")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
