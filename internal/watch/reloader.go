// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package watch reloads plugins when module files under the managed root change.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/command"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 250 * time.Millisecond

// Dispatcher executes bridge commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Command) abi.Address
}

// Reloader issues LoadAssemblies after module files change. Bursts of events
// (a build writing several files) collapse into one reload once the tree has
// been quiet for the debounce period.
type Reloader struct {
	root     string
	target   Dispatcher
	debounce time.Duration
	patterns []glob.Glob
	watcher  *fsnotify.Watcher
}

// Option configures a Reloader.
type Option func(*Reloader) error

// WithDebounce sets the quiet period before a reload. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(r *Reloader) error {
		if d > 0 {
			r.debounce = d
		}
		return nil
	}
}

// WithPatterns limits reloads to files whose base name matches one of patterns.
// Without patterns every file counts.
func WithPatterns(patterns ...string) Option {
	return func(r *Reloader) error {
		for _, p := range patterns {
			g, err := glob.Compile(p)
			if err != nil {
				return oops.Code("PATTERN_INVALID").With("pattern", p).Wrap(err)
			}
			r.patterns = append(r.patterns, g)
		}
		return nil
	}
}

// New watches root and every directory below it. Call Run to process events,
// or Close to release the watcher without running.
func New(root string, target Dispatcher, opts ...Option) (*Reloader, error) {
	r := &Reloader{
		root:     root,
		target:   target,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, oops.Code("WATCH_FAILED").Wrap(err)
	}
	r.watcher = watcher

	if err := r.addTree(root); err != nil {
		_ = watcher.Close()
		return nil, oops.Code("WATCH_FAILED").With("root", root).Wrap(err)
	}
	return r, nil
}

// Close stops watching.
func (r *Reloader) Close() error {
	return r.watcher.Close()
}

// Run processes file events until ctx is done, then closes the watcher.
func (r *Reloader) Run(ctx context.Context) error {
	defer func() {
		_ = r.watcher.Close()
	}()

	slog.InfoContext(ctx, "hot reload enabled", "root", r.root, "debounce", r.debounce)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if !r.relevant(ctx, event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			r.reload(ctx)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "watcher error", "root", r.root, "error", err)
		}
	}
}

func (r *Reloader) reload(ctx context.Context) {
	slog.InfoContext(ctx, "module files changed, reloading", "root", r.root)
	Reloads.Inc()
	r.target.Dispatch(ctx, command.LoadAssemblies{})
}

// relevant reports whether event should schedule a reload. New directories are
// added to the watch set.
func (r *Reloader) relevant(ctx context.Context, event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := r.addTree(event.Name); err != nil {
				slog.WarnContext(ctx, "cannot watch new directory", "path", event.Name, "error", err)
			}
			return false
		}
	}

	return r.matches(filepath.Base(event.Name))
}

func (r *Reloader) matches(name string) bool {
	if len(r.patterns) == 0 {
		return true
	}
	for _, g := range r.patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func (r *Reloader) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return r.watcher.Add(path)
	})
}
