// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package plugin

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Candidate is a module image found during discovery, paired with the host
// that inspected it.
type Candidate struct {
	Metadata *Metadata
	Host     Host
}

// Discoverer finds module images below a managed root.
type Discoverer struct {
	root     string
	patterns []glob.Glob
	hosts    map[string]Host
}

// NewDiscoverer creates a discoverer for root. Files are matched by base name
// against patterns and inspected by the host registered for their extension.
func NewDiscoverer(root string, patterns []string, hosts ...Host) (*Discoverer, error) {
	d := &Discoverer{
		root:  root,
		hosts: make(map[string]Host),
	}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, oops.Code("PATTERN_INVALID").With("pattern", p).Wrap(err)
		}
		d.patterns = append(d.patterns, g)
	}
	for _, h := range hosts {
		for _, ext := range h.Extensions() {
			d.hosts[strings.ToLower(ext)] = h
		}
	}
	return d, nil
}

// Root returns the managed root being scanned.
func (d *Discoverer) Root() string {
	return d.root
}

// Modules yields every valid module image in scan order: each immediate
// subdirectory of the root (walked recursively), then the root itself.
// Files that are not valid module images are skipped; each path is yielded
// at most once. Iteration stops at the first error.
func (d *Discoverer) Modules(ctx context.Context) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		folders, err := d.folders()
		if err != nil {
			yield(Candidate{}, err)
			return
		}

		seen := make(map[string]struct{})
		errStop := errors.New("stop")

		for _, folder := range folders {
			err := filepath.WalkDir(folder, func(path string, entry fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if entry.IsDir() || !d.matches(entry.Name()) {
					return nil
				}
				if _, ok := seen[path]; ok {
					return nil
				}
				seen[path] = struct{}{}

				if err := ctx.Err(); err != nil {
					return err
				}

				candidate, ok, err := d.inspect(ctx, path)
				if err != nil {
					return err
				}
				if ok && !yield(candidate, nil) {
					return errStop
				}
				return nil
			})
			if errors.Is(err, errStop) {
				return
			}
			if err != nil {
				yield(Candidate{}, oops.Code("DISCOVERY_FAILED").With("folder", folder).Wrap(err))
				return
			}
		}
	}
}

// FrameworkPath locates the framework module for a plugin: next to the plugin
// first, then directly in the managed root. The framework file shares the
// plugin's extension and is named after the framework module.
func (d *Discoverer) FrameworkPath(meta *Metadata, framework string) (string, error) {
	file := framework + filepath.Ext(meta.Path)
	for _, dir := range []string{filepath.Dir(meta.Path), d.root} {
		path := filepath.Join(dir, file)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", oops.Code("FRAMEWORK_NOT_FOUND").
		With("plugin", meta.Path).
		With("framework", framework).
		Errorf("framework module %q not found for %s", framework, meta.Path)
}

func (d *Discoverer) folders() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, oops.Code("MANAGED_ROOT_UNREADABLE").With("root", d.root).Wrap(err)
	}

	folders := make([]string, 0, len(entries)+1)
	for _, entry := range entries {
		if entry.IsDir() {
			folders = append(folders, filepath.Join(d.root, entry.Name()))
		}
	}
	return append(folders, d.root), nil
}

func (d *Discoverer) matches(name string) bool {
	for _, g := range d.patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func (d *Discoverer) inspect(ctx context.Context, path string) (Candidate, bool, error) {
	host, ok := d.hosts[strings.ToLower(filepath.Ext(path))]
	if !ok {
		slog.Debug("skipping module without host", "path", path)
		return Candidate{}, false, nil
	}

	meta, err := host.Inspect(ctx, path)
	if errors.Is(err, ErrNotModule) {
		slog.Debug("skipping invalid module image", "path", path, "error", err)
		return Candidate{}, false, nil
	}
	if err != nil {
		return Candidate{}, false, err
	}
	return Candidate{Metadata: meta, Host: host}, true, nil
}
