package project

import (
	"context"
	"fmt"
	"os"
	"strings"

	"kiln/internal/logging"
	"kiln/internal/projpath"
	"kiln/internal/services"
)

// dirFingerprint marks a tracked directory, which has no content
// digest of its own.
const dirFingerprint = "-"

// TrackedPath is one registration: a working file or directory plus
// the content digest recorded when it was added.
type TrackedPath struct {
	Path        projpath.Path
	Fingerprint string
	IsDir       bool
}

func formatTracked(t TrackedPath) string {
	return string(t.Path) + "\t" + t.Fingerprint
}

func parseTracked(line string) (TrackedPath, bool) {
	path, fp, ok := strings.Cut(line, "\t")
	if !ok || path == "" {
		return TrackedPath{}, false
	}
	return TrackedPath{Path: projpath.Path(path), Fingerprint: fp, IsDir: fp == dirFingerprint}, true
}

// AddPaths registers working paths for cooking. Files record their
// current content digest; directories register as a unit covering
// everything beneath them. Re-adding a path refreshes its digest.
func (p *Project) AddPaths(ctx context.Context, paths ...projpath.Path) error {
	tx, err := p.pathsStore.LockAndRead(ctx)
	if err != nil {
		return err
	}

	for _, path := range paths {
		abs := path.Abs(p.root)
		info, err := os.Stat(abs)
		if err != nil {
			tx.Discard()
			return services.Wrap(services.ErrNotFound, "project", "add",
				fmt.Sprintf("working path %s", path), err)
		}

		entry := TrackedPath{Path: path, Fingerprint: dirFingerprint}
		if !info.IsDir() {
			fp, err := p.fps.File(abs)
			if err != nil {
				tx.Discard()
				return err
			}
			entry.Fingerprint = fp
		}

		// One line per path: a re-add replaces the stale digest.
		for _, line := range tx.Lines() {
			if existing, ok := parseTracked(line); ok && existing.Path == path {
				tx.RemoveLine(line)
			}
		}
		tx.AddLine(formatTracked(entry))
		p.logger.Debug("tracking path",
			logging.String("path", string(path)),
			logging.Bool("dir", info.IsDir()))
	}
	p.invalidateGraphs()
	return tx.Commit()
}

// RemovePaths unregisters paths and deletes their cooked outputs.
// With recursive set, registrations beneath a removed directory go
// too. Working files are never touched.
func (p *Project) RemovePaths(ctx context.Context, recursive bool, paths ...projpath.Path) error {
	tx, err := p.pathsStore.LockAndRead(ctx)
	if err != nil {
		return err
	}

	var removed []projpath.Path
	for _, line := range tx.Lines() {
		entry, ok := parseTracked(line)
		if !ok {
			continue
		}
		for _, path := range paths {
			if entry.Path == path || (recursive && path.IsAncestorOf(entry.Path)) {
				tx.RemoveLine(line)
				removed = append(removed, entry.Path)
				break
			}
		}
	}
	p.invalidateGraphs()
	if err := tx.Commit(); err != nil {
		return err
	}

	for _, path := range removed {
		if err := p.CleanPath(ctx, path, ""); err != nil {
			return err
		}
	}
	return nil
}

// TrackedPaths returns the current registrations in store order.
func (p *Project) TrackedPaths(ctx context.Context) ([]TrackedPath, error) {
	lines, err := p.pathsStore.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	tracked := make([]TrackedPath, 0, len(lines))
	for _, line := range lines {
		if entry, ok := parseTracked(line); ok {
			tracked = append(tracked, entry)
		}
	}
	return tracked, nil
}

// covered reports whether path falls under any registration: either
// registered itself or beneath a tracked directory.
func covered(tracked []TrackedPath, path projpath.Path) bool {
	for _, t := range tracked {
		if t.Path == path {
			return true
		}
		if t.IsDir && (t.Path.IsAncestorOf(path) || t.Path.IsRoot()) {
			return true
		}
	}
	return false
}

// AddGroup marks a tracked directory as a packaging group. Groups may
// not nest, so an ancestor or descendant of an existing group is
// rejected.
func (p *Project) AddGroup(ctx context.Context, dir projpath.Path) error {
	abs := dir.Abs(p.root)
	info, err := os.Stat(abs)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "project", "group add",
			fmt.Sprintf("directory %s", dir), err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrConfiguration, "project", "group add",
			fmt.Sprintf("%s is not a directory", dir), nil)
	}

	tx, err := p.groupsStore.LockAndRead(ctx)
	if err != nil {
		return err
	}

	for _, line := range tx.Lines() {
		existing := projpath.Path(line)
		if existing == dir {
			tx.Discard()
			return nil
		}
		if existing.IsAncestorOf(dir) || dir.IsAncestorOf(existing) {
			tx.Discard()
			return services.Wrap(services.ErrGroupConflict, "project", "group add",
				fmt.Sprintf("%s overlaps existing group %s", dir, existing), nil)
		}
	}
	tx.AddLine(string(dir))
	p.invalidateGraphs()
	return tx.Commit()
}

// RemoveGroup clears a group marking. Removing an unmarked directory
// is a no-op.
func (p *Project) RemoveGroup(ctx context.Context, dir projpath.Path) error {
	tx, err := p.groupsStore.LockAndRead(ctx)
	if err != nil {
		return err
	}
	tx.RemoveLine(string(dir))
	p.invalidateGraphs()
	return tx.Commit()
}

// Groups returns the marked group directories in store order.
func (p *Project) Groups(ctx context.Context) ([]projpath.Path, error) {
	lines, err := p.groupsStore.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	groups := make([]projpath.Path, 0, len(lines))
	for _, line := range lines {
		groups = append(groups, projpath.Path(line))
	}
	return groups, nil
}

func groupFor(groups []projpath.Path, path projpath.Path) (projpath.Path, bool) {
	for _, g := range groups {
		if g == path || g.IsAncestorOf(path) {
			return g, true
		}
	}
	return projpath.Root, false
}
