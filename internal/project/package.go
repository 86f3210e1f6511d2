package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"kiln/internal/cooklog"
	"kiln/internal/dataspec"
	"kiln/internal/depsgraph"
	"kiln/internal/logging"
	"kiln/internal/progress"
	"kiln/internal/projpath"
	"kiln/internal/services"
	"kiln/internal/workpool"
)

// PackageOptions tunes one PackagePath invocation.
type PackageOptions struct {
	// Fast forwards the draft-quality request to backends.
	Fast bool
	// Spec restricts packaging to one enabled backend.
	Spec string
	// Pool, when non-nil, lets backends offload per-entry work.
	Pool *workpool.Pool
}

// PackagePath builds the dependency graph for the directory at path,
// verifies every object in it has a cooked output, and hands the graph
// to each claiming backend exactly once to emit its package.
func (p *Project) PackagePath(ctx context.Context, path projpath.Path, prog progress.Reporter, opts PackageOptions) error {
	if prog == nil {
		prog = progress.Nop()
	}
	if p.Interrupted() {
		return services.Wrap(services.ErrInterrupted, "project", "package", string(path), nil)
	}

	entries, err := p.cookEntries(ctx, opts.Spec)
	if err != nil {
		return err
	}

	claimed := 0
	for _, entry := range entries {
		inst, err := p.specFor(entry, dataspec.ToolPackage)
		if err != nil {
			return err
		}
		if !inst.CanPackage(path) {
			continue
		}
		claimed++

		if err := p.packageWith(ctx, path, entry, inst, prog, opts); err != nil {
			return err
		}
	}
	if claimed == 0 {
		return services.Wrap(services.ErrConfiguration, "project", "package",
			fmt.Sprintf("no enabled dataspec can package %s", path), nil)
	}
	return nil
}

func (p *Project) packageWith(ctx context.Context, path projpath.Path, entry *dataspec.Entry, inst dataspec.Spec, prog progress.Reporter, opts PackageOptions) error {
	ctx = services.WithOperation(services.WithSpec(ctx, entry.Name), "package")
	log := logging.WithContext(ctx, p.logger)

	graph, err := p.BuildPackageDepsgraph(ctx, entry.Name, path)
	if err != nil {
		return err
	}
	if err := verifyCooked(graph); err != nil {
		return err
	}

	runID, err := p.journal.BeginRun(ctx, "package", entry.Name)
	if err != nil {
		return err
	}
	ctx = services.WithRunID(ctx, runID)

	out := p.PackageFile(entry.Name, path)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("ensure package dir: %w", err)
	}

	log.Info("packaging",
		logging.String("path", string(path)),
		logging.Int("objects", len(graph.DataNodes())),
		logging.String("out", out))

	err = inst.DoPackage(ctx, path, entry, opts.Fast, prog, opts.Pool)
	outcome := cooklog.RunSucceeded
	if err != nil {
		if services.IsInterrupted(err) {
			outcome = cooklog.RunInterrupted
		} else {
			outcome = cooklog.RunFailed
		}
	}
	// Signal-driven interruption cancels the command context; close
	// the run out regardless.
	if jerr := p.journal.FinishRun(context.WithoutCancel(ctx), runID, outcome, cooklog.Totals{}, messageFor(err)); jerr != nil {
		log.Warn("journal finish failed", logging.Error(jerr))
	}
	if err != nil {
		return err
	}
	log.Info("package written", logging.String("out", out))
	return nil
}

// verifyCooked checks that every data node in the graph has its cooked
// output on disk, naming the first gap so the user knows what to cook.
func verifyCooked(graph *depsgraph.Graph) error {
	for _, n := range graph.DataNodes() {
		if !fileExists(n.CookedPath) {
			return services.Wrap(services.ErrDependencyMissing, "project", "package",
				fmt.Sprintf("%s has no cooked output (run 'kiln cook' first)", n.Path), nil)
		}
	}
	return nil
}

// CleanPath removes cooked outputs for path and everything beneath it,
// for one backend or, with an empty spec, for all registered backends,
// and forgets the matching journal records so the next cook rebuilds.
func (p *Project) CleanPath(ctx context.Context, path projpath.Path, spec string) error {
	var names []string
	if spec != "" {
		if _, ok := dataspec.Lookup(spec); !ok {
			return services.Wrap(services.ErrUnknownSpec, "project", "clean", spec, nil)
		}
		names = []string{spec}
	} else {
		for _, entry := range dataspec.Entries() {
			names = append(names, entry.Name)
		}
	}

	for _, name := range names {
		// Two candidate locations: the extension-remapped cooked file
		// and the literal mirror path (which is the one that matters
		// when path names a directory).
		targets := []string{
			p.CookedFile(name, path),
			filepath.Join(string(p.root), kilnDirName, cookedDirName, name,
				filepath.FromSlash(string(path))),
		}
		for _, target := range targets {
			if err := os.RemoveAll(target); err != nil {
				return fmt.Errorf("remove cooked output: %w", err)
			}
		}
	}
	if err := p.journal.ForgetUnder(ctx, spec, string(path)); err != nil {
		return err
	}
	p.fps.Forget(p.WorkingFile(path))
	p.invalidateGraphs()
	p.logger.Info("cleaned cooked output",
		logging.String("path", string(path)),
		logging.String("spec", spec))
	return nil
}

// Extract reverses a packaged or image source into editable working
// resources through the first registered backend that recognizes it.
// Backends are consulted in registration order, enabled or not, since
// extraction typically precedes enabling anything.
func (p *Project) Extract(ctx context.Context, info dataspec.ExtractPassInfo, prog progress.Reporter) ([]dataspec.ExtractReport, error) {
	if prog == nil {
		prog = progress.Nop()
	}
	ctx = services.WithOperation(ctx, "extract")
	log := logging.WithContext(ctx, p.logger)

	for _, entry := range dataspec.Entries() {
		inst, err := p.specFor(entry, dataspec.ToolExtract)
		if err != nil {
			return nil, err
		}
		ok, reports := inst.CanExtract(info)
		if !ok {
			continue
		}
		log.Info("extracting",
			logging.String("source", info.SrcPath),
			logging.String("spec", entry.Name))
		if err := inst.DoExtract(services.WithSpec(ctx, entry.Name), info, prog); err != nil {
			return nil, err
		}
		return reports, nil
	}
	return nil, services.Wrap(services.ErrNotFound, "project", "extract",
		fmt.Sprintf("no registered dataspec recognizes %q", info.SrcPath), nil)
}
