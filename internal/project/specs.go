package project

import (
	"context"
	"fmt"

	"kiln/internal/dataspec"
	"kiln/internal/logging"
	"kiln/internal/object"
	"kiln/internal/services"
)

// EnableDataSpecs turns backends on for this project. The whole call
// fails without touching the store when any name is not a registered
// backend.
func (p *Project) EnableDataSpecs(ctx context.Context, names ...string) error {
	for _, name := range names {
		if _, ok := dataspec.Lookup(name); !ok {
			return services.Wrap(services.ErrUnknownSpec, "project", "spec enable", name, nil)
		}
	}

	tx, err := p.specsStore.LockAndRead(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		tx.AddLine(name)
	}
	return tx.Commit()
}

// DisableDataSpecs turns backends off. Like enabling, unknown names
// fail the whole call.
func (p *Project) DisableDataSpecs(ctx context.Context, names ...string) error {
	for _, name := range names {
		if _, ok := dataspec.Lookup(name); !ok {
			return services.Wrap(services.ErrUnknownSpec, "project", "spec disable", name, nil)
		}
	}

	tx, err := p.specsStore.LockAndRead(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		tx.RemoveLine(name)
	}
	return tx.Commit()
}

// RescanDataSpecs reconciles the enabled-spec store against the
// process registry, dropping entries whose backend no longer exists.
func (p *Project) RescanDataSpecs(ctx context.Context) error {
	tx, err := p.specsStore.LockAndRead(ctx)
	if err != nil {
		return err
	}
	for _, line := range tx.Lines() {
		if _, ok := dataspec.Lookup(line); !ok {
			p.logger.Warn("dropping enabled spec with no registered backend",
				logging.String("spec", line))
			tx.RemoveLine(line)
		}
	}
	return tx.Commit()
}

// EnabledSpecs returns the enabled backend entries in store order,
// skipping names with no registered backend.
func (p *Project) EnabledSpecs(ctx context.Context) ([]*dataspec.Entry, error) {
	lines, err := p.specsStore.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]*dataspec.Entry, 0, len(lines))
	for _, line := range lines {
		if entry, ok := dataspec.Lookup(line); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// MaxCookPasses returns the pass count the cook driver must iterate:
// the largest NumCookPasses over the given entries.
func MaxCookPasses(entries []*dataspec.Entry) int {
	max := 1
	for _, e := range entries {
		if e.NumCookPasses > max {
			max = e.NumCookPasses
		}
	}
	return max
}

func (p *Project) target() (dataspec.Target, error) {
	platform, err := object.ParsePlatform(p.cfg.Cook.Platform)
	if err != nil {
		return dataspec.Target{}, services.Wrap(services.ErrConfiguration, "project", "target", "", err)
	}
	endian, err := object.ParseEndianness(p.cfg.Cook.Endianness)
	if err != nil {
		return dataspec.Target{}, services.Wrap(services.ErrConfiguration, "project", "target", "", err)
	}
	return dataspec.Target{Platform: platform, Endianness: endian}, nil
}

// specFor compiles (or returns the memoized) backend instance for one
// registered entry and tool mode.
func (p *Project) specFor(entry *dataspec.Entry, tool dataspec.Tool) (dataspec.Spec, error) {
	key := specKey{name: entry.Name, tool: tool}

	p.specMu.Lock()
	defer p.specMu.Unlock()
	if spec, ok := p.compiled[key]; ok {
		return spec, nil
	}

	target, err := p.target()
	if err != nil {
		return nil, err
	}
	spec, err := entry.Factory(p, tool, target)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "project", "compile spec",
			fmt.Sprintf("backend %s", entry.Name), err)
	}
	p.compiled[key] = spec
	return spec, nil
}
