package project

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"kiln/internal/dataspec"
	"kiln/internal/depsgraph"
	"kiln/internal/object"
	"kiln/internal/projpath"
	"kiln/internal/services"
	"kiln/internal/services/bridge"
)

// WorkingFile resolves a project path to its absolute working file.
func (p *Project) WorkingFile(path projpath.Path) string {
	return path.Abs(p.root)
}

// CookedFile resolves where the cooked output for path lands under the
// named backend's cooked root, applying the backend's extension remap.
func (p *Project) CookedFile(specName string, path projpath.Path) string {
	if entry, ok := dataspec.Lookup(specName); ok && entry.CookedExt != "" {
		path = path.WithExt(entry.CookedExt)
	}
	return filepath.Join(string(p.root), kilnDirName, cookedDirName, specName,
		filepath.FromSlash(string(path)))
}

// PackagedDir is the directory packages for the named backend land in.
func (p *Project) PackagedDir(specName string) string {
	return filepath.Join(string(p.root), outDirName, specName)
}

// PackageFile resolves where the package built from root lands.
func (p *Project) PackageFile(specName string, root projpath.Path) string {
	name := root.Base()
	if root.IsRoot() {
		name = filepath.Base(string(p.root))
	}
	ext := "pak"
	if entry, ok := dataspec.Lookup(specName); ok && entry.PakExt != "" {
		ext = entry.PakExt
	}
	return filepath.Join(p.PackagedDir(specName), name+"."+ext)
}

// ImageFile is where the distributable image for the named backend
// lands.
func (p *Project) ImageFile(specName string) string {
	return filepath.Join(string(p.root), outDirName, specName+".img")
}

// AddBridgePath records a cooked-object identifier in the run-scoped
// bridge cache.
func (p *Project) AddBridgePath(id uint64, path projpath.Path) {
	p.cacheMu.Lock()
	p.bridgeCache[id] = path
	p.cacheMu.Unlock()
}

// ClearBridgeCache empties the run-scoped identifier cache. Cook
// drivers call it between runs; ids stay valid across passes within
// one run.
func (p *Project) ClearBridgeCache() {
	p.cacheMu.Lock()
	p.bridgeCache = make(map[uint64]projpath.Path)
	p.cacheMu.Unlock()
}

// LookupBridgePath translates an embedded reference back to its source
// path.
func (p *Project) LookupBridgePath(id uint64) (projpath.Path, bool) {
	p.cacheMu.RLock()
	path, ok := p.bridgeCache[id]
	p.cacheMu.RUnlock()
	return path, ok
}

// BridgeSession acquires the shared authoring-tool connection, dialing
// the subprocess on first use.
func (p *Project) BridgeSession(ctx context.Context) (*bridge.Session, error) {
	p.bridgeMu.Lock()
	if p.bridgeConn == nil {
		binary := p.cfg.Bridge.Binary
		if binary == "" {
			p.bridgeMu.Unlock()
			return nil, services.Wrap(services.ErrConfiguration, "project", "bridge",
				"no authoring-tool binary configured (set bridge.binary)", nil)
		}
		dialCtx := ctx
		if timeout := p.cfg.Bridge.StartupTimeout; timeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
			defer cancel()
		}
		conn, err := bridge.Dial(dialCtx, binary,
			bridge.WithLogger(p.logger),
			bridge.WithSilence(p.cfg.Bridge.Silence))
		if err != nil {
			p.bridgeMu.Unlock()
			return nil, err
		}
		p.bridgeConn = conn
	}
	conn := p.bridgeConn
	p.bridgeMu.Unlock()

	return conn.Acquire(ctx)
}

// Materialize produces the object for a working path through the type
// registry.
func (p *Project) Materialize(path projpath.Path) object.Object {
	return object.Materialize(p, path)
}

// graphSource adapts one project/backend pair to the depsgraph
// builder. The tracked and group snapshots are taken once so a build
// sees a consistent view.
type graphSource struct {
	p       *Project
	spec    string
	tracked []TrackedPath
	groups  []projpath.Path
}

func (s *graphSource) Object(path projpath.Path) (object.Object, error) {
	abs := s.p.WorkingFile(path)
	if !fileExists(abs) {
		return nil, services.Wrap(services.ErrDependencyMissing, "project", "depsgraph",
			fmt.Sprintf("working file %s", path), nil)
	}
	return s.p.Materialize(path), nil
}

func (s *graphSource) CookedPath(path projpath.Path) string {
	return s.p.CookedFile(s.spec, path)
}

func (s *graphSource) GroupFor(path projpath.Path) (projpath.Path, bool) {
	return groupFor(s.groups, path)
}

func (s *graphSource) ListDir(dir projpath.Path) ([]projpath.Path, error) {
	var out []projpath.Path
	err := projpath.WalkFiles(s.p.root, dir, true, func(f projpath.Path) error {
		if covered(s.tracked, f) {
			out = append(out, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BuildPackageDepsgraph constructs (or returns the memoized) graph for
// the directory at root, as seen by the named backend.
func (p *Project) BuildPackageDepsgraph(ctx context.Context, specName string, root projpath.Path) (*depsgraph.Graph, error) {
	key := graphKey{spec: specName, root: root}
	p.graphMu.Lock()
	if g, ok := p.graphs[key]; ok {
		p.graphMu.Unlock()
		return g, nil
	}
	p.graphMu.Unlock()

	tracked, err := p.TrackedPaths(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := p.Groups(ctx)
	if err != nil {
		return nil, err
	}
	src := &graphSource{p: p, spec: specName, tracked: tracked, groups: groups}
	g, err := depsgraph.Build(ctx, src, root)
	if err != nil {
		return nil, err
	}

	p.graphMu.Lock()
	p.graphs[key] = g
	p.graphMu.Unlock()
	return g, nil
}

// BuildDepsgraph implements the backend host view of
// BuildPackageDepsgraph.
func (p *Project) BuildDepsgraph(ctx context.Context, specName string, root projpath.Path) (*depsgraph.Graph, error) {
	return p.BuildPackageDepsgraph(ctx, specName, root)
}

// invalidateGraphs drops memoized graphs; any state mutation that can
// change graph shape calls this.
func (p *Project) invalidateGraphs() {
	p.graphMu.Lock()
	p.graphs = make(map[graphKey]*depsgraph.Graph)
	p.graphMu.Unlock()
}
