package project

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"kiln/internal/config"
	"kiln/internal/configstore"
	"kiln/internal/cooklog"
	"kiln/internal/dataspec"
	"kiln/internal/depsgraph"
	"kiln/internal/fingerprint"
	"kiln/internal/logging"
	"kiln/internal/projpath"
	"kiln/internal/services"
	"kiln/internal/services/bridge"
)

const (
	kilnDirName = ".kiln"
	beaconName  = "version"
	// beaconVersion is bumped when the .kiln layout changes shape.
	beaconVersion = "1"

	specsStoreName  = "specs"
	pathsStoreName  = "paths"
	groupsStoreName = "groups"
	journalName     = "cooklog.db"
	cookedDirName   = "cooked"
	outDirName      = "out"
)

// PassAlways requests a cook regardless of pass gating and of the
// incremental skip check.
const PassAlways = -1

// processInterrupt is the process-wide cancellation flag, set from the
// signal handler. Every open project observes it.
var processInterrupt atomic.Bool

// InterruptCook requests that all in-flight cook and package
// operations in this process stop at the next object boundary.
func InterruptCook() { processInterrupt.Store(true) }

// ResetInterrupt clears the process-wide flag. Tests use it between
// cases.
func ResetInterrupt() { processInterrupt.Store(false) }

type specKey struct {
	name string
	tool dataspec.Tool
}

type graphKey struct {
	spec string
	root projpath.Path
}

// Project is one open asset project rooted at a working directory
// carrying a .kiln metadata dir.
type Project struct {
	root   projpath.RootPath
	cfg    *config.Config
	logger *slog.Logger

	specsStore  *configstore.Store
	pathsStore  *configstore.Store
	groupsStore *configstore.Store
	journal     *cooklog.Store
	fps         *fingerprint.Cache

	specMu   sync.Mutex
	compiled map[specKey]dataspec.Spec

	graphMu sync.Mutex
	graphs  map[graphKey]*depsgraph.Graph

	cacheMu     sync.RWMutex
	bridgeCache map[uint64]projpath.Path

	bridgeMu   sync.Mutex
	bridgeConn *bridge.Conn

	interrupted atomic.Bool
}

func newProject(root projpath.RootPath, cfg *config.Config, logger *slog.Logger) (*Project, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	cacheSize := cfg.Cook.FingerprintCacheSize
	fps, err := fingerprint.NewCache(cacheSize)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "project", "open", "fingerprint cache", err)
	}

	kiln := filepath.Join(string(root), kilnDirName)
	p := &Project{
		root:        root,
		cfg:         cfg,
		logger:      logger,
		specsStore:  configstore.New(filepath.Join(kiln, specsStoreName), logger),
		pathsStore:  configstore.New(filepath.Join(kiln, pathsStoreName), logger),
		groupsStore: configstore.New(filepath.Join(kiln, groupsStoreName), logger),
		fps:         fps,
		compiled:    make(map[specKey]dataspec.Spec),
		graphs:      make(map[graphKey]*depsgraph.Graph),
		bridgeCache: make(map[uint64]projpath.Path),
	}

	journal, err := cooklog.Open(filepath.Join(kiln, journalName))
	if err != nil {
		return nil, err
	}
	p.journal = journal
	return p, nil
}

// Init creates a fresh project at dir: the .kiln metadata directory,
// the version beacon, and empty state stores. Initializing an existing
// project is an error.
func Init(dir string, cfg *config.Config, logger *slog.Logger) (*Project, error) {
	root, err := projpath.NewRoot(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "project", "init", dir, err)
	}

	kiln := filepath.Join(string(root), kilnDirName)
	if _, err := os.Stat(filepath.Join(kiln, beaconName)); err == nil {
		return nil, services.Wrap(services.ErrConfiguration, "project", "init",
			fmt.Sprintf("%s is already a kiln project", dir), nil)
	}
	if err := os.MkdirAll(kiln, 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(kiln, beaconName), []byte(beaconVersion+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write version beacon: %w", err)
	}

	p, err := newProject(root, cfg, logger)
	if err != nil {
		return nil, err
	}
	for _, store := range []*configstore.Store{p.specsStore, p.pathsStore, p.groupsStore} {
		if err := store.Ensure(); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	p.logger.Info("initialized project", logging.String("root", string(root)))
	return p, nil
}

// Open opens the project rooted at dir, which must carry a compatible
// .kiln metadata directory.
func Open(dir string, cfg *config.Config, logger *slog.Logger) (*Project, error) {
	root, err := projpath.NewRoot(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "project", "open", dir, err)
	}

	beacon := filepath.Join(string(root), kilnDirName, beaconName)
	data, err := os.ReadFile(beacon)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "project", "open",
				fmt.Sprintf("%s is not a kiln project (run 'kiln init')", dir), nil)
		}
		return nil, fmt.Errorf("read version beacon: %w", err)
	}
	if got := strings.TrimSpace(string(data)); got != beaconVersion {
		return nil, services.Wrap(services.ErrConfiguration, "project", "open",
			fmt.Sprintf("project version %q, this tool expects %q", got, beaconVersion), nil)
	}

	return newProject(root, cfg, logger)
}

// Search walks upward from start looking for a project root. The
// second return is false when no ancestor carries one.
func Search(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, kilnDirName, beaconName)); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Root returns the project root anchor.
func (p *Project) Root() projpath.RootPath { return p.root }

// Config returns the tool configuration the project was opened with.
func (p *Project) Config() *config.Config { return p.cfg }

// Logger returns the project logger.
func (p *Project) Logger() *slog.Logger { return p.logger }

// Journal exposes the cook journal for status reporting.
func (p *Project) Journal() *cooklog.Store { return p.journal }

// Interrupt requests that this project's in-flight operations stop at
// the next object boundary, and forwards the request to every compiled
// backend so a blocking external cook aborts too.
func (p *Project) Interrupt() {
	p.interrupted.Store(true)
	p.specMu.Lock()
	defer p.specMu.Unlock()
	for _, spec := range p.compiled {
		spec.InterruptCook()
	}
}

// Interrupted reports whether cancellation is pending, from either
// this project's Interrupt or the process-wide flag. Compiled backends
// poll it through the host contract between objects.
func (p *Project) Interrupted() bool {
	return p.interrupted.Load() || processInterrupt.Load()
}

// Close releases the journal and shuts down the authoring-tool bridge
// when one was dialed.
func (p *Project) Close() error {
	var firstErr error
	p.bridgeMu.Lock()
	if p.bridgeConn != nil {
		if err := p.bridgeConn.Shutdown(); err != nil {
			firstErr = err
		}
		p.bridgeConn = nil
	}
	p.bridgeMu.Unlock()

	if err := p.journal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
