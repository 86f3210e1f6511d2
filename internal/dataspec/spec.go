package dataspec

import (
	"context"
	"log/slog"

	"kiln/internal/depsgraph"
	"kiln/internal/object"
	"kiln/internal/progress"
	"kiln/internal/projpath"
	"kiln/internal/services/bridge"
	"kiln/internal/workpool"
)

// Tool is a pre-emptive indication of what a constructed spec instance
// is used for.
type Tool int

const (
	ToolExtract Tool = iota
	ToolCook
	ToolPackage
)

func (t Tool) String() string {
	switch t {
	case ToolExtract:
		return "extract"
	case ToolCook:
		return "cook"
	case ToolPackage:
		return "package"
	default:
		return "unknown"
	}
}

// Host is the view of a project that spec instances operate through.
// It exposes path resolution, the run-scoped bridge cache, and the
// shared authoring-tool connection.
type Host interface {
	// Root returns the project root anchor.
	Root() projpath.RootPath
	// WorkingFile resolves a project path to its absolute working file.
	WorkingFile(p projpath.Path) string
	// CookedFile resolves where the cooked output for p lands under
	// the named spec's cooked root.
	CookedFile(specName string, p projpath.Path) string
	// PackageFile resolves where the package built from root lands for
	// the named spec.
	PackageFile(specName string, root projpath.Path) string
	// BuildDepsgraph returns the dependency-ordered graph for the
	// directory at root. Graphs are memoized per operation, so a
	// backend asking for the graph the orchestrator already verified
	// gets the same one back.
	BuildDepsgraph(ctx context.Context, specName string, root projpath.Path) (*depsgraph.Graph, error)
	// AddBridgePath records an object identifier in the bridge cache.
	AddBridgePath(id uint64, p projpath.Path)
	// LookupBridgePath translates an embedded reference back to its
	// source path.
	LookupBridgePath(id uint64) (projpath.Path, bool)
	// BridgeSession acquires the shared authoring-tool connection,
	// dialing it on first use.
	BridgeSession(ctx context.Context) (*bridge.Session, error)
	// Interrupted reports whether cancellation has been requested,
	// either for this project or process-wide. Backends poll it
	// between objects so a signal reaches in-flight package and
	// extract loops, not just the cook loop.
	Interrupted() bool
	// Logger returns the project logger.
	Logger() *slog.Logger
}

// ExtractPassInfo describes one extract invocation: a packaged or
// image source to reverse into editable working resources.
type ExtractPassInfo struct {
	SrcPath string
	Args    []string
	Force   bool
}

// ExtractReport advises the user of the content about to be extracted.
type ExtractReport struct {
	Name     string
	Desc     string
	Children []ExtractReport
}

// Spec is the capability interface a backend implements to participate
// in the pipeline. The can* methods claim work without committing side
// effects; the do* methods perform it.
type Spec interface {
	// Entry returns the registration record this instance was built from.
	Entry() *Entry

	CanExtract(info ExtractPassInfo) (bool, []ExtractReport)
	DoExtract(ctx context.Context, info ExtractPassInfo, prog progress.Reporter) error

	// CanCook reports whether this backend claims path for the given
	// pass. A negative pass means "always cook", ignoring pass gating.
	CanCook(path projpath.Path, pass int) bool
	// OverrideDataSpec lets the backend hand a claimed path to a
	// different backend based on content inspection. Returning current
	// keeps the path.
	OverrideDataSpec(path projpath.Path, current *Entry) *Entry
	// DoCook cooks path, writing the cooked representation to the
	// absolute file cookedFile. The orchestrator stages cookedFile so
	// an interrupted or failed cook leaves no partial output.
	DoCook(ctx context.Context, path projpath.Path, cookedFile string, fast bool, prog progress.Reporter) error

	CanPackage(path projpath.Path) bool
	// DoPackage emits the final archive for the depsgraph rooted at
	// path. Nodes arrive already dependency-ordered; pool, when
	// non-nil, may be used to offload per-entry work.
	DoPackage(ctx context.Context, path projpath.Path, entry *Entry, fast bool, prog progress.Reporter, pool *workpool.Pool) error

	// InterruptCook must be safe to call concurrently with an
	// in-flight DoCook/DoPackage and cause it to return promptly.
	InterruptCook()
}

// Base provides default no-op implementations of every optional
// capability, so backends only override the phases they support.
type Base struct {
	entry *Entry
}

// NewBase binds the embedded core of a spec instance to its entry.
func NewBase(entry *Entry) Base { return Base{entry: entry} }

func (b Base) Entry() *Entry { return b.entry }

func (b Base) CanExtract(ExtractPassInfo) (bool, []ExtractReport) { return false, nil }

func (b Base) DoExtract(context.Context, ExtractPassInfo, progress.Reporter) error { return nil }

func (b Base) CanCook(projpath.Path, int) bool { return false }

func (b Base) OverrideDataSpec(_ projpath.Path, current *Entry) *Entry { return current }

func (b Base) DoCook(context.Context, projpath.Path, string, bool, progress.Reporter) error {
	return nil
}

func (b Base) CanPackage(projpath.Path) bool { return false }

func (b Base) DoPackage(context.Context, projpath.Path, *Entry, bool, progress.Reporter, *workpool.Pool) error {
	return nil
}

func (b Base) InterruptCook() {}

// Target carries the cook target parameters a project resolves from
// tool config and hands to spec factories.
type Target struct {
	Platform   object.Platform
	Endianness object.Endianness
}
