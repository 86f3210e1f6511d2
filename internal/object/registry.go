package object

import (
	"os"
	"sort"
	"sync"

	"kiln/internal/projpath"
)

// Env gives object constructors access to the project without an
// import cycle: resolving working files and materializing further
// objects (for dependency enumeration).
type Env interface {
	WorkingFile(p projpath.Path) string
	Materialize(p projpath.Path) Object
}

// Ctor builds an object for a working path.
type Ctor func(env Env, p projpath.Path) Object

type registry struct {
	mu    sync.RWMutex
	ctors map[string]Ctor
}

var types = &registry{ctors: make(map[string]Ctor)}

// RegisterType installs a constructor for files with the given
// extension (including the leading dot). Later registrations for the
// same extension replace earlier ones; backends register their types
// once at process start.
func RegisterType(ext string, ctor Ctor) {
	types.mu.Lock()
	defer types.mu.Unlock()
	types.ctors[ext] = ctor
}

// Materialize produces the object for p: the registered constructor
// for its extension, or a generic leaf object tagged from the
// extension when no type claims it.
func Materialize(env Env, p projpath.Path) Object {
	types.mu.RLock()
	ctor := types.ctors[p.Ext()]
	types.mu.RUnlock()

	if ctor != nil {
		return ctor(env, p)
	}
	return &leafObject{Base: NewBase(p, TypeForExt(p.Ext())), env: env}
}

// leafObject is the fallback for unclaimed extensions: a dependency-
// free file whose cooked form is its bytes, pushed through the sink.
type leafObject struct {
	Base
	env Env
}

func (o *leafObject) CookObject(sink DataSink, _ Endianness, _ Platform) bool {
	data, err := os.ReadFile(o.env.WorkingFile(o.Path()))
	if err != nil {
		return false
	}
	return sink(data) == nil
}

// RegisteredExts lists extensions with installed constructors, sorted.
func RegisteredExts() []string {
	types.mu.RLock()
	defer types.mu.RUnlock()
	exts := make([]string, 0, len(types.ctors))
	for ext := range types.ctors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// ResetTypes clears the type registry. Tests install a fresh registry
// per case.
func ResetTypes() {
	types.mu.Lock()
	defer types.mu.Unlock()
	types.ctors = make(map[string]Ctor)
}
