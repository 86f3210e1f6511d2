package dataspec

import (
	"fmt"
	"strings"
	"sync"
)

// Entry is the static registration record for one backend. Entries are
// registered once per backend at process start, before any project is
// constructed, and never mutated afterwards.
type Entry struct {
	// Name is the unique display name used in the enabled-spec store.
	Name string
	// Desc is a one-line description for spec listings.
	Desc string
	// PakExt is the package-file extension (without dot).
	PakExt string
	// CookedExt, when non-empty, replaces the working extension on
	// cooked outputs (including the leading dot).
	CookedExt string
	// NumCookPasses is how many times CookPath must be driven to
	// resolve forward references. At least one.
	NumCookPasses int
	// Factory produces an instance bound to a project host, a tool
	// mode, and the cook target.
	Factory func(host Host, tool Tool, target Target) (Spec, error)
}

type registry struct {
	mu      sync.RWMutex
	entries []*Entry
	byName  map[string]*Entry
}

var global = &registry{byName: make(map[string]*Entry)}

// Register appends an entry to the process-wide registry. Registration
// order is the deterministic precedence used when several enabled
// backends claim the same path.
func Register(entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("dataspec: nil entry")
	}
	name := strings.TrimSpace(entry.Name)
	if name == "" {
		return fmt.Errorf("dataspec: entry name required")
	}
	if entry.NumCookPasses < 1 {
		return fmt.Errorf("dataspec %q: cook passes must be at least 1", name)
	}
	if entry.Factory == nil {
		return fmt.Errorf("dataspec %q: factory required", name)
	}

	global.mu.Lock()
	defer global.mu.Unlock()
	if _, exists := global.byName[name]; exists {
		return fmt.Errorf("dataspec %q: already registered", name)
	}
	global.byName[name] = entry
	global.entries = append(global.entries, entry)
	return nil
}

// MustRegister panics on registration failure; used from backend init
// paths where a duplicate is a programming error.
func MustRegister(entry *Entry) {
	if err := Register(entry); err != nil {
		panic(err)
	}
}

// Entries returns the registered entries in registration order.
func Entries() []*Entry {
	global.mu.RLock()
	defer global.mu.RUnlock()
	cp := make([]*Entry, len(global.entries))
	copy(cp, global.entries)
	return cp
}

// Lookup finds an entry by display name.
func Lookup(name string) (*Entry, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	entry, ok := global.byName[strings.TrimSpace(name)]
	return entry, ok
}

// Reset clears the registry so tests can install a fresh one per case.
func Reset() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.entries = nil
	global.byName = make(map[string]*Entry)
}
