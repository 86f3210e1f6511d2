// Package testsupport provides shared fixtures for package tests:
// tool configs seeded with per-test temp directories, scratch project
// trees, and registry cleanup helpers.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"kiln/internal/config"
	"kiln/internal/dataspec"
	"kiln/internal/object"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per
// test. It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")
	cfg.Cook.Platform = "generic"
	cfg.Cook.Endianness = "little"
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "debug"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithWorkers sets the cook worker count on the test config.
func WithWorkers(n int) ConfigOption {
	return func(cfg *config.Config) { cfg.Cook.Workers = n }
}

// WithFailFast enables fail-fast cooking on the test config.
func WithFailFast() ConfigOption {
	return func(cfg *config.Config) { cfg.Cook.FailFast = true }
}

// WithBridgeBinary points the bridge at a stub binary.
func WithBridgeBinary(path string) ConfigOption {
	return func(cfg *config.Config) { cfg.Bridge.Binary = path }
}

// WriteTree creates working files under dir from relative slash paths.
func WriteTree(t testing.TB, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		dest := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(dest), err)
		}
		if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", dest, err)
		}
	}
}

// ResetRegistries clears the process-wide dataspec and object-type
// registries and restores them when the test finishes.
func ResetRegistries(t testing.TB) {
	t.Helper()
	dataspec.Reset()
	object.ResetTypes()
	t.Cleanup(func() {
		dataspec.Reset()
		object.ResetTypes()
	})
}
