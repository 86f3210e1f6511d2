package imageout_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"kiln/internal/imageout"
	"kiln/internal/progress"
	"kiln/internal/services"
)

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		dest := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBuildAndExtract(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"world.pak":       "cooked world data, repeated repeated repeated",
		"sub/common.pak":  "shared assets",
		"sub/version.txt": "1",
	})
	out := filepath.Join(t.TempDir(), "game.img")

	manifest, err := imageout.Build(context.Background(), src, out, zstd.SpeedDefault, progress.Nop())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(manifest.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(manifest.Entries))
	}
	// Entries are sorted by name so images build reproducibly.
	names := []string{manifest.Entries[0].Name, manifest.Entries[1].Name, manifest.Entries[2].Name}
	want := []string{"sub/common.pak", "sub/version.txt", "world.pak"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("entry order = %v, want %v", names, want)
		}
	}

	r, err := imageout.OpenImage(out)
	if err != nil {
		t.Fatalf("OpenImage failed: %v", err)
	}
	defer r.Close()

	var buf bytes.Buffer
	if err := r.Extract("world.pak", &buf); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if buf.String() != "cooked world data, repeated repeated repeated" {
		t.Fatalf("extracted content = %q", buf.String())
	}

	if err := r.Extract("nope.pak", &buf); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing entry error = %v, want ErrNotFound", err)
	}
}

func TestExtractAllRecreatesTree(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.pak":     "alpha",
		"sub/b.pak": "beta",
	})
	out := filepath.Join(t.TempDir(), "game.img")
	if _, err := imageout.Build(context.Background(), src, out, zstd.SpeedFastest, nil); err != nil {
		t.Fatal(err)
	}

	r, err := imageout.OpenImage(out)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	dest := t.TempDir()
	if err := r.ExtractAll(dest); err != nil {
		t.Fatalf("ExtractAll failed: %v", err)
	}
	for name, want := range map[string]string{"a.pak": "alpha", "sub/b.pak": "beta"} {
		data, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != want {
			t.Fatalf("%s = %q, want %q", name, data, want)
		}
	}
}

func TestEstimateSizeValidatesSource(t *testing.T) {
	if _, err := imageout.EstimateSize(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing dir error = %v, want ErrNotFound", err)
	}

	empty := t.TempDir()
	if _, err := imageout.EstimateSize(empty); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("empty dir error = %v, want ErrConfiguration", err)
	}

	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.pak": "alpha"})
	estimate, err := imageout.EstimateSize(src)
	if err != nil {
		t.Fatalf("EstimateSize failed: %v", err)
	}
	if estimate <= 5 {
		t.Fatalf("estimate = %d, want content plus overhead", estimate)
	}

	out := filepath.Join(t.TempDir(), "game.img")
	if _, err := imageout.Build(context.Background(), src, out, zstd.SpeedDefault, nil); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > estimate {
		t.Fatalf("image %d bytes exceeds estimate %d", info.Size(), estimate)
	}
}

func TestBuildEmptySourceWritesNothing(t *testing.T) {
	outDir := t.TempDir()
	out := filepath.Join(outDir, "game.img")
	_, err := imageout.Build(context.Background(), t.TempDir(), out, zstd.SpeedDefault, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("failed build must not leave an image behind")
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestOpenRejectsCorruptImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.img")
	if err := os.WriteFile(path, []byte("definitely not an image but long enough to read"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := imageout.OpenImage(path); err == nil {
		t.Fatal("corrupt image should fail to open")
	}
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]zstd.EncoderLevel{
		"fastest": zstd.SpeedFastest,
		"default": zstd.SpeedDefault,
		"":        zstd.SpeedDefault,
		"better":  zstd.SpeedBetterCompression,
		"best":    zstd.SpeedBestCompression,
	} {
		got, err := imageout.ParseLevel(name)
		if err != nil {
			t.Fatalf("ParseLevel(%q) failed: %v", name, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := imageout.ParseLevel("ludicrous"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("bad level error = %v, want ErrConfiguration", err)
	}
}
