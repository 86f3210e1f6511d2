package object_test

import (
	"os"
	"path/filepath"
	"testing"

	"kiln/internal/object"
	"kiln/internal/projpath"
)

type fakeEnv struct{}

func (fakeEnv) WorkingFile(p projpath.Path) string        { return "/work/" + p.String() }
func (fakeEnv) Materialize(p projpath.Path) object.Object { return object.Materialize(fakeEnv{}, p) }

// dirEnv resolves working files against a real directory.
type dirEnv struct {
	root string
}

func (e dirEnv) WorkingFile(p projpath.Path) string {
	return filepath.Join(e.root, filepath.FromSlash(p.String()))
}

func (e dirEnv) Materialize(p projpath.Path) object.Object { return object.Materialize(e, p) }

type meshObject struct {
	object.Base
}

func newMeshObject(_ object.Env, p projpath.Path) object.Object {
	return &meshObject{Base: object.NewBase(p, object.FourCCOf("CMDL"))}
}

func (m *meshObject) CookObject(sink object.DataSink, _ object.Endianness, _ object.Platform) bool {
	return sink([]byte("mesh-bytes")) == nil
}

func TestFourCC(t *testing.T) {
	if got := object.FourCCOf("MESH").String(); got != "MESH" {
		t.Fatalf("FourCCOf = %q", got)
	}
	if got := object.FourCCOf("TX").String(); got != "TX" {
		t.Fatalf("short tag should be space padded then trimmed, got %q", got)
	}
	if got := object.TypeForExt(".mesh").String(); got != "MESH" {
		t.Fatalf("TypeForExt = %q", got)
	}
	if got := object.TypeForExt("").String(); got != "NULL" {
		t.Fatalf("empty extension should map to NULL, got %q", got)
	}
	if got := object.TypeForExt(".texture").String(); got != "TEXT" {
		t.Fatalf("long extension should truncate, got %q", got)
	}
}

func TestMaterializeUsesRegisteredCtor(t *testing.T) {
	object.ResetTypes()
	t.Cleanup(object.ResetTypes)
	object.RegisterType(".mesh", newMeshObject)

	obj := object.Materialize(fakeEnv{}, "models/foo.mesh")
	if obj.Type().String() != "CMDL" {
		t.Fatalf("registered ctor not used, type = %q", obj.Type())
	}

	var cooked []byte
	ok := obj.CookObject(func(chunk []byte) error {
		cooked = append(cooked, chunk...)
		return nil
	}, object.EndianLittle, object.PlatformGeneric)
	if !ok || string(cooked) != "mesh-bytes" {
		t.Fatalf("cook produced %q ok=%v", cooked, ok)
	}
}

func TestMaterializeFallsBackToGenericLeaf(t *testing.T) {
	object.ResetTypes()
	t.Cleanup(object.ResetTypes)

	dir := t.TempDir()
	env := dirEnv{root: dir}
	if err := os.MkdirAll(filepath.Join(dir, "audio"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "audio", "theme.samp"), []byte("pcm data"), 0o644); err != nil {
		t.Fatal(err)
	}

	obj := object.Materialize(env, "audio/theme.samp")
	if obj.Path() != "audio/theme.samp" {
		t.Fatalf("path = %q", obj.Path())
	}
	if obj.Type().String() != "SAMP" {
		t.Fatalf("fallback type = %q", obj.Type())
	}

	var cooked []byte
	ok := obj.CookObject(func(chunk []byte) error {
		cooked = append(cooked, chunk...)
		return nil
	}, object.EndianBig, object.PlatformTiled)
	if !ok || string(cooked) != "pcm data" {
		t.Fatalf("leaf cook produced %q ok=%v, want the working file bytes", cooked, ok)
	}
	obj.GatherDeps(func(object.Object) {
		t.Fatal("generic leaf must not report dependencies")
	})

	missing := object.Materialize(env, "audio/gone.samp")
	if missing.CookObject(func([]byte) error { return nil }, object.EndianBig, object.PlatformTiled) {
		t.Fatal("cooking a missing working file must report failure")
	}
}

func TestParsers(t *testing.T) {
	if p, err := object.ParsePlatform("Tiled"); err != nil || p != object.PlatformTiled {
		t.Fatalf("ParsePlatform = %v, %v", p, err)
	}
	if _, err := object.ParsePlatform("saturn"); err == nil {
		t.Fatal("expected platform parse error")
	}
	if e, err := object.ParseEndianness("big"); err != nil || e != object.EndianBig {
		t.Fatalf("ParseEndianness = %v, %v", e, err)
	}
	if _, err := object.ParseEndianness("pdp"); err == nil {
		t.Fatal("expected endianness parse error")
	}
}
