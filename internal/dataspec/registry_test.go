package dataspec_test

import (
	"testing"

	"kiln/internal/dataspec"
)

func entryNamed(name string) *dataspec.Entry {
	return &dataspec.Entry{
		Name:          name,
		Desc:          "test backend",
		PakExt:        "pak",
		NumCookPasses: 1,
		Factory: func(host dataspec.Host, tool dataspec.Tool, target dataspec.Target) (dataspec.Spec, error) {
			base := dataspec.NewBase(nil)
			return &base, nil
		},
	}
}

func TestRegisterPreservesOrder(t *testing.T) {
	dataspec.Reset()
	t.Cleanup(dataspec.Reset)

	for _, name := range []string{"gx", "raw", "shader"} {
		if err := dataspec.Register(entryNamed(name)); err != nil {
			t.Fatalf("Register(%q) failed: %v", name, err)
		}
	}

	entries := dataspec.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	for i, want := range []string{"gx", "raw", "shader"} {
		if entries[i].Name != want {
			t.Fatalf("entry %d = %q, want %q (registration order is the precedence rule)", i, entries[i].Name, want)
		}
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	dataspec.Reset()
	t.Cleanup(dataspec.Reset)

	if err := dataspec.Register(entryNamed("raw")); err != nil {
		t.Fatal(err)
	}
	if err := dataspec.Register(entryNamed("raw")); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestRegisterValidates(t *testing.T) {
	dataspec.Reset()
	t.Cleanup(dataspec.Reset)

	if err := dataspec.Register(nil); err == nil {
		t.Fatal("nil entry should fail")
	}
	entry := entryNamed(" ")
	if err := dataspec.Register(entry); err == nil {
		t.Fatal("blank name should fail")
	}
	entry = entryNamed("raw")
	entry.NumCookPasses = 0
	if err := dataspec.Register(entry); err == nil {
		t.Fatal("zero cook passes should fail")
	}
	entry = entryNamed("raw")
	entry.Factory = nil
	if err := dataspec.Register(entry); err == nil {
		t.Fatal("missing factory should fail")
	}
}

func TestLookup(t *testing.T) {
	dataspec.Reset()
	t.Cleanup(dataspec.Reset)

	if err := dataspec.Register(entryNamed("raw")); err != nil {
		t.Fatal(err)
	}
	if entry, ok := dataspec.Lookup("raw"); !ok || entry.Name != "raw" {
		t.Fatalf("Lookup = %v, %v", entry, ok)
	}
	if _, ok := dataspec.Lookup("missing"); ok {
		t.Fatal("unknown name should not resolve")
	}
}

func TestBaseDefaults(t *testing.T) {
	entry := entryNamed("raw")
	base := dataspec.NewBase(entry)

	if ok, _ := base.CanExtract(dataspec.ExtractPassInfo{}); ok {
		t.Fatal("base must not claim extraction")
	}
	if base.CanCook("models/foo.mesh", 0) {
		t.Fatal("base must not claim cooking")
	}
	if base.CanPackage("models") {
		t.Fatal("base must not claim packaging")
	}
	if got := base.OverrideDataSpec("models/foo.mesh", entry); got != entry {
		t.Fatal("base override must keep the current entry")
	}
	if base.Entry() != entry {
		t.Fatal("entry accessor broken")
	}
}
