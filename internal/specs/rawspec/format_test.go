package rawspec

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"kiln/internal/object"
)

func TestCookedContainerRoundTrip(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		payload := []byte("vertex soup")
		data := encodeCooked(order, object.FourCCOf("MESH"), 0xdeadbeefcafe, payload)

		header, got, err := decodeCooked(order, data)
		if err != nil {
			t.Fatalf("%v: decode failed: %v", order, err)
		}
		if header.Type != object.FourCCOf("MESH") {
			t.Fatalf("%v: type = %s", order, header.Type)
		}
		if header.ID != 0xdeadbeefcafe {
			t.Fatalf("%v: id = %#x", order, header.ID)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("%v: payload = %q", order, got)
		}
	}
}

func TestCookedContainerRejectsTruncation(t *testing.T) {
	data := encodeCooked(binary.LittleEndian, object.FourCCOf("MESH"), 1, []byte("abc"))
	if _, _, err := decodeCooked(binary.LittleEndian, data[:len(data)-1]); err == nil {
		t.Fatal("truncated container accepted")
	}
	if _, _, err := decodeCooked(binary.LittleEndian, []byte("nope")); err == nil {
		t.Fatal("bad magic accepted")
	}
}

func TestReadCookedID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.kobj")
	data := encodeCooked(binary.LittleEndian, object.FourCCOf("TXTR"), 42, []byte("pixels"))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	id, ok := readCookedID(binary.LittleEndian, path)
	if !ok || id != 42 {
		t.Fatalf("readCookedID = %d, %v", id, ok)
	}
	if _, ok := readCookedID(binary.LittleEndian, filepath.Join(dir, "missing.kobj")); ok {
		t.Fatal("missing file reported an id")
	}
}

func TestRefPayloadRoundTrip(t *testing.T) {
	refs := []refEntry{
		{ID: 7, Path: "textures/a.png"},
		{ID: 0, Path: "models/unresolved.obj"},
	}
	data := encodeRefPayload(binary.LittleEndian, refs)

	got, err := decodeRefPayload(binary.LittleEndian, data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(got) != 2 || got[0] != refs[0] || got[1] != refs[1] {
		t.Fatalf("refs = %+v", got)
	}

	if _, err := decodeRefPayload(binary.LittleEndian, data[:len(data)-3]); err == nil {
		t.Fatal("truncated payload accepted")
	}
}

func TestPakRoundTrip(t *testing.T) {
	entries := []pakEntry{
		{ID: 1, Type: object.FourCCOf("TXTR"), Path: "textures/a.png", Data: []byte("blob-a")},
		{ID: 2, Type: object.FourCCOf("REFS"), Path: "models/hero.ref", Data: []byte("blob-b-longer")},
	}
	data := encodePak(binary.LittleEndian, entries)

	got, err := decodePak(binary.LittleEndian, data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries", len(got))
	}
	for i := range entries {
		if got[i].ID != entries[i].ID || got[i].Type != entries[i].Type ||
			got[i].Path != entries[i].Path || !bytes.Equal(got[i].Data, entries[i].Data) {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], entries[i])
		}
	}

	if _, err := decodePak(binary.LittleEndian, data[:10]); err == nil {
		t.Fatal("truncated index accepted")
	}
	bad := append([]byte(nil), data...)
	copy(bad, "JUNK")
	if _, err := decodePak(binary.LittleEndian, bad); err == nil {
		t.Fatal("bad magic accepted")
	}
}

func TestParseRefFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hero.ref")
	content := "# hero model parts\n\ntextures/a.png\n  models/body.obj  \n/absolute/skipped\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	deps, err := parseRefFile(path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(deps) != 2 || deps[0] != "textures/a.png" || deps[1] != "models/body.obj" {
		t.Fatalf("deps = %v", deps)
	}
}
