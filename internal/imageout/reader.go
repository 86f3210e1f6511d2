package imageout

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"

	"kiln/internal/services"
)

// Reader extracts entries from an image written by Build.
type Reader struct {
	f        *os.File
	manifest Manifest
}

// OpenImage maps an image file and decodes its manifest.
func OpenImage(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "imageout", "open",
			fmt.Sprintf("image %q", path), err)
	}

	r, err := readManifest(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func readManifest(f *os.File) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}
	size := info.Size()
	if size < int64(len(magic))+trailerSize {
		return nil, fmt.Errorf("image too small (%d bytes)", size)
	}

	var head [len(magic)]byte
	if _, err := f.ReadAt(head[:], 0); err != nil {
		return nil, fmt.Errorf("read image header: %w", err)
	}
	if string(head[:]) != magic {
		return nil, fmt.Errorf("not a kiln image (bad header)")
	}

	var trailer [trailerSize]byte
	if _, err := f.ReadAt(trailer[:], size-trailerSize); err != nil {
		return nil, fmt.Errorf("read image trailer: %w", err)
	}
	if string(trailer[8:]) != magic {
		return nil, fmt.Errorf("truncated image (bad trailer)")
	}

	manifestOffset := int64(binary.LittleEndian.Uint64(trailer[:8]))
	if manifestOffset < int64(len(magic)) || manifestOffset > size-trailerSize {
		return nil, fmt.Errorf("corrupt image (manifest offset %d out of range)", manifestOffset)
	}

	encoded := make([]byte, size-trailerSize-manifestOffset)
	if _, err := f.ReadAt(encoded, manifestOffset); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := cbor.Unmarshal(encoded, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if manifest.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported image version %d", manifest.Version)
	}
	return &Reader{f: f, manifest: manifest}, nil
}

// Manifest returns the decoded index.
func (r *Reader) Manifest() Manifest { return r.manifest }

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r == nil || r.f == nil {
		return nil
	}
	return r.f.Close()
}

func (r *Reader) entry(name string) (Entry, bool) {
	for _, e := range r.manifest.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Extract decompresses the named entry into w, verifying its content
// digest along the way.
func (r *Reader) Extract(name string, w io.Writer) error {
	e, ok := r.entry(name)
	if !ok {
		return services.Wrap(services.ErrNotFound, "imageout", "extract",
			fmt.Sprintf("entry %q", name), nil)
	}

	section := io.NewSectionReader(r.f, e.Offset, e.CompressedSize)
	dec, err := zstd.NewReader(section, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return fmt.Errorf("init decompressor: %w", err)
	}
	defer dec.Close()

	hasher := blake3.New(32, nil)
	n, err := io.Copy(io.MultiWriter(w, hasher), dec)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", name, err)
	}
	if n != e.Size {
		return fmt.Errorf("entry %s: decompressed %d bytes, manifest says %d", name, n, e.Size)
	}
	if got := fmt.Sprintf("%x", hasher.Sum(nil)); got != e.Digest {
		return fmt.Errorf("entry %s: content digest mismatch", name)
	}
	return nil
}

// ExtractAll writes every entry under dir, recreating the packaged
// directory layout the image was built from.
func (r *Reader) ExtractAll(dir string) error {
	for _, e := range r.manifest.Entries {
		dest := filepath.Join(dir, filepath.FromSlash(e.Name))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("ensure %s: %w", filepath.Dir(dest), err)
		}
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("create %s: %w", dest, err)
		}
		if err := r.Extract(e.Name, f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", dest, err)
		}
	}
	return nil
}
