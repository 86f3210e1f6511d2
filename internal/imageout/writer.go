package imageout

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"kiln/internal/fingerprint"
	"kiln/internal/progress"
	"kiln/internal/services"
)

// magic brackets the image: it opens the file and closes the trailer.
const magic = "KLNIMG01"

const trailerSize = 16

// manifestVersion is bumped when the entry layout changes.
const manifestVersion = 1

// Entry indexes one compressed blob inside the image.
type Entry struct {
	Name           string `cbor:"name"`
	Offset         int64  `cbor:"offset"`
	CompressedSize int64  `cbor:"csize"`
	Size           int64  `cbor:"size"`
	Digest         string `cbor:"digest"`
}

// Manifest is the CBOR-encoded index written ahead of the trailer.
type Manifest struct {
	Version int     `cbor:"version"`
	Entries []Entry `cbor:"entries"`
}

// ParseLevel maps a config compression name onto a zstd encoder level.
func ParseLevel(name string) (zstd.EncoderLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fastest":
		return zstd.SpeedFastest, nil
	case "", "default":
		return zstd.SpeedDefault, nil
	case "better":
		return zstd.SpeedBetterCompression, nil
	case "best":
		return zstd.SpeedBestCompression, nil
	default:
		return 0, services.Wrap(services.ErrConfiguration, "imageout", "parse level",
			fmt.Sprintf("unsupported compression %q", name), nil)
	}
}

// perEntryOverhead is a rough allowance for zstd framing plus the
// manifest record of one entry.
const perEntryOverhead = 160

// EstimateSize reports an upper bound for the image built from dir,
// assuming incompressible input. It fails before any output is written
// when dir is missing or holds no files, so callers can validate an
// image request cheaply.
func EstimateSize(dir string) (int64, error) {
	files, err := collectFiles(dir)
	if err != nil {
		return 0, err
	}
	total := int64(len(magic) + trailerSize)
	for _, f := range files {
		total += f.size + perEntryOverhead
	}
	return total, nil
}

type sourceFile struct {
	name string // slash-separated, relative to the image root
	abs  string
	size int64
}

func collectFiles(dir string) ([]sourceFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "imageout", "collect",
			fmt.Sprintf("image source %q", dir), err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrConfiguration, "imageout", "collect",
			fmt.Sprintf("image source %q is not a directory", dir), nil)
	}

	var files []sourceFile
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, sourceFile{
			name: filepath.ToSlash(rel),
			abs:  path,
			size: fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "imageout", "collect",
			fmt.Sprintf("image source %q holds no packaged output", dir), nil)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Build writes the image for dir to out, staging through a temp file so
// a failed build never leaves a partial image behind.
func Build(ctx context.Context, dir, out string, level zstd.EncoderLevel, prog progress.Reporter) (*Manifest, error) {
	if prog == nil {
		prog = progress.Nop()
	}
	files, err := collectFiles(dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, fmt.Errorf("ensure image dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), ".image-*")
	if err != nil {
		return nil, fmt.Errorf("create temp image: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
		}
		_ = os.Remove(tmpPath)
	}()

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(level),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("init compressor: %w", err)
	}
	defer func() { _ = enc.Close() }()

	cw := &countingWriter{w: tmp}
	if _, err := io.WriteString(cw, magic); err != nil {
		return nil, fmt.Errorf("write image header: %w", err)
	}

	manifest := &Manifest{Version: manifestVersion}
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		digest, err := fingerprint.File(f.abs)
		if err != nil {
			return nil, err
		}

		offset := cw.n
		if err := compressEntry(cw, enc, f.abs); err != nil {
			return nil, fmt.Errorf("compress %s: %w", f.name, err)
		}
		manifest.Entries = append(manifest.Entries, Entry{
			Name:           f.name,
			Offset:         offset,
			CompressedSize: cw.n - offset,
			Size:           f.size,
			Digest:         digest,
		})
		prog(f.name, float64(i+1)/float64(len(files)))
	}

	manifestOffset := cw.n
	encoded, err := cbor.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if _, err := cw.Write(encoded); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	var trailer [trailerSize]byte
	binary.LittleEndian.PutUint64(trailer[:8], uint64(manifestOffset))
	copy(trailer[8:], magic)
	if _, err := cw.Write(trailer[:]); err != nil {
		return nil, fmt.Errorf("write trailer: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("sync image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		tmp = nil
		return nil, fmt.Errorf("close image: %w", err)
	}
	tmp = nil
	if err := os.Rename(tmpPath, out); err != nil {
		return nil, fmt.Errorf("finalize image: %w", err)
	}
	return manifest, nil
}

func compressEntry(w io.Writer, enc *zstd.Encoder, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc.Reset(w)
	if _, err := io.Copy(enc, f); err != nil {
		return err
	}
	return enc.Close()
}
