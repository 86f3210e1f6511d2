package object

import (
	"fmt"
	"strings"

	"kiln/internal/projpath"
)

// FourCC is the packagable four-character type tag of an object.
type FourCC [4]byte

// FourCCOf builds a tag from s, truncating or space-padding to four
// characters.
func FourCCOf(s string) FourCC {
	var fc FourCC
	copy(fc[:], "    ")
	copy(fc[:], s)
	return fc
}

// TypeForExt derives a default tag from a file extension: uppercase,
// dot stripped, space padded ("mesh" -> MESH).
func TypeForExt(ext string) FourCC {
	trimmed := strings.ToUpper(strings.TrimPrefix(ext, "."))
	if trimmed == "" {
		return FourCCOf("NULL")
	}
	return FourCCOf(trimmed)
}

func (fc FourCC) String() string { return strings.TrimRight(string(fc[:]), " ") }

// Endianness is the byte order of the target system.
type Endianness int

const (
	EndianNone Endianness = iota
	EndianBig
	EndianLittle
)

// Platform selects the data-format family of the target system.
type Platform int

const (
	PlatformNone Platform = iota
	// PlatformGeneric targets scanline textures and portable shader bundles.
	PlatformGeneric
	// PlatformTiled targets tiled textures and register buffers.
	PlatformTiled
	// PlatformSwizzled targets swizzled textures and precompiled shader objects.
	PlatformSwizzled
)

// ParsePlatform maps a config string onto a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "generic":
		return PlatformGeneric, nil
	case "tiled":
		return PlatformTiled, nil
	case "swizzled":
		return PlatformSwizzled, nil
	default:
		return PlatformNone, fmt.Errorf("unsupported platform %q", s)
	}
}

// ParseEndianness maps a config string onto an Endianness.
func ParseEndianness(s string) (Endianness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "little":
		return EndianLittle, nil
	case "big":
		return EndianBig, nil
	default:
		return EndianNone, fmt.Errorf("unsupported endianness %q", s)
	}
}

// DataSink receives cooked bytes incrementally. The object never owns
// the output buffer; it pushes chunks and the orchestrator decides
// where they land.
type DataSink func(chunk []byte) error

// DepAdder collects one direct dependency per call during
// GatherDeps. Recursion across the resulting edges is the
// orchestrator's job, not the object's.
type DepAdder func(Object)

// Object is one trackable working resource: an authored file or a
// logical sub-object of one. Instances are produced by the
// orchestrator through the type registry, never constructed directly
// by callers.
type Object interface {
	Path() projpath.Path
	Type() FourCC

	// CookObject pushes zero or more cooked byte chunks to sink.
	// Returning false signals a recoverable cook failure for this
	// object only.
	CookObject(sink DataSink, endianness Endianness, platform Platform) bool

	// GatherDeps invokes add once per direct dependency. Non-recursive.
	GatherDeps(add DepAdder)
}

// Base carries the path and type tag and supplies no-op cook and
// dependency hooks, so most object types only override what they need.
type Base struct {
	path projpath.Path
	typ  FourCC
}

// NewBase constructs the embedded core of an object.
func NewBase(path projpath.Path, typ FourCC) Base {
	return Base{path: path, typ: typ}
}

func (b Base) Path() projpath.Path { return b.path }

func (b Base) Type() FourCC { return b.typ }

func (b Base) CookObject(DataSink, Endianness, Platform) bool { return true }

func (b Base) GatherDeps(DepAdder) {}
