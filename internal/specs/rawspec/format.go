package rawspec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"kiln/internal/object"
)

// Cooked-object container layout, in target byte order:
//
//	0:4    "KOBJ"
//	4:8    object type tag
//	8:16   content id (64-bit digest of the payload)
//	16:24  payload size
//	24:    payload
const (
	objMagic      = "KOBJ"
	objHeaderSize = 24
)

type cookedHeader struct {
	Type object.FourCC
	ID   uint64
	Size uint64
}

func encodeCooked(order binary.ByteOrder, typ object.FourCC, id uint64, payload []byte) []byte {
	out := make([]byte, objHeaderSize+len(payload))
	copy(out[0:4], objMagic)
	copy(out[4:8], typ[:])
	order.PutUint64(out[8:16], id)
	order.PutUint64(out[16:24], uint64(len(payload)))
	copy(out[objHeaderSize:], payload)
	return out
}

func decodeCooked(order binary.ByteOrder, data []byte) (cookedHeader, []byte, error) {
	var h cookedHeader
	if len(data) < objHeaderSize || string(data[0:4]) != objMagic {
		return h, nil, fmt.Errorf("not a cooked object")
	}
	copy(h.Type[:], data[4:8])
	h.ID = order.Uint64(data[8:16])
	h.Size = order.Uint64(data[16:24])
	if h.Size != uint64(len(data)-objHeaderSize) {
		return h, nil, fmt.Errorf("truncated cooked object: header says %d bytes, have %d",
			h.Size, len(data)-objHeaderSize)
	}
	return h, data[objHeaderSize:], nil
}

// readCookedID pulls just the content id out of a cooked file's header.
func readCookedID(order binary.ByteOrder, path string) (uint64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	var head [objHeaderSize]byte
	if _, err := f.ReadAt(head[:], 0); err != nil {
		return 0, false
	}
	if string(head[0:4]) != objMagic {
		return 0, false
	}
	return order.Uint64(head[8:16]), true
}

// Reference-list payload layout, in target byte order:
//
//	0:4  entry count
//	per entry: content id (8), path length (2), path bytes
func encodeRefPayload(order binary.ByteOrder, refs []refEntry) []byte {
	var buf bytes.Buffer
	var scratch [8]byte

	order.PutUint32(scratch[:4], uint32(len(refs)))
	buf.Write(scratch[:4])
	for _, r := range refs {
		order.PutUint64(scratch[:8], r.ID)
		buf.Write(scratch[:8])
		order.PutUint16(scratch[:2], uint16(len(r.Path)))
		buf.Write(scratch[:2])
		buf.WriteString(r.Path)
	}
	return buf.Bytes()
}

type refEntry struct {
	ID   uint64
	Path string
}

func decodeRefPayload(order binary.ByteOrder, data []byte) ([]refEntry, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("truncated reference payload")
	}
	count := order.Uint32(data[:4])
	data = data[4:]

	refs := make([]refEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(data) < 10 {
			return nil, fmt.Errorf("truncated reference entry %d", i)
		}
		id := order.Uint64(data[:8])
		nameLen := int(order.Uint16(data[8:10]))
		data = data[10:]
		if len(data) < nameLen {
			return nil, fmt.Errorf("truncated reference entry %d", i)
		}
		refs = append(refs, refEntry{ID: id, Path: string(data[:nameLen])})
		data = data[nameLen:]
	}
	return refs, nil
}

// Package container layout, in target byte order:
//
//	0:4  "KPAK"
//	4:8  entry count
//	index, per entry: content id (8), type tag (4), offset (8),
//	size (8), path length (2), path bytes
//	blobs: cooked-object containers, back to back
const pakMagic = "KPAK"

type pakEntry struct {
	ID   uint64
	Type object.FourCC
	Path string
	Data []byte
}

func encodePak(order binary.ByteOrder, entries []pakEntry) []byte {
	indexSize := 0
	for _, e := range entries {
		indexSize += 8 + 4 + 8 + 8 + 2 + len(e.Path)
	}

	var buf bytes.Buffer
	var scratch [8]byte
	buf.WriteString(pakMagic)
	order.PutUint32(scratch[:4], uint32(len(entries)))
	buf.Write(scratch[:4])

	offset := uint64(8 + indexSize)
	for _, e := range entries {
		order.PutUint64(scratch[:8], e.ID)
		buf.Write(scratch[:8])
		buf.Write(e.Type[:])
		order.PutUint64(scratch[:8], offset)
		buf.Write(scratch[:8])
		order.PutUint64(scratch[:8], uint64(len(e.Data)))
		buf.Write(scratch[:8])
		order.PutUint16(scratch[:2], uint16(len(e.Path)))
		buf.Write(scratch[:2])
		buf.WriteString(e.Path)
		offset += uint64(len(e.Data))
	}
	for _, e := range entries {
		buf.Write(e.Data)
	}
	return buf.Bytes()
}

func decodePak(order binary.ByteOrder, data []byte) ([]pakEntry, error) {
	if len(data) < 8 || string(data[0:4]) != pakMagic {
		return nil, fmt.Errorf("not a package file")
	}
	count := order.Uint32(data[4:8])
	cursor := data[8:]

	entries := make([]pakEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(cursor) < 30 {
			return nil, fmt.Errorf("truncated package index at entry %d", i)
		}
		var e pakEntry
		e.ID = order.Uint64(cursor[:8])
		copy(e.Type[:], cursor[8:12])
		offset := order.Uint64(cursor[12:20])
		size := order.Uint64(cursor[20:28])
		nameLen := int(order.Uint16(cursor[28:30]))
		cursor = cursor[30:]
		if len(cursor) < nameLen {
			return nil, fmt.Errorf("truncated package index at entry %d", i)
		}
		e.Path = string(cursor[:nameLen])
		cursor = cursor[nameLen:]

		if offset+size > uint64(len(data)) {
			return nil, fmt.Errorf("package entry %s out of bounds", e.Path)
		}
		e.Data = data[offset : offset+size]
		entries = append(entries, e)
	}
	return entries, nil
}
