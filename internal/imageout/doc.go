// Package imageout writes packaged output directories into a single
// distributable image file. Entries are zstd-compressed individually so
// a reader can extract one package without decompressing the rest; a
// CBOR manifest at the tail indexes them by name with sizes and
// content digests.
package imageout
