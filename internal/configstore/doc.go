// Package configstore implements the locked, line-delimited persistent
// sets holding a project's registered paths, dependency groups, and
// enabled dataspec names.
//
// Each store is a plain UTF-8 text file with one record per line and
// no duplicate lines. Mutations happen inside a transaction: the
// backing file is parsed under an exclusive cross-process lock,
// edited in memory, then either committed (atomic replace, unlock) or
// discarded (unlock only). Multiple tool invocations may target the
// same project directory; the file lock is what keeps them from
// interleaving partial edits.
package configstore
