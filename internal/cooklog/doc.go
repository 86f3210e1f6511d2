// Package cooklog persists the cook journal backing incremental
// rebuilds and status reporting. Each cook or package invocation is
// recorded as a run with per-object outcomes, and a last-success table
// keeps the source fingerprint of the most recent successful cook per
// (path, spec) pair so unchanged sources can be skipped.
package cooklog
