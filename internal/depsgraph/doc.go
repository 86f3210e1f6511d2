// Package depsgraph builds the dependency graph that orders objects
// for packaging. Nodes live in a flat arena and link through int32
// indices, so the whole graph is one allocation-friendly slice that a
// backend can stream in preorder.
//
// Directories registered as groups collapse into a single group node
// whose members sit contiguously at the head of its child chain;
// dependencies pulled in by those members follow behind, deduplicated
// within the group. A path referenced from two different groups is
// intentionally duplicated into both so each group packages
// self-contained.
package depsgraph
