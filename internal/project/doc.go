// Package project is the orchestrator tying the pipeline together: it
// owns the on-disk project state under .kiln (tracked paths, group
// directories, enabled backends, the cook journal), compiles dataspec
// backends against the tool configuration, and drives the cook,
// package, clean, and extract operations over them.
//
// All mutations of project state go through the transactional line
// stores, so concurrent tool invocations on the same project serialize
// instead of corrupting each other.
package project
