// Package object defines the base abstraction for a single working
// resource. An Object exposes two optional capabilities to backends:
// producing cooked bytes incrementally through a supplied sink, and
// enumerating its direct dependencies through a supplied collector.
// Both default to no-ops so most object types need only a path and a
// four-character type tag.
//
// Object instances are materialized through the type registry keyed by
// file extension; backends install their constructors at process start.
package object
