// Package main hosts the kiln CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into
// project operations: initializing and opening project roots, tracking
// working resources, driving multi-pass cooks, packaging dependency
// graphs, emitting distributable images, and inspecting the cook
// journal. It centralizes configuration resolution, project discovery,
// and logger construction so subcommands can focus on user experience
// instead of wiring.
//
// Keep this package lean: add new functionality by extending the
// internal packages first, then surface it through dedicated commands
// or flags here.
package main
