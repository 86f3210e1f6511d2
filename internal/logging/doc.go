// Package logging centralizes slog construction for the CLI and the
// pipeline. Loggers are built from tool config (format, level, output
// paths) and call sites enrich them with operation-scoped fields
// carried through context (operation, spec, object, run ID).
package logging
