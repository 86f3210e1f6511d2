// Package services holds cross-cutting plumbing shared by pipeline
// components: the sentinel error taxonomy with its classification
// helpers, and context carriers for operation-scoped logging fields.
// External-tool clients live in subpackages.
package services
