package services

import "context"

type contextKey string

const (
	operationKey contextKey = "operation"
	specKey      contextKey = "spec"
	objectKey    contextKey = "object"
	runIDKey     contextKey = "run_id"
)

// WithOperation annotates context with the pipeline operation name
// (cook, package, extract, clean).
func WithOperation(ctx context.Context, operation string) context.Context {
	if operation == "" {
		return ctx
	}
	return context.WithValue(ctx, operationKey, operation)
}

// OperationFromContext returns the operation name if present.
func OperationFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(operationKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithSpec annotates context with the active dataspec name.
func WithSpec(ctx context.Context, spec string) context.Context {
	if spec == "" {
		return ctx
	}
	return context.WithValue(ctx, specKey, spec)
}

// SpecFromContext returns the dataspec name if present.
func SpecFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(specKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithObject annotates context with the working path of the object
// currently being processed.
func WithObject(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, objectKey, path)
}

// ObjectFromContext returns the current object path if present.
func ObjectFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(objectKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRunID annotates context with the cook-journal run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(runIDKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}
