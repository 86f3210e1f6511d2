package logging

import (
	"context"
	"log/slog"

	"kiln/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldOperation is the standardized structured logging key for pipeline operations.
	FieldOperation = "operation"
	// FieldSpec is the standardized structured logging key for dataspec names.
	FieldSpec = "spec"
	// FieldObject is the standardized structured logging key for working-resource paths.
	FieldObject = "object"
	// FieldPass is the standardized structured logging key for cook pass indices.
	FieldPass = "pass"
	// FieldRunID is the standardized structured logging key for cook-journal run identifiers.
	FieldRunID = "run_id"
	// FieldEventType marks lifecycle events (cook_start, cook_complete, ...).
	FieldEventType = "event_type"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if operation, ok := services.OperationFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldOperation, operation))
	}
	if spec, ok := services.SpecFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSpec, spec))
	}
	if object, ok := services.ObjectFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldObject, object))
	}
	if runID, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, runID))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived
// from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}

func attrsToArgs(attrs []slog.Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}
