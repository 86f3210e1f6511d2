package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for the pipeline error taxonomy. Structural issues
// (configuration, dependency graph) abort a whole operation; per-object
// cook failures are absorbed by the orchestrator and reported through
// progress; interruption is a distinct outcome, not a failure.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrCookFailed        = errors.New("cook failure")
	ErrDependencyMissing = errors.New("dependency missing")
	ErrInterrupted       = errors.New("interrupted")
	ErrNotFound          = errors.New("not found")
	ErrGroupConflict     = errors.New("group conflict")
	ErrUnknownSpec       = errors.New("unknown dataspec")
	ErrExternalTool      = errors.New("external tool error")
)

// Wrap builds an error message that includes operation context while
// tagging it with the provided marker for later classification. The
// marker should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrCookFailed
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsInterrupted reports whether err represents operator cancellation
// rather than a failure.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}

// IsStructural reports whether err must abort the whole operation
// instead of being absorbed per object.
func IsStructural(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrDependencyMissing) ||
		errors.Is(err, ErrUnknownSpec) ||
		errors.Is(err, ErrGroupConflict)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
