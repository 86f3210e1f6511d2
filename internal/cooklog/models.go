package cooklog

import "time"

// Run outcomes.
const (
	RunRunning     = "running"
	RunSucceeded   = "succeeded"
	RunFailed      = "failed"
	RunInterrupted = "interrupted"
)

// Per-object outcomes.
const (
	ObjectCooked  = "cooked"
	ObjectSkipped = "skipped"
	ObjectFailed  = "failed"
)

// Run is one journal entry covering a whole cook or package invocation.
type Run struct {
	ID         string
	Tool       string
	Spec       string
	StartedAt  time.Time
	FinishedAt *time.Time
	Outcome    string
	Cooked     int
	Skipped    int
	Failed     int
	Message    string
}

// Totals are the per-object counters accumulated over a run.
type Totals struct {
	Cooked  int
	Skipped int
	Failed  int
}

// ObjectRecord is one cooked-object event within a run.
type ObjectRecord struct {
	RunID    string
	Path     string
	Spec     string
	Pass     int
	Outcome  string
	Duration time.Duration
	Message  string
	LoggedAt time.Time
}
