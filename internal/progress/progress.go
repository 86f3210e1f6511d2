// Package progress defines the reporting sink used by cook and package
// operations: a synchronous callback accepting (label, fraction)
// updates, with helpers for deduplicating noisy streams and for
// multiplexing updates from parallel workers into one overall figure.
package progress

import (
	"strings"
	"sync"
)

// Reporter receives progress updates. Fraction is in [0, 1]; negative
// values mean "unknown". Reporters are invoked synchronously from the
// operation that makes progress.
type Reporter func(label string, fraction float64)

// Nop returns a reporter that drops every update.
func Nop() Reporter {
	return func(string, float64) {}
}

// Sampler suppresses repetitive updates while preserving signal when
// the label or fraction bucket changes.
type Sampler struct {
	bucketSize float64
	lastLabel  string
	lastBucket int
}

// NewSampler constructs a sampler that passes updates through when the
// fraction crosses bucket boundaries (default 5%) or the label changes.
func NewSampler(bucketSize float64) *Sampler {
	if bucketSize <= 0 {
		bucketSize = 0.05
	}
	return &Sampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldReport reports whether an update carries new signal. Fraction
// may be negative to indicate "unknown".
func (s *Sampler) ShouldReport(label string, fraction float64) bool {
	if s == nil {
		return true
	}
	label = strings.TrimSpace(label)
	emit := false
	if label != "" && label != s.lastLabel {
		s.lastLabel = label
		s.lastBucket = -1
		emit = true
	}
	if fraction >= 0 {
		bucket := int(fraction / s.bucketSize)
		if fraction >= 1 {
			bucket = int(1 / s.bucketSize)
		}
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears sampler state when a new operation starts.
func (s *Sampler) Reset() {
	if s == nil {
		return
	}
	s.lastLabel = ""
	s.lastBucket = -1
}

// Sampled wraps next so that only updates passing the sampler reach it.
func Sampled(bucketSize float64, next Reporter) Reporter {
	sampler := NewSampler(bucketSize)
	var mu sync.Mutex
	return func(label string, fraction float64) {
		mu.Lock()
		emit := sampler.ShouldReport(label, fraction)
		mu.Unlock()
		if emit && next != nil {
			next(label, fraction)
		}
	}
}

// Mux fans per-worker progress into a single aggregate reporter. The
// aggregate fraction is the mean of the worker fractions; the label is
// the most recent one received.
type Mux struct {
	mu        sync.Mutex
	next      Reporter
	fractions []float64
}

// NewMux constructs a multiplexer over workers slots.
func NewMux(workers int, next Reporter) *Mux {
	if workers < 1 {
		workers = 1
	}
	return &Mux{next: next, fractions: make([]float64, workers)}
}

// Slot returns the reporter for worker index i. Slots are safe to use
// concurrently with one another.
func (m *Mux) Slot(i int) Reporter {
	return func(label string, fraction float64) {
		m.mu.Lock()
		if i >= 0 && i < len(m.fractions) && fraction >= 0 {
			m.fractions[i] = min(fraction, 1)
		}
		var total float64
		for _, f := range m.fractions {
			total += f
		}
		overall := total / float64(len(m.fractions))
		next := m.next
		m.mu.Unlock()

		if next != nil {
			next(label, overall)
		}
	}
}
