package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"kiln/internal/progress"
)

// terminalProgress renders a single updating line on interactive
// terminals and stays silent everywhere else, so piped output never
// fills with carriage returns.
type terminalProgress struct {
	mu     sync.Mutex
	out    io.Writer
	active bool
	wrote  bool
}

func newTerminalProgress(out io.Writer) *terminalProgress {
	return &terminalProgress{out: out, active: isTerminal(out)}
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Reporter returns the sampled progress callback feeding this display.
func (t *terminalProgress) Reporter() progress.Reporter {
	if !t.active {
		return progress.Nop()
	}
	return progress.Sampled(0.01, func(label string, fraction float64) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if len(label) > 48 {
			label = "…" + label[len(label)-47:]
		}
		fmt.Fprintf(t.out, "\r\x1b[K%3.0f%% %s", fraction*100, label)
		t.wrote = true
	})
}

// Finish clears the in-place line so following output starts clean.
func (t *terminalProgress) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.wrote {
		fmt.Fprint(t.out, "\r\x1b[K")
		t.wrote = false
	}
}
