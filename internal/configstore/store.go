package configstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofrs/flock"

	"kiln/internal/fileutil"
	"kiln/internal/logging"
	"kiln/internal/services"
)

// lockRetryDelay paces lock acquisition polling against other tool
// invocations targeting the same project directory.
const lockRetryDelay = 50 * time.Millisecond

// Store is one line-delimited persistent set backed by a text file,
// guarded by a process-external lock so concurrent tool invocations on
// the same project serialize their transactions.
type Store struct {
	path     string
	lockPath string
	logger   *slog.Logger
}

// New describes a store at path. The backing file may not exist yet;
// it is created on first commit.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		path:     path,
		lockPath: path + ".lock",
		logger:   logger,
	}
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Tx is a locked, mutable in-memory view of the store. Exactly one of
// Commit or Discard must be called; both release the lock.
type Tx struct {
	store *Store
	lock  *flock.Flock
	lines []string
	index map[string]struct{}
	done  bool
}

// LockAndRead acquires the store's exclusive lock and parses the
// backing file into an ordered line set. Acquisition blocks until the
// holder releases or ctx is done; failure is a configuration error.
func (s *Store) LockAndRead(ctx context.Context) (*Tx, error) {
	lock := flock.New(s.lockPath)
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "configstore", "lock", s.path, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "configstore", "lock", s.path, errors.New("lock not acquired"))
	}

	tx := &Tx{store: s, lock: lock, index: make(map[string]struct{})}
	if err := tx.read(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return tx, nil
}

// Snapshot reads the current line set without holding a transaction
// open: lock, parse, unlock.
func (s *Store) Snapshot(ctx context.Context) ([]string, error) {
	tx, err := s.LockAndRead(ctx)
	if err != nil {
		return nil, err
	}
	lines := tx.Lines()
	tx.Discard()
	return lines, nil
}

func (t *Tx) read() error {
	file, err := os.Open(t.store.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return services.Wrap(services.ErrConfiguration, "configstore", "read", t.store.path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !utf8.ValidString(line) {
			// A malformed store is recovered line by line, not fatal.
			t.store.logger.Warn("dropping malformed store line",
				logging.String("store", t.store.path))
			continue
		}
		t.addLocked(line)
	}
	if err := scanner.Err(); err != nil {
		t.store.logger.Warn("store file truncated while reading, treating remainder as empty",
			logging.String("store", t.store.path), logging.Error(err))
	}
	return nil
}

// Lines returns a copy of the current ordered line set.
func (t *Tx) Lines() []string {
	cp := make([]string, len(t.lines))
	copy(cp, t.lines)
	return cp
}

// AddLine inserts line at the end of the set. Adding an existing line
// is a no-op.
func (t *Tx) AddLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.addLocked(line)
}

func (t *Tx) addLocked(line string) {
	if _, exists := t.index[line]; exists {
		return
	}
	t.index[line] = struct{}{}
	t.lines = append(t.lines, line)
}

// RemoveLine deletes line from the set. Removing an absent line is a
// no-op.
func (t *Tx) RemoveLine(line string) {
	line = strings.TrimSpace(line)
	if _, exists := t.index[line]; !exists {
		return
	}
	delete(t.index, line)
	for i, existing := range t.lines {
		if existing == line {
			t.lines = append(t.lines[:i], t.lines[i+1:]...)
			break
		}
	}
}

// HasLine reports whether line is present.
func (t *Tx) HasLine(line string) bool {
	_, exists := t.index[strings.TrimSpace(line)]
	return exists
}

// Commit serializes the current set back to disk atomically and
// releases the lock.
func (t *Tx) Commit() error {
	if t.done {
		return errors.New("configstore: transaction already finished")
	}
	t.done = true
	defer func() {
		_ = t.lock.Unlock()
	}()

	var builder strings.Builder
	for _, line := range t.lines {
		builder.WriteString(line)
		builder.WriteByte('\n')
	}
	if err := fileutil.WriteFileAtomic(t.store.path, []byte(builder.String()), 0o644); err != nil {
		return services.Wrap(services.ErrConfiguration, "configstore", "commit", t.store.path, err)
	}
	return nil
}

// Discard releases the lock without writing.
func (t *Tx) Discard() {
	if t.done {
		return
	}
	t.done = true
	_ = t.lock.Unlock()
}

// Ensure creates an empty backing file when none exists, so a fresh
// project directory carries all of its stores from the start.
func (s *Store) Ensure() error {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat store %q: %w", s.path, err)
	}
	return fileutil.WriteFileAtomic(s.path, nil, 0o644)
}
