package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kiln/internal/cooklog"
	"kiln/internal/dataspec"
	"kiln/internal/fileutil"
	"kiln/internal/logging"
	"kiln/internal/progress"
	"kiln/internal/projpath"
	"kiln/internal/services"
	"kiln/internal/workpool"
)

// Cost classifies how expensive an object is to cook, from its source
// size. The cook loop logs it so slow batches can be explained.
type Cost int

const (
	CostNone Cost = iota
	CostLight
	CostMedium
	CostHeavy
)

func (c Cost) String() string {
	switch c {
	case CostLight:
		return "light"
	case CostMedium:
		return "medium"
	case CostHeavy:
		return "heavy"
	default:
		return "none"
	}
}

func classifyCost(size int64) Cost {
	switch {
	case size <= 0:
		return CostNone
	case size <= 16<<10:
		return CostLight
	case size <= 2<<20:
		return CostMedium
	default:
		return CostHeavy
	}
}

// CookOptions tunes one CookPath invocation.
type CookOptions struct {
	// Recursive descends into subdirectories when path is a directory.
	Recursive bool
	// Force cooks even when the source fingerprint matches the last
	// successful cook.
	Force bool
	// Fast asks backends for their draft-quality path.
	Fast bool
	// Spec restricts cooking to one enabled backend.
	Spec string
	// Pass selects the cook pass, or PassAlways to ignore pass gating
	// and the incremental skip.
	Pass int
	// Pool, when non-nil, cooks objects concurrently.
	Pool *workpool.Pool
}

// CookReport summarizes one CookPath invocation.
type CookReport struct {
	RunID   string
	Cooked  int
	Skipped int
	Failed  int
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CookPath cooks the registered file at path, or every registered file
// under it when path is a directory. Unchanged sources are skipped on
// the primary pass unless forced; per-object failures are absorbed and
// counted unless fail-fast is configured.
func (p *Project) CookPath(ctx context.Context, path projpath.Path, prog progress.Reporter, opts CookOptions) (*CookReport, error) {
	if prog == nil {
		prog = progress.Nop()
	}
	if p.Interrupted() {
		return nil, services.Wrap(services.ErrInterrupted, "project", "cook", string(path), nil)
	}

	entries, err := p.cookEntries(ctx, opts.Spec)
	if err != nil {
		return nil, err
	}

	files, err := p.cookCandidates(ctx, path, opts.Recursive)
	if err != nil {
		return nil, err
	}

	specs := make([]dataspec.Spec, len(entries))
	for i, entry := range entries {
		if specs[i], err = p.specFor(entry, dataspec.ToolCook); err != nil {
			return nil, err
		}
	}

	runID, err := p.journal.BeginRun(ctx, "cook", opts.Spec)
	if err != nil {
		return nil, err
	}
	ctx = services.WithOperation(services.WithRunID(ctx, runID), "cook")
	log := logging.WithContext(ctx, p.logger)
	log.Info("cooking",
		logging.String("path", string(path)),
		logging.Int("objects", len(files)),
		logging.Int("pass", opts.Pass))

	report := &CookReport{RunID: runID}
	var (
		mu       sync.Mutex
		firstErr error
		aborted  bool
	)
	record := func(outcome string, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case cooklog.ObjectCooked:
			report.Cooked++
		case cooklog.ObjectSkipped:
			report.Skipped++
		case cooklog.ObjectFailed:
			report.Failed++
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if err != nil && (p.cfg.Cook.FailFast || services.IsStructural(err)) {
			aborted = true
		}
	}
	shouldStop := func() bool {
		if p.Interrupted() {
			return true
		}
		mu.Lock()
		defer mu.Unlock()
		return aborted
	}

	total := len(files)
	for i, f := range files {
		if shouldStop() {
			break
		}
		entry, inst, err := p.resolveClaim(f, entries, specs, opts.Pass)
		if err != nil {
			record(cooklog.ObjectFailed, err)
			continue
		}
		if entry == nil {
			continue // nothing claims this file on this pass
		}

		f := f
		i := i
		task := func() {
			outcome, err := p.cookOne(ctx, f, entry, inst, runID, opts, prog)
			record(outcome, err)
			mu.Lock()
			prog(string(f), float64(i+1)/float64(total))
			mu.Unlock()
		}
		if opts.Pool != nil {
			opts.Pool.Submit(task)
		} else {
			task()
		}
	}
	if opts.Pool != nil {
		opts.Pool.Wait()
	}

	mu.Lock()
	retErr := firstErr
	mu.Unlock()
	outcome := cooklog.RunSucceeded
	switch {
	case p.Interrupted():
		outcome = cooklog.RunInterrupted
		retErr = services.Wrap(services.ErrInterrupted, "project", "cook", string(path), nil)
	case report.Failed > 0 || retErr != nil:
		outcome = cooklog.RunFailed
		if retErr == nil {
			retErr = services.Wrap(services.ErrCookFailed, "project", "cook",
				fmt.Sprintf("%d object(s) failed", report.Failed), nil)
		}
	}
	totals := cooklog.Totals{Cooked: report.Cooked, Skipped: report.Skipped, Failed: report.Failed}
	// The command context is already canceled when the run was ended
	// by a signal, and an interrupted run still has to be closed out.
	if err := p.journal.FinishRun(context.WithoutCancel(ctx), runID, outcome, totals, messageFor(retErr)); err != nil {
		log.Warn("journal finish failed", logging.Error(err))
	}
	log.Info("cook finished",
		logging.String("outcome", outcome),
		logging.Int("cooked", report.Cooked),
		logging.Int("skipped", report.Skipped),
		logging.Int("failed", report.Failed))
	return report, retErr
}

func messageFor(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// cookEntries resolves which enabled backends participate.
func (p *Project) cookEntries(ctx context.Context, only string) ([]*dataspec.Entry, error) {
	enabled, err := p.EnabledSpecs(ctx)
	if err != nil {
		return nil, err
	}
	if only == "" {
		if len(enabled) == 0 {
			return nil, services.Wrap(services.ErrConfiguration, "project", "cook",
				"no dataspecs enabled (run 'kiln spec enable')", nil)
		}
		return enabled, nil
	}
	for _, entry := range enabled {
		if entry.Name == only {
			return []*dataspec.Entry{entry}, nil
		}
	}
	if _, ok := dataspec.Lookup(only); !ok {
		return nil, services.Wrap(services.ErrUnknownSpec, "project", "cook", only, nil)
	}
	return nil, services.Wrap(services.ErrConfiguration, "project", "cook",
		fmt.Sprintf("dataspec %s is not enabled", only), nil)
}

// cookCandidates resolves path to the registered files it covers, in
// deterministic walk order.
func (p *Project) cookCandidates(ctx context.Context, path projpath.Path, recursive bool) ([]projpath.Path, error) {
	tracked, err := p.TrackedPaths(ctx)
	if err != nil {
		return nil, err
	}

	abs := path.Abs(p.root)
	info, err := os.Stat(abs)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "project", "cook",
			fmt.Sprintf("working path %s", path), err)
	}

	if !info.IsDir() {
		if !covered(tracked, path) {
			return nil, services.Wrap(services.ErrNotFound, "project", "cook",
				fmt.Sprintf("%s is not tracked (run 'kiln add')", path), nil)
		}
		return []projpath.Path{path}, nil
	}

	var files []projpath.Path
	err = projpath.WalkFiles(p.root, path, recursive, func(f projpath.Path) error {
		if covered(tracked, f) {
			files = append(files, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// resolveClaim finds the backend cooking f on this pass: the first
// claimant in registration order wins, then its override hook may hand
// the file to a different backend.
func (p *Project) resolveClaim(f projpath.Path, entries []*dataspec.Entry, specs []dataspec.Spec, pass int) (*dataspec.Entry, dataspec.Spec, error) {
	for i, inst := range specs {
		if !inst.CanCook(f, pass) {
			continue
		}
		entry := entries[i]
		if override := inst.OverrideDataSpec(f, entry); override != nil && override.Name != entry.Name {
			overrideInst, err := p.specFor(override, dataspec.ToolCook)
			if err != nil {
				return nil, nil, err
			}
			return override, overrideInst, nil
		}
		return entry, inst, nil
	}
	return nil, nil, nil
}

// cookOne cooks a single file through its claimed backend, staging the
// output so a failed or interrupted cook never clobbers the previous
// cooked file, and leaving an identical recook untouched on disk.
func (p *Project) cookOne(ctx context.Context, f projpath.Path, entry *dataspec.Entry, inst dataspec.Spec, runID string, opts CookOptions, prog progress.Reporter) (string, error) {
	ctx = services.WithSpec(services.WithObject(ctx, string(f)), entry.Name)
	log := logging.WithContext(ctx, p.logger)
	abs := p.WorkingFile(f)
	cookedFile := p.CookedFile(entry.Name, f)

	record := func(outcome string, took time.Duration, message string) {
		err := p.journal.RecordObject(ctx, cooklog.ObjectRecord{
			RunID:    runID,
			Path:     string(f),
			Spec:     entry.Name,
			Pass:     opts.Pass,
			Outcome:  outcome,
			Duration: took,
			Message:  message,
		})
		if err != nil {
			log.Warn("journal record failed", logging.Error(err))
		}
	}

	fp, err := p.fps.File(abs)
	if err != nil {
		record(cooklog.ObjectFailed, 0, err.Error())
		return cooklog.ObjectFailed, services.Wrap(services.ErrCookFailed, "project", "cook", string(f), err)
	}

	// The incremental skip applies only to the primary pass: later
	// passes resolve references, PassAlways bypasses gating entirely,
	// and both must always run.
	if !opts.Force && opts.Pass == 0 {
		if last, ok, err := p.journal.LastFingerprint(ctx, string(f), entry.Name); err == nil && ok && last == fp && fileExists(cookedFile) {
			record(cooklog.ObjectSkipped, 0, "")
			log.Debug("skipping unchanged object")
			return cooklog.ObjectSkipped, nil
		}
	}

	if info, err := os.Stat(abs); err == nil {
		log.Debug("cooking object",
			logging.String("cost", classifyCost(info.Size()).String()),
			logging.Int("pass", opts.Pass))
	}

	if err := os.MkdirAll(filepath.Dir(cookedFile), 0o755); err != nil {
		record(cooklog.ObjectFailed, 0, err.Error())
		return cooklog.ObjectFailed, services.Wrap(services.ErrCookFailed, "project", "cook", string(f), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(cookedFile), ".cook-*")
	if err != nil {
		record(cooklog.ObjectFailed, 0, err.Error())
		return cooklog.ObjectFailed, services.Wrap(services.ErrCookFailed, "project", "cook", string(f), err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	start := time.Now()
	if err := inst.DoCook(ctx, f, tmpPath, opts.Fast, prog); err != nil {
		took := time.Since(start)
		record(cooklog.ObjectFailed, took, err.Error())
		if services.IsInterrupted(err) || services.IsStructural(err) {
			return cooklog.ObjectFailed, err
		}
		log.Warn("cook failed", logging.Error(err))
		return cooklog.ObjectFailed, services.Wrap(services.ErrCookFailed, "project", "cook", string(f), err)
	}
	took := time.Since(start)

	// An identical recook keeps the existing file (and its mtime) so
	// downstream tooling sees no change.
	same, err := fileutil.SameContent(tmpPath, cookedFile)
	if err != nil {
		record(cooklog.ObjectFailed, took, err.Error())
		return cooklog.ObjectFailed, services.Wrap(services.ErrCookFailed, "project", "cook", string(f), err)
	}
	if !same {
		if err := os.Rename(tmpPath, cookedFile); err != nil {
			record(cooklog.ObjectFailed, took, err.Error())
			return cooklog.ObjectFailed, services.Wrap(services.ErrCookFailed, "project", "cook", string(f), err)
		}
	}

	record(cooklog.ObjectCooked, took, "")
	if err := p.journal.RecordSuccess(ctx, string(f), entry.Name, fp, cookedFile, runID); err != nil {
		log.Warn("journal success record failed", logging.Error(err))
	}
	return cooklog.ObjectCooked, nil
}
