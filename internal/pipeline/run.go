// Package pipeline schedules chapter-to-audio jobs on a fixed worker pool
// with class-aware retry and durable per-chapter progress, so an interrupted
// conversion resumes where it left off.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"epub2mp3/internal/book"
	"epub2mp3/internal/model"
	"epub2mp3/internal/runstore"
	"epub2mp3/internal/tts"
)

const manifestSchemaVersion = 1

// SleepFunc waits for d or until ctx is done. Injected so retry backoff is
// testable without real waiting.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Options struct {
	EpubPath  string
	BookTitle string
	Voice     string
	OutputDir string
	RunsDir   string

	Workers    int
	MaxRetries int
	BaseDelay  time.Duration

	// RetryPermanent also requeues chapters already marked failed_permanent.
	RetryPermanent bool

	Synth  tts.Synthesizer
	Logger *log.Logger
	Sleep  SleepFunc
}

func (o *Options) normalize() error {
	if o.EpubPath == "" {
		return fmt.Errorf("epub path is required")
	}
	if o.Voice == "" {
		return fmt.Errorf("voice is required")
	}
	if o.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if o.RunsDir == "" {
		o.RunsDir = "runs"
	}
	if o.Workers == 0 {
		o.Workers = 3
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", o.Workers)
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", o.MaxRetries)
	}
	if o.Synth == nil {
		return fmt.Errorf("synthesizer is required")
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	if o.Sleep == nil {
		o.Sleep = sleepWithContext
	}
	return nil
}

// Run converts the given chapters under the options' concurrency and retry
// budget, persisting per-chapter outcomes so a rerun with the same
// (epub, voice, output dir) resumes instead of starting over.
func Run(ctx context.Context, chapters []book.Chapter, opts Options) (Summary, error) {
	if err := opts.normalize(); err != nil {
		return Summary{}, err
	}

	runID := runstore.RunID(opts.EpubPath, opts.Voice, opts.OutputDir)
	runDir := runstore.RunDir(opts.RunsDir, runID)
	if err := runstore.Mkdir(runDir); err != nil {
		return Summary{}, err
	}
	runLock, err := runstore.AcquireRunLock(runDir, runID, "convert")
	if err != nil {
		return Summary{}, err
	}
	defer func() {
		_ = runLock.Release()
	}()

	if err := runstore.Mkdir(opts.OutputDir); err != nil {
		return Summary{}, err
	}

	mf, err := loadOrCreateManifest(runDir, runID, chapters, opts)
	if err != nil {
		return Summary{}, err
	}
	resetStaleRunningJobs(&mf)
	reconcileCompletedJobsWithDisk(&mf, opts.OutputDir)
	model.RecomputeCounts(&mf)

	jobsPath := runstore.ManifestPath(runDir)
	if err := runstore.WriteJSON(jobsPath, mf); err != nil {
		return Summary{}, err
	}
	if err := saveRunMetaSnapshot(runDir, mf); err != nil {
		return Summary{}, err
	}

	logger := opts.Logger.With("run_id", runID)
	logger.Info("starting conversion",
		"chapters", mf.Total, "pending", mf.Pending, "workers", opts.Workers, "voice", opts.Voice)

	textByIndex := make(map[int]string, len(chapters))
	for _, ch := range chapters {
		textByIndex[ch.Index] = ch.Text
	}

	policy := newRetryPolicy(opts.MaxRetries, opts.BaseDelay)
	jobCh := make(chan int)

	var processed atomic.Int64
	var stateMu sync.Mutex
	var wg sync.WaitGroup
	var fatalErr atomic.Value
	setFatal := func(err error) {
		if err == nil {
			return
		}
		if fatalErr.Load() == nil {
			fatalErr.Store(err.Error())
		}
	}

	persistLocked := func() error {
		model.RecomputeCounts(&mf)
		return runstore.WriteJSON(jobsPath, mf)
	}

	workerFn := func(workerID int) {
		defer wg.Done()
		wlog := logger.With("worker", workerID)
		for i := range jobCh {
			if ctx.Err() != nil || fatalErr.Load() != nil {
				continue
			}

			stateMu.Lock()
			if !isRunnable(mf.Jobs[i].Status, opts.RetryPermanent) {
				stateMu.Unlock()
				continue
			}
			job := &mf.Jobs[i]
			if err := model.TransitionJobStatus(job, model.StatusRunning, ""); err != nil {
				stateMu.Unlock()
				setFatal(err)
				continue
			}
			job.LastAttemptAt = time.Now().UTC().Format(time.RFC3339)
			if err := persistLocked(); err != nil {
				stateMu.Unlock()
				setFatal(fmt.Errorf("persist jobs manifest: %w", err))
				continue
			}
			index := job.Index
			title := job.Title
			outPath := filepath.Join(opts.OutputDir, job.OutputFile)
			stateMu.Unlock()

			text := textByIndex[index]
			attempts, convErr := convertChapter(ctx, opts, policy, wlog, index, title, text, outPath)
			if ctx.Err() != nil && convErr != nil {
				// Abandoned mid-flight: leave the job marked running so the
				// next invocation resets and retries it.
				continue
			}
			processed.Add(1)

			stateMu.Lock()
			j := &mf.Jobs[i]
			j.Attempts = attempts
			j.LastAttemptAt = time.Now().UTC().Format(time.RFC3339)
			if convErr == nil {
				if err := model.TransitionJobStatus(j, model.StatusCompleted, ""); err != nil {
					stateMu.Unlock()
					setFatal(err)
					continue
				}
				j.ErrorKind = ""
				j.LastError = ""
				j.CompletedAt = time.Now().UTC().Format(time.RFC3339)
			} else {
				kind := tts.Classify(convErr)
				if err := model.TransitionJobStatus(j, model.StatusFailedPermanent, failReason(kind)); err != nil {
					stateMu.Unlock()
					setFatal(err)
					continue
				}
				j.ErrorKind = string(kind)
				j.LastError = truncate(convErr.Error(), 1200)
				j.CompletedAt = ""
			}
			if err := persistLocked(); err != nil {
				stateMu.Unlock()
				setFatal(fmt.Errorf("persist jobs manifest: %w", err))
				continue
			}
			done := mf.Completed
			total := mf.Total
			stateMu.Unlock()

			if convErr == nil {
				wlog.Info("chapter done", "chapter", index, "title", title, "attempts", attempts, "completed", done, "total", total)
			} else {
				wlog.Error("chapter failed", "chapter", index, "title", title, "attempts", attempts, "error", convErr)
			}
		}
	}

	for w := 1; w <= opts.Workers; w++ {
		wg.Add(1)
		go workerFn(w)
	}

dispatch:
	for i := range mf.Jobs {
		if fatalErr.Load() != nil {
			break
		}
		stateMu.Lock()
		ok := isRunnable(mf.Jobs[i].Status, opts.RetryPermanent)
		stateMu.Unlock()
		if !ok {
			continue
		}
		select {
		case jobCh <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobCh)
	wg.Wait()
	if msg := fatalErr.Load(); msg != nil {
		return Summary{}, fmt.Errorf("%s", msg.(string))
	}

	stateMu.Lock()
	defer stateMu.Unlock()
	model.RecomputeCounts(&mf)
	if err := runstore.WriteJSON(jobsPath, mf); err != nil {
		return Summary{}, err
	}
	if err := saveRunMetaSnapshot(runDir, mf); err != nil {
		return Summary{}, err
	}
	return buildSummary(mf, runDir, int(processed.Load())), nil
}

// convertChapter runs the per-job retry loop: synthesize, write atomically,
// back off and retry on rate-limit/transient failures, fail fast on
// permanent ones. Returns the attempts made and the final error, if any.
func convertChapter(ctx context.Context, opts Options, policy retryPolicy, wlog *log.Logger, index int, title, text, outPath string) (int, error) {
	attempts := 0
	for {
		attempts++
		audio, err := opts.Synth.Synthesize(ctx, text, opts.Voice)
		if err == nil {
			if werr := runstore.WriteBytes(outPath, audio); werr != nil {
				// Disk trouble is usually as recoverable as a network blip.
				err = &tts.SynthesisError{Kind: tts.KindTransient, Detail: "write output file", Err: werr}
			} else {
				return attempts, nil
			}
		}
		if ctx.Err() != nil {
			return attempts, err
		}

		delay, retry := policy.nextAction(attempts, err)
		if !retry {
			return attempts, err
		}
		wlog.Warn("retrying chapter",
			"chapter", index, "title", title, "attempt", attempts, "backoff", delay, "kind", tts.Classify(err), "error", err)
		if serr := opts.Sleep(ctx, delay); serr != nil {
			return attempts, err
		}
	}
}

func loadOrCreateManifest(runDir, runID string, chapters []book.Chapter, opts Options) (model.RunManifest, error) {
	jobsPath := runstore.ManifestPath(runDir)
	if _, err := os.Stat(jobsPath); err == nil {
		var mf model.RunManifest
		if err := runstore.ReadJSON(jobsPath, &mf); err != nil {
			return model.RunManifest{}, err
		}
		if len(mf.Jobs) != len(chapters) {
			return model.RunManifest{}, fmt.Errorf(
				"epub changed since previous run: manifest has %d chapters, book has %d (use a fresh output dir)",
				len(mf.Jobs), len(chapters))
		}
		return mf, nil
	}

	mf := model.RunManifest{
		SchemaVersion: manifestSchemaVersion,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		RunID:         runID,
		EpubPath:      opts.EpubPath,
		BookTitle:     opts.BookTitle,
		Voice:         opts.Voice,
		OutputDir:     opts.OutputDir,
		Jobs:          make([]model.ChapterJob, 0, len(chapters)),
	}
	for _, ch := range chapters {
		mf.Jobs = append(mf.Jobs, model.ChapterJob{
			Index:      ch.Index,
			Title:      ch.Title,
			OutputFile: book.OutputFileName(ch.Index, ch.Title),
			Status:     model.StatusPending,
		})
	}
	model.RecomputeCounts(&mf)
	return mf, nil
}

func isRunnable(status string, retryPermanent bool) bool {
	switch status {
	case model.StatusPending, model.StatusFailedRetryable:
		return true
	case model.StatusFailedPermanent:
		return retryPermanent
	default:
		return false
	}
}

func resetStaleRunningJobs(mf *model.RunManifest) {
	for i := range mf.Jobs {
		if mf.Jobs[i].Status != model.StatusRunning {
			continue
		}
		_ = model.TransitionJobStatus(&mf.Jobs[i], model.StatusFailedRetryable, "interrupted_previous_run")
		if mf.Jobs[i].LastError == "" {
			mf.Jobs[i].LastError = "previous run interrupted while this chapter was converting"
		}
	}
}

// reconcileCompletedJobsWithDisk requeues completed chapters whose output
// file has gone missing or is empty, matching the skip-if-present behavior
// users expect from rerunning into the same directory.
func reconcileCompletedJobsWithDisk(mf *model.RunManifest, outputDir string) {
	for i := range mf.Jobs {
		j := &mf.Jobs[i]
		if j.Status != model.StatusCompleted {
			continue
		}
		info, err := os.Stat(filepath.Join(outputDir, j.OutputFile))
		if err == nil && info.Size() > 0 {
			continue
		}
		_ = model.TransitionJobStatus(j, model.StatusPending, "missing_local_audio")
		j.CompletedAt = ""
		j.LastError = "previously completed but audio file is missing locally"
	}
}

func saveRunMetaSnapshot(runDir string, mf model.RunManifest) error {
	now := time.Now().UTC().Format(time.RFC3339)
	meta, err := runstore.LoadRunMeta(runDir)
	if err != nil {
		meta = runstore.RunMeta{
			RunID:     mf.RunID,
			CreatedAt: now,
		}
	}
	if meta.CreatedAt == "" {
		meta.CreatedAt = now
	}
	meta.UpdatedAt = now
	meta.EpubPath = mf.EpubPath
	meta.BookTitle = mf.BookTitle
	meta.Voice = mf.Voice
	meta.OutputDir = mf.OutputDir
	meta.TotalChapters = mf.Total
	meta.Completed = mf.Completed
	meta.Pending = mf.Pending + mf.Running + mf.FailedRetryable
	meta.FailedPermanent = mf.FailedPermanent
	return runstore.SaveRunMeta(runDir, meta)
}

func failReason(kind tts.ErrorKind) string {
	switch kind {
	case tts.KindRateLimited:
		return "rate_limited_budget_exhausted"
	case tts.KindTransient:
		return "transient_budget_exhausted"
	default:
		return "permanent_error"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
