package model

// RunManifest is the canonical per-run chapter state file.
type RunManifest struct {
	SchemaVersion   int          `json:"schema_version"`
	GeneratedAt     string       `json:"generated_at"`
	RunID           string       `json:"run_id"`
	EpubPath        string       `json:"epub_path"`
	BookTitle       string       `json:"book_title,omitempty"`
	Voice           string       `json:"voice"`
	OutputDir       string       `json:"output_dir"`
	Total           int          `json:"total"`
	Pending         int          `json:"pending"`
	Running         int          `json:"running"`
	Completed       int          `json:"completed"`
	FailedRetryable int          `json:"failed_retryable"`
	FailedPermanent int          `json:"failed_permanent"`
	Jobs            []ChapterJob `json:"jobs"`
}

// ChapterJob is the persisted outcome record for one chapter. Chapter text is
// not stored here; it is re-extracted from the EPUB on every invocation.
type ChapterJob struct {
	Index         int    `json:"index"`
	Title         string `json:"title"`
	OutputFile    string `json:"output_file"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	LastAttemptAt string `json:"last_attempt_at,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// RecomputeCounts refreshes the aggregate counters from the job list.
func RecomputeCounts(mf *RunManifest) {
	pending := 0
	running := 0
	completed := 0
	failedRetryable := 0
	failedPermanent := 0

	for _, j := range mf.Jobs {
		switch j.Status {
		case StatusPending:
			pending++
		case StatusRunning:
			running++
		case StatusCompleted:
			completed++
		case StatusFailedRetryable:
			failedRetryable++
		case StatusFailedPermanent:
			failedPermanent++
		}
	}

	mf.Total = len(mf.Jobs)
	mf.Pending = pending
	mf.Running = running
	mf.Completed = completed
	mf.FailedRetryable = failedRetryable
	mf.FailedPermanent = failedPermanent
}
