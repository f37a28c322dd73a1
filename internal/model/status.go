package model

import "fmt"

const (
	StatusPending         = "pending"
	StatusRunning         = "running"
	StatusCompleted       = "completed"
	StatusFailedRetryable = "failed_retryable"
	StatusFailedPermanent = "failed_permanent"
)

var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusPending: true,
	},
	StatusPending: {
		StatusPending:         true,
		StatusRunning:         true,
		StatusFailedRetryable: true,
		StatusFailedPermanent: true,
	},
	StatusRunning: {
		StatusRunning:         true,
		StatusCompleted:       true,
		StatusFailedRetryable: true,
		StatusFailedPermanent: true,
	},
	StatusCompleted: {
		StatusCompleted: true,
		StatusPending:   true, // local audio file missing, needs re-synthesis
	},
	StatusFailedRetryable: {
		StatusFailedRetryable: true,
		StatusRunning:         true,
		StatusPending:         true,
		StatusFailedPermanent: true,
	},
	StatusFailedPermanent: {
		StatusFailedPermanent: true,
		StatusRunning:         true, // with explicit retry-permanent flow
		StatusPending:         true,
	},
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionJobStatus(job *ChapterJob, toStatus string, reason string) error {
	from := job.Status
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid job status transition: %q -> %q (chapter=%d title=%q)", from, toStatus, job.Index, job.Title)
	}
	job.Status = toStatus
	job.Reason = reason
	return nil
}
