package pipeline

import (
	"fmt"
	"io"

	"epub2mp3/internal/model"
)

// FailedChapter is one permanently failed chapter in the final summary.
type FailedChapter struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// Summary aggregates the fate of every chapter after the queue drains.
type Summary struct {
	RunID           string          `json:"run_id"`
	RunDir          string          `json:"run_dir"`
	BookTitle       string          `json:"book_title,omitempty"`
	Total           int             `json:"total"`
	Processed       int             `json:"processed_now"`
	Succeeded       int             `json:"succeeded"`
	Pending         int             `json:"pending"`
	FailedRetryable int             `json:"failed_retryable"`
	FailedPermanent int             `json:"failed_permanent"`
	Failed          []FailedChapter `json:"failed"`
}

// Ok reports whether every chapter ended Succeeded.
func (s Summary) Ok() bool {
	return s.FailedPermanent == 0 && s.Pending == 0 && s.FailedRetryable == 0
}

func buildSummary(mf model.RunManifest, runDir string, processed int) Summary {
	s := Summary{
		RunID:           mf.RunID,
		RunDir:          runDir,
		BookTitle:       mf.BookTitle,
		Total:           mf.Total,
		Processed:       processed,
		Succeeded:       mf.Completed,
		Pending:         mf.Pending + mf.Running,
		FailedRetryable: mf.FailedRetryable,
		FailedPermanent: mf.FailedPermanent,
		Failed:          make([]FailedChapter, 0),
	}
	for _, j := range mf.Jobs {
		if j.Status != model.StatusFailedPermanent {
			continue
		}
		s.Failed = append(s.Failed, FailedChapter{
			Index:  j.Index,
			Title:  j.Title,
			Kind:   j.ErrorKind,
			Detail: j.LastError,
		})
	}
	return s
}

// Render writes the human-readable run summary.
func (s Summary) Render(w io.Writer) {
	fmt.Fprintf(w, "run %s: %d/%d chapters converted", s.RunID, s.Succeeded, s.Total)
	if s.Processed > 0 {
		fmt.Fprintf(w, " (%d processed now)", s.Processed)
	}
	fmt.Fprintln(w)
	if s.Pending > 0 || s.FailedRetryable > 0 {
		fmt.Fprintf(w, "remaining: %d pending, %d retryable; rerun convert to resume\n", s.Pending, s.FailedRetryable)
	}
	if len(s.Failed) > 0 {
		fmt.Fprintln(w, "failed chapters:")
		for _, f := range s.Failed {
			fmt.Fprintf(w, "  - %03d %s (%s)", f.Index, f.Title, f.Kind)
			if f.Detail != "" {
				fmt.Fprintf(w, ": %s", f.Detail)
			}
			fmt.Fprintln(w)
		}
	}
}
