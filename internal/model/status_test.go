package model

import "testing"

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{"", StatusPending},
		{StatusPending, StatusRunning},
		{StatusRunning, StatusCompleted},
		{StatusRunning, StatusFailedRetryable},
		{StatusRunning, StatusFailedPermanent},
		{StatusFailedRetryable, StatusRunning},
		{StatusCompleted, StatusPending},
		{StatusFailedPermanent, StatusRunning},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{StatusPending, StatusCompleted},
		{StatusCompleted, StatusRunning},
		{StatusCompleted, StatusFailedPermanent},
		{"not_a_state", StatusPending},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionJobStatus_BlocksIllegalTransition(t *testing.T) {
	job := ChapterJob{
		Index:  0,
		Title:  "Intro",
		Status: StatusPending,
	}

	if err := TransitionJobStatus(&job, StatusCompleted, ""); err == nil {
		t.Fatalf("expected illegal transition error")
	}
	if job.Status != StatusPending {
		t.Fatalf("status mutated on rejected transition: %q", job.Status)
	}
}

func TestRecomputeCounts(t *testing.T) {
	mf := RunManifest{
		Jobs: []ChapterJob{
			{Index: 0, Status: StatusCompleted},
			{Index: 1, Status: StatusPending},
			{Index: 2, Status: StatusFailedPermanent},
			{Index: 3, Status: StatusFailedRetryable},
			{Index: 4, Status: StatusRunning},
		},
	}
	RecomputeCounts(&mf)

	if mf.Total != 5 {
		t.Fatalf("total = %d, want 5", mf.Total)
	}
	if mf.Pending != 1 || mf.Running != 1 || mf.Completed != 1 || mf.FailedRetryable != 1 || mf.FailedPermanent != 1 {
		t.Fatalf("unexpected counts: %+v", mf)
	}
}
