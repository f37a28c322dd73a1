// Package tts wraps the remote text-to-speech service behind a small
// synthesizer interface with a classified error taxonomy, so the conversion
// pipeline can decide between backoff-and-retry and giving up.
package tts

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a synthesis failure for retry decisions.
type ErrorKind string

const (
	// KindRateLimited means the service is throttling us; back off hard.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTransient covers network blips and server-side hiccups worth retrying.
	KindTransient ErrorKind = "transient"
	// KindPermanent means retrying the same input cannot succeed.
	KindPermanent ErrorKind = "permanent"
)

// SynthesisError is a classified failure from a synthesizer.
type SynthesisError struct {
	Kind       ErrorKind
	Detail     string
	RetryAfter time.Duration // server-requested wait, zero if none
	Err        error
}

func (e *SynthesisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("synthesis failed (%s): %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("synthesis failed (%s): %s", e.Kind, e.Detail)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// Classify extracts the error kind from err. Unclassified errors are treated
// as transient: a one-off blip should not burn the whole chapter.
func Classify(err error) ErrorKind {
	var se *SynthesisError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}

// RetryAfter returns the server-requested wait from err, if any.
func RetryAfter(err error) time.Duration {
	var se *SynthesisError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// Synthesizer converts text to audio bytes for a given voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, text, voice string) ([]byte, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	return f(ctx, text, voice)
}
