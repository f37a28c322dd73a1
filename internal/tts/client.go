package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	speechPath        = "/v1/audio/speech"
	defaultTimeout    = 30 * time.Second
	maxErrorBodyBytes = 2048
)

// ClientOptions configures the HTTP synthesis client.
type ClientOptions struct {
	// Endpoint is the base URL of an edge-tts-compatible speech service.
	Endpoint string
	// APIKey is sent as a bearer token when non-empty.
	APIKey string
	// RequestTimeout bounds a single synthesis attempt. Defaults to 30s.
	RequestTimeout time.Duration
	// RequestsPerSecond paces outgoing requests across all workers.
	// Zero disables client-side pacing.
	RequestsPerSecond float64
	// ClassifyStatus overrides the HTTP status → error kind mapping.
	ClassifyStatus func(status int) ErrorKind
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client calls a remote speech endpoint over HTTP and classifies failures
// into the retry taxonomy.
type Client struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	classify func(status int) ErrorKind
	limiter  *rate.Limiter
	httpc    *http.Client
}

func NewClient(opts ClientOptions) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("tts endpoint is required")
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	classify := opts.ClassifyStatus
	if classify == nil {
		classify = ClassifyHTTPStatus
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{}
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   opts.APIKey,
		timeout:  timeout,
		classify: classify,
		limiter:  limiter,
		httpc:    httpc,
	}, nil
}

// ClassifyHTTPStatus is the default status → error kind mapping: 429 is
// rate limiting, 408 and 5xx are transient, other 4xx are permanent.
func ClassifyHTTPStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout:
		return KindTransient
	case status >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

type speechRequest struct {
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(speechRequest{
		Input:          text,
		Voice:          voice,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, &SynthesisError{Kind: KindPermanent, Detail: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint+speechPath, bytes.NewReader(payload))
	if err != nil {
		return nil, &SynthesisError{Kind: KindPermanent, Detail: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// caller cancellation, not a service failure
			return nil, ctx.Err()
		}
		return nil, &SynthesisError{Kind: KindTransient, Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			detail = resp.Status
		}
		return nil, &SynthesisError{
			Kind:       c.classify(resp.StatusCode),
			Detail:     fmt.Sprintf("HTTP %d: %s", resp.StatusCode, detail),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &SynthesisError{Kind: KindTransient, Detail: "read audio body", Err: err}
	}
	if len(audio) == 0 {
		return nil, &SynthesisError{Kind: KindTransient, Detail: "empty audio response"}
	}
	return audio, nil
}

func parseRetryAfter(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
