package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SynthesizeSuccess(t *testing.T) {
	var gotReq speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, speechPath, r.URL.Path)
		require.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{Endpoint: srv.URL, APIKey: "sekrit"})
	require.NoError(t, err)

	audio, err := c.Synthesize(context.Background(), "hello world", "en-US-AriaNeural")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), audio)
	assert.Equal(t, "hello world", gotReq.Input)
	assert.Equal(t, "en-US-AriaNeural", gotReq.Voice)
	assert.Equal(t, "mp3", gotReq.ResponseFormat)
}

func TestClient_ClassifiesRateLimitWithRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), "text", "voice")
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, Classify(err))
	assert.Equal(t, 7*time.Second, RetryAfter(err))
}

func TestClient_ClassifiesServerErrorsAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), "text", "voice")
	require.Error(t, err)
	assert.Equal(t, KindTransient, Classify(err))
}

func TestClient_ClassifiesClientErrorsAsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown voice", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), "text", "bogus-voice")
	require.Error(t, err)
	assert.Equal(t, KindPermanent, Classify(err))
	assert.Contains(t, err.Error(), "unknown voice")
}

func TestClient_NetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c, err := NewClient(ClientOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), "text", "voice")
	require.Error(t, err)
	assert.Equal(t, KindTransient, Classify(err))
}

func TestClient_EmptyAudioIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), "text", "voice")
	require.Error(t, err)
	assert.Equal(t, KindTransient, Classify(err))
}

func TestClient_CallerCancellationIsNotClassified(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = c.Synthesize(ctx, "text", "voice")
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_RequiresEndpoint(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	require.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 12*time.Second, parseRetryAfter("12"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))
}
