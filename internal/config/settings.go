// Package config holds the persisted global defaults for epub2mp3 and their
// environment overrides. Resolution order: built-in defaults, settings file,
// EPUB2MP3_* environment variables, then per-invocation flags (in the CLI).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"epub2mp3/internal/runstore"
)

const (
	DefaultSettingsPath = "epub2mp3.settings.json"

	DefaultVoice      = "zh-CN-YunxiaNeural"
	DefaultOutputDir  = "output_audio"
	DefaultRunsDir    = "runs"
	DefaultWorkers    = 3
	DefaultMaxRetries = 3
)

type Settings struct {
	Voice             string  `json:"voice,omitempty" env:"EPUB2MP3_VOICE"`
	Endpoint          string  `json:"endpoint,omitempty" env:"EPUB2MP3_ENDPOINT"`
	APIKey            string  `json:"api_key,omitempty" env:"EPUB2MP3_API_KEY"`
	OutputDir         string  `json:"output_dir,omitempty" env:"EPUB2MP3_OUTPUT_DIR"`
	RunsDir           string  `json:"runs_dir,omitempty" env:"EPUB2MP3_RUNS_DIR"`
	Workers           int     `json:"workers,omitempty" env:"EPUB2MP3_WORKERS"`
	MaxRetries        int     `json:"max_retries" env:"EPUB2MP3_MAX_RETRIES"`
	RequestTimeoutSec int     `json:"request_timeout_sec,omitempty" env:"EPUB2MP3_REQUEST_TIMEOUT_SEC"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" env:"EPUB2MP3_REQUESTS_PER_SECOND"`
}

func DefaultSettings() Settings {
	return Settings{
		Voice:             DefaultVoice,
		OutputDir:         DefaultOutputDir,
		RunsDir:           DefaultRunsDir,
		Workers:           DefaultWorkers,
		MaxRetries:        DefaultMaxRetries,
		RequestTimeoutSec: 30,
	}
}

func normalizeSettings(raw Settings) Settings {
	norm := raw
	if norm.Voice == "" {
		norm.Voice = DefaultVoice
	}
	if norm.OutputDir == "" {
		norm.OutputDir = DefaultOutputDir
	}
	if norm.RunsDir == "" {
		norm.RunsDir = DefaultRunsDir
	}
	if norm.Workers <= 0 {
		norm.Workers = DefaultWorkers
	}
	if norm.MaxRetries < 0 {
		norm.MaxRetries = DefaultMaxRetries
	}
	if norm.RequestTimeoutSec <= 0 {
		norm.RequestTimeoutSec = 30
	}
	if norm.RequestsPerSecond < 0 {
		norm.RequestsPerSecond = 0
	}
	return norm
}

// Read returns the settings as persisted on disk (built-in defaults when the
// file does not exist), without environment overrides. Use this as the base
// when rewriting the file, so a transient EPUB2MP3_* variable never becomes a
// saved default.
func Read(configPath string) (Settings, error) {
	path := configPath
	if path == "" {
		path = DefaultSettingsPath
	}

	s := DefaultSettings()
	if err := runstore.ReadJSON(path, &s); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Settings{}, err
		}
	}
	return normalizeSettings(s), nil
}

// Load reads the settings file and applies environment overrides on top.
func Load(configPath string) (Settings, error) {
	s, err := Read(configPath)
	if err != nil {
		return Settings{}, err
	}
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse environment overrides: %w", err)
	}
	return normalizeSettings(s), nil
}

// Update persists new settings to the settings file.
func Update(configPath string, s Settings) (Settings, error) {
	path := configPath
	if path == "" {
		path = DefaultSettingsPath
	}
	norm := normalizeSettings(s)
	if err := runstore.WriteJSON(path, norm); err != nil {
		return Settings{}, err
	}
	return norm, nil
}

// RequestTimeout returns the per-attempt synthesis timeout.
func (s Settings) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSec) * time.Second
}
