package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultVoice, s.Voice)
	assert.Equal(t, DefaultWorkers, s.Workers)
	assert.Equal(t, DefaultMaxRetries, s.MaxRetries)
	assert.Equal(t, DefaultRunsDir, s.RunsDir)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	err := os.WriteFile(path, []byte(`{"voice":"en-US-GuyNeural","workers":5,"max_retries":0}`), 0o644)
	require.NoError(t, err)

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "en-US-GuyNeural", s.Voice)
	assert.Equal(t, 5, s.Workers)
	assert.Equal(t, 0, s.MaxRetries, "explicit zero retries must be kept")
	assert.Equal(t, DefaultOutputDir, s.OutputDir, "absent fields fall back to defaults")
}

func TestLoad_EnvironmentWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	err := os.WriteFile(path, []byte(`{"voice":"en-US-GuyNeural","workers":5}`), 0o644)
	require.NoError(t, err)

	t.Setenv("EPUB2MP3_VOICE", "en-GB-SoniaNeural")
	t.Setenv("EPUB2MP3_WORKERS", "2")
	t.Setenv("EPUB2MP3_ENDPOINT", "http://127.0.0.1:5050")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "en-GB-SoniaNeural", s.Voice)
	assert.Equal(t, 2, s.Workers)
	assert.Equal(t, "http://127.0.0.1:5050", s.Endpoint)
}

func TestLoad_NormalizesNonsenseValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	err := os.WriteFile(path, []byte(`{"workers":-4,"max_retries":-1,"request_timeout_sec":0}`), 0o644)
	require.NoError(t, err)

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultWorkers, s.Workers)
	assert.Equal(t, DefaultMaxRetries, s.MaxRetries)
	assert.Equal(t, 30, s.RequestTimeoutSec)
}

func TestLoad_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	err := os.WriteFile(path, []byte("{not json"), 0o644)
	require.NoError(t, err)

	_, err = Load(path)
	assert.Error(t, err)
}

func TestRead_IgnoresEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	err := os.WriteFile(path, []byte(`{"voice":"en-US-GuyNeural"}`), 0o644)
	require.NoError(t, err)

	t.Setenv("EPUB2MP3_VOICE", "en-GB-SoniaNeural")
	t.Setenv("EPUB2MP3_WORKERS", "9")

	s, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, "en-US-GuyNeural", s.Voice, "Read must return the persisted value")
	assert.Equal(t, DefaultWorkers, s.Workers)
}

func TestUpdate_RoundTripsThroughLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	saved, err := Update(path, Settings{Voice: "ja-JP-NanamiNeural", Workers: 8, MaxRetries: 1})
	require.NoError(t, err)
	assert.Equal(t, "ja-JP-NanamiNeural", saved.Voice)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
}
