package runstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteBytes_AtomicAndNoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "000_Intro.mp3")

	if err := WriteBytes(target, []byte("audio-bytes")); err != nil {
		t.Fatalf("write bytes: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Fatalf("unexpected content: %q", data)
	}

	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".epub2mp3-tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteJSON_ReadJSON_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")

	meta := RunMeta{
		RunID:         "book-abc123",
		CreatedAt:     "2026-01-02T03:04:05Z",
		EpubPath:      "/books/test.epub",
		Voice:         "en-US-AriaNeural",
		OutputDir:     "/out",
		TotalChapters: 3,
	}
	if err := WriteJSON(path, meta); err != nil {
		t.Fatalf("write json: %v", err)
	}

	var got RunMeta
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if got != meta {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, meta)
	}
}

func TestLatestRunDir_PicksMostRecentlyUpdated(t *testing.T) {
	runsDir := t.TempDir()

	older := filepath.Join(runsDir, "book-aaaa")
	newer := filepath.Join(runsDir, "book-bbbb")
	for _, d := range []string{older, newer} {
		if err := Mkdir(d); err != nil {
			t.Fatal(err)
		}
	}
	if err := SaveRunMeta(older, RunMeta{RunID: "book-aaaa", UpdatedAt: "2026-01-01T00:00:00Z"}); err != nil {
		t.Fatal(err)
	}
	if err := SaveRunMeta(newer, RunMeta{RunID: "book-bbbb", UpdatedAt: "2026-02-01T00:00:00Z"}); err != nil {
		t.Fatal(err)
	}

	got, err := LatestRunDir(runsDir)
	if err != nil {
		t.Fatalf("latest run dir: %v", err)
	}
	if got != newer {
		t.Fatalf("latest = %q, want %q", got, newer)
	}
}

func TestListRunDirs_MissingRunsDirIsEmpty(t *testing.T) {
	dirs, err := ListRunDirs(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("list run dirs: %v", err)
	}
	if len(dirs) != 0 {
		t.Fatalf("expected no dirs, got %v", dirs)
	}
}
