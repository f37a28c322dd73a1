package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const ManifestFileName = "manifest.jobs.json"

// RunMeta is the small per-run metadata snapshot next to the jobs manifest.
type RunMeta struct {
	RunID           string `json:"run_id"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at,omitempty"`
	EpubPath        string `json:"epub_path"`
	BookTitle       string `json:"book_title,omitempty"`
	Voice           string `json:"voice"`
	OutputDir       string `json:"output_dir"`
	TotalChapters   int    `json:"total_chapters"`
	Completed       int    `json:"completed"`
	Pending         int    `json:"pending"`
	FailedPermanent int    `json:"failed_permanent"`
}

func Mkdir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// WriteBytes writes data to path atomically: the bytes land in a temp file in
// the same directory and are renamed into place, so a crash never leaves a
// half-written file under the final name.
func WriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".epub2mp3-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}

func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON for %s: %w", path, err)
	}
	data = append(data, '\n')
	return WriteBytes(path, data)
}

func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse JSON %s: %w", path, err)
	}
	return nil
}

func ManifestPath(runDir string) string {
	return filepath.Join(runDir, ManifestFileName)
}

func RunMetaPath(runDir string) string {
	return filepath.Join(runDir, "run.json")
}

func LoadRunMeta(runDir string) (RunMeta, error) {
	var meta RunMeta
	if err := ReadJSON(RunMetaPath(runDir), &meta); err != nil {
		return RunMeta{}, err
	}
	return meta, nil
}

func SaveRunMeta(runDir string, meta RunMeta) error {
	return WriteJSON(RunMetaPath(runDir), meta)
}

func LatestRunDir(runsDir string) (string, error) {
	dirs, err := ListRunDirs(runsDir)
	if err != nil {
		return "", err
	}
	if len(dirs) == 0 {
		return "", fmt.Errorf("no run directories found in %s", runsDir)
	}

	latest := dirs[0]
	latestAt := ""
	for _, dir := range dirs {
		meta, err := LoadRunMeta(dir)
		if err != nil {
			continue
		}
		at := meta.UpdatedAt
		if at == "" {
			at = meta.CreatedAt
		}
		if at > latestAt {
			latestAt = at
			latest = dir
		}
	}
	return latest, nil
}

func ListRunDirs(runsDir string) ([]string, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read runs directory %s: %w", runsDir, err)
	}

	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(runsDir, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}
