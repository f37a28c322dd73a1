package runstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var runIDUnsafe = regexp.MustCompile(`[^a-z0-9._-]+`)

// RunID derives the stable run identity for an (epub, voice, output dir)
// combination. Converting the same book with a different voice or into a
// different directory starts a fresh run rather than reusing stale audio.
func RunID(epubPath, voice, outputDir string) string {
	absEpub := absOrClean(epubPath)
	absOut := absOrClean(outputDir)

	h := sha256.New()
	h.Write([]byte(absEpub))
	h.Write([]byte{0})
	h.Write([]byte(voice))
	h.Write([]byte{0})
	h.Write([]byte(absOut))
	digest := hex.EncodeToString(h.Sum(nil))[:12]

	stem := strings.TrimSuffix(filepath.Base(absEpub), filepath.Ext(absEpub))
	stem = runIDUnsafe.ReplaceAllString(strings.ToLower(stem), "-")
	stem = strings.Trim(stem, "-.")
	if stem == "" {
		stem = "book"
	}
	if len(stem) > 40 {
		stem = stem[:40]
	}
	return fmt.Sprintf("%s-%s", stem, digest)
}

// RunDir is the run directory for a run identity under runsDir.
func RunDir(runsDir, runID string) string {
	return filepath.Join(runsDir, runID)
}

func absOrClean(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
