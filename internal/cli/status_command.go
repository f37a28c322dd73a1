package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"epub2mp3/internal/model"
	"epub2mp3/internal/runstore"
)

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id from runs/<run_id>")
	runDir := fs.String("run-dir", "", "explicit run directory path")
	runsDir := fs.String("runs-dir", "runs", "runs directory")
	latest := fs.Bool("latest", false, "use the most recently updated run")
	chapters := fs.Bool("chapters", false, "list every chapter, not just failures")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	target, err := resolveRunDir(strings.TrimSpace(*runID), strings.TrimSpace(*runDir), strings.TrimSpace(*runsDir), *latest)
	if err != nil {
		return err
	}

	var mf model.RunManifest
	if err := runstore.ReadJSON(runstore.ManifestPath(target), &mf); err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(map[string]any{
			"run_dir":  target,
			"manifest": mf,
		})
	}

	fmt.Printf("run_id: %s\n", mf.RunID)
	fmt.Printf("run_dir: %s\n", target)
	if mf.BookTitle != "" {
		fmt.Printf("book: %s\n", mf.BookTitle)
	}
	fmt.Printf("voice: %s\n", mf.Voice)
	fmt.Printf("output_dir: %s\n", mf.OutputDir)
	fmt.Printf("converted: %d/%d\n", mf.Completed, mf.Total)
	fmt.Printf("pending: %d\n", mf.Pending+mf.Running)
	fmt.Printf("failed_retryable: %d\n", mf.FailedRetryable)
	fmt.Printf("failed_permanent: %d\n", mf.FailedPermanent)

	for _, j := range mf.Jobs {
		if !*chapters && j.Status != model.StatusFailedPermanent && j.Status != model.StatusFailedRetryable {
			continue
		}
		line := fmt.Sprintf("  %03d %-16s %s", j.Index, j.Status, j.Title)
		if j.LastError != "" {
			line += " (" + truncateRunes(j.LastError, 80) + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func runRuns(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	runsDir := fs.String("runs-dir", "runs", "runs directory")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	dirs, err := runstore.ListRunDirs(strings.TrimSpace(*runsDir))
	if err != nil {
		return err
	}

	metas := make([]runstore.RunMeta, 0, len(dirs))
	for _, dir := range dirs {
		meta, err := runstore.LoadRunMeta(dir)
		if err != nil {
			continue
		}
		metas = append(metas, meta)
	}

	if *jsonOut {
		return printJSON(metas)
	}
	if len(metas) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, m := range metas {
		fmt.Printf("%s  %d/%d converted  %s\n", m.RunID, m.Completed, m.TotalChapters, m.BookTitle)
	}
	return nil
}

// resolveRunDir turns the --run-id/--run-dir/--latest targeting flags into a
// concrete run directory.
func resolveRunDir(runID, runDir, runsDir string, latest bool) (string, error) {
	switch {
	case runDir != "":
		return runDir, nil
	case runID != "":
		dir := runstore.RunDir(runsDir, runID)
		if _, err := os.Stat(dir); err != nil {
			return "", fmt.Errorf("run %s not found under %s", runID, runsDir)
		}
		return dir, nil
	case latest:
		return runstore.LatestRunDir(runsDir)
	default:
		return "", errors.New("run target required: set --run-id, --run-dir, or --latest")
	}
}

func outputPathFor(mf model.RunManifest, j model.ChapterJob) string {
	return filepath.Join(mf.OutputDir, j.OutputFile)
}
