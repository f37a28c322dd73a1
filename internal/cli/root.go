package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "convert":
		return runConvert(args[1:])
	case "status":
		return runStatus(args[1:])
	case "runs":
		return runRuns(args[1:])
	case "browse":
		return runBrowse(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("epub2mp3: convert EPUB chapters to MP3 with resumable runs")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  epub2mp3 convert book.epub")
	fmt.Println("  epub2mp3 status --latest")
	fmt.Println("  epub2mp3 convert book.epub        # rerun to resume")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  convert   convert a book's chapters, checkpointing after each one")
	fmt.Println("  status    per-chapter status for a run")
	fmt.Println("  runs      list known runs")
	fmt.Println("  browse    interactive run/chapter browser")
	fmt.Println("  settings  show/update global defaults")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - Reruns with the same epub, voice, and output dir resume the")
	fmt.Println("    existing run; completed chapters are never re-synthesized")
}
