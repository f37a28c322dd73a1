package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"epub2mp3/internal/book"
	"epub2mp3/internal/config"
	"epub2mp3/internal/pipeline"
	"epub2mp3/internal/tts"
)

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	epubFlag := fs.String("epub", "", "path to the EPUB file (or pass it as the first argument)")
	voice := fs.String("voice", "", "TTS voice name (default: settings/"+config.DefaultVoice+")")
	outputDir := fs.String("output-dir", "", "directory for the per-chapter MP3 files")
	runsDir := fs.String("runs-dir", "", "runs directory for progress manifests")
	workers := fs.Int("workers", 0, "number of parallel chapter workers (0 = settings/default)")
	maxRetries := fs.Int("max-retries", -1, "retries per chapter after the first attempt (-1 = settings/default)")
	endpoint := fs.String("endpoint", "", "base URL of the speech service")
	apiKey := fs.String("api-key", "", "bearer token for the speech service")
	retryPermanent := fs.Bool("retry-permanent", false, "also requeue chapters marked failed_permanent")
	configPath := fs.String("config", config.DefaultSettingsPath, "settings file path")
	quiet := fs.Bool("quiet", false, "suppress per-chapter progress logging")
	jsonOut := fs.Bool("json", false, "print JSON output")

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	epubPath := strings.TrimSpace(*epubFlag)
	if epubPath == "" && fs.NArg() > 0 {
		epubPath = strings.TrimSpace(fs.Arg(0))
	}
	if epubPath == "" {
		fs.Usage()
		return errors.New("epub path is required: epub2mp3 convert <book.epub>")
	}

	settings, err := config.Load(strings.TrimSpace(*configPath))
	if err != nil {
		return err
	}

	effectiveVoice := firstNonEmpty(strings.TrimSpace(*voice), settings.Voice)
	effectiveOutputDir := firstNonEmpty(strings.TrimSpace(*outputDir), settings.OutputDir)
	effectiveRunsDir := firstNonEmpty(strings.TrimSpace(*runsDir), settings.RunsDir)
	effectiveEndpoint := firstNonEmpty(strings.TrimSpace(*endpoint), settings.Endpoint)
	effectiveWorkers := firstPositive(*workers, settings.Workers)
	effectiveRetries := settings.MaxRetries
	if *maxRetries >= 0 {
		effectiveRetries = *maxRetries
	}
	if effectiveEndpoint == "" {
		return errors.New("speech endpoint required: set --endpoint, EPUB2MP3_ENDPOINT, or `epub2mp3 settings set --endpoint ...`")
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if *quiet {
		logger.SetLevel(log.ErrorLevel)
	}

	info, err := book.Extract(epubPath)
	if err != nil {
		return err
	}
	if len(info.Chapters) == 0 {
		return fmt.Errorf("no chapters with text found in %s", epubPath)
	}
	logger.Info("book loaded", "title", info.Title, "chapters", len(info.Chapters))

	synth, err := tts.NewClient(tts.ClientOptions{
		Endpoint:          effectiveEndpoint,
		APIKey:            firstNonEmpty(strings.TrimSpace(*apiKey), settings.APIKey),
		RequestTimeout:    settings.RequestTimeout(),
		RequestsPerSecond: settings.RequestsPerSecond,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	summary, err := pipeline.Run(ctx, info.Chapters, pipeline.Options{
		EpubPath:       epubPath,
		BookTitle:      info.Title,
		Voice:          effectiveVoice,
		OutputDir:      effectiveOutputDir,
		RunsDir:        effectiveRunsDir,
		Workers:        effectiveWorkers,
		MaxRetries:     effectiveRetries,
		RetryPermanent: *retryPermanent,
		Synth:          synth,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		if err := printJSON(summary); err != nil {
			return err
		}
	} else {
		summary.Render(os.Stdout)
		fmt.Printf("elapsed: %s\n", time.Since(start).Round(time.Second))
	}

	if ctx.Err() != nil {
		return errors.New("interrupted; rerun convert with the same arguments to resume")
	}
	if !summary.Ok() {
		return fmt.Errorf("%d of %d chapters not converted", summary.Total-summary.Succeeded, summary.Total)
	}
	return nil
}
