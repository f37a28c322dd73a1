package cli

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"epub2mp3/internal/config"
)

func runSettings(args []string) error {
	if len(args) == 0 {
		printSettingsUsage()
		return nil
	}
	switch args[0] {
	case "show":
		return runSettingsShow(args[1:])
	case "set":
		return runSettingsSet(args[1:])
	case "help", "-h", "--help":
		printSettingsUsage()
		return nil
	default:
		printSettingsUsage()
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

func runSettingsShow(args []string) error {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultSettingsPath, "settings file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := strings.TrimSpace(*configPath)
	s, err := config.Load(path)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": path,
			"settings":    s,
		})
	}

	fmt.Printf("config: %s\n", path)
	fmt.Printf("voice: %s\n", s.Voice)
	fmt.Printf("endpoint: %s\n", defaultIfEmpty(s.Endpoint, "(not set)"))
	fmt.Printf("output_dir: %s\n", s.OutputDir)
	fmt.Printf("runs_dir: %s\n", s.RunsDir)
	fmt.Printf("workers: %d\n", s.Workers)
	fmt.Printf("max_retries: %d\n", s.MaxRetries)
	fmt.Printf("request_timeout_sec: %d\n", s.RequestTimeoutSec)
	fmt.Printf("requests_per_second: %s\n", strconv.FormatFloat(s.RequestsPerSecond, 'f', -1, 64))
	return nil
}

func runSettingsSet(args []string) error {
	fs := flag.NewFlagSet("settings set", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultSettingsPath, "settings file path")
	voice := fs.String("voice", "", "default voice (empty keeps current)")
	endpoint := fs.String("endpoint", "", "default speech endpoint (empty keeps current)")
	apiKey := fs.String("api-key", "", "default bearer token (empty keeps current)")
	outputDir := fs.String("output-dir", "", "default output directory (empty keeps current)")
	runsDir := fs.String("runs-dir", "", "default runs directory (empty keeps current)")
	workers := fs.Int("workers", -1, "default worker count (>=1, -1 keeps current)")
	maxRetries := fs.Int("max-retries", -1, "default retry budget (>=0, -1 keeps current)")
	rps := fs.Float64("requests-per-second", -1, "client request pacing (0 disables, -1 keeps current)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := strings.TrimSpace(*configPath)
	// Base on the file contents, not the env-layered view: environment
	// overrides stay per-invocation and must not be written back.
	s, err := config.Read(path)
	if err != nil {
		return err
	}

	if v := strings.TrimSpace(*voice); v != "" {
		s.Voice = v
	}
	if v := strings.TrimSpace(*endpoint); v != "" {
		s.Endpoint = v
	}
	if v := strings.TrimSpace(*apiKey); v != "" {
		s.APIKey = v
	}
	if v := strings.TrimSpace(*outputDir); v != "" {
		s.OutputDir = v
	}
	if v := strings.TrimSpace(*runsDir); v != "" {
		s.RunsDir = v
	}
	if *workers != -1 {
		if *workers <= 0 {
			return errors.New("--workers must be >= 1")
		}
		s.Workers = *workers
	}
	if *maxRetries != -1 {
		if *maxRetries < 0 {
			return errors.New("--max-retries must be >= 0")
		}
		s.MaxRetries = *maxRetries
	}
	if *rps != -1 {
		if *rps < 0 {
			return errors.New("--requests-per-second must be >= 0")
		}
		s.RequestsPerSecond = *rps
	}

	saved, err := config.Update(path, s)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": path,
			"settings":    saved,
		})
	}
	fmt.Printf("updated settings in %s\n", path)
	fmt.Printf("voice: %s\n", saved.Voice)
	fmt.Printf("endpoint: %s\n", defaultIfEmpty(saved.Endpoint, "(not set)"))
	fmt.Printf("workers: %d\n", saved.Workers)
	fmt.Printf("max_retries: %d\n", saved.MaxRetries)
	return nil
}

func printSettingsUsage() {
	fmt.Println("settings commands:")
	fmt.Println("  settings show")
	fmt.Println("  settings set [--voice V] [--endpoint URL] [--workers N] [--max-retries N] ...")
}

func defaultIfEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
