// Command batch_process audits every clinical note PDF in a folder, writes
// corrected copies and a compliance report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"note-auditor/internal/app"
	"note-auditor/internal/batch"
	"note-auditor/internal/logger"
	"note-auditor/internal/types"
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

// realMain returns the exit code, so its deferred cleanup has run by the
// time main exits.
func realMain(args []string) int {
	fs := flag.NewFlagSet("batch_process", flag.ContinueOnError)
	sortFlag := fs.Bool("sort", false, "Organise files into therapy_notes/, medical_notes/ and processed/")
	backend := fs.String("backend", "", "PDF backend: mupdf or overlay (default from config)")
	configPath := fs.String("config", "", "Path to a JSON config file")
	logFile := fs.String("log", "batch_process.log", "Log file path")
	dryRun := fs.Bool("dry-run", false, "Analyse and report without correcting or moving files")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: batch_process [flags] [path]")
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	root := "."
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}

	if err := logger.Init(&logger.Config{
		LogFilePath:   *logFile,
		MaxFileSize:   10 * 1024 * 1024,
		MaxBackups:    5,
		Level:         logger.LevelInfo,
		EnableConsole: true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logger.Close()

	return run(root, *configPath, *backend, batch.Options{Sort: *sortFlag, DryRun: *dryRun})
}

func run(root, configPath, backend string, opts batch.Options) int {
	cfg, err := app.LoadConfig(app.Options{ConfigPath: configPath, Backend: backend})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("cannot save analysis cache", logger.Err(err))
		}
	}()

	runner := a.Runner(opts.DryRun)
	runner.SetProgressCallback(func(done, total int, filename string) {
		fmt.Printf("[%d/%d] %s\n", done, total, filename)
	})

	out, err := runner.Run(ctx, root, opts)
	if out != nil {
		s := out.Summary
		fmt.Println()
		fmt.Printf("Total files:   %d\n", s.Total)
		fmt.Printf("Therapy notes: %d\n", s.Therapy)
		fmt.Printf("Medical notes: %d\n", s.Medical)
		fmt.Printf("Issues found:  %d\n", s.WithIssues)
		fmt.Printf("Corrected:     %d\n", s.Corrected)
		fmt.Printf("Needs review:  %d\n", s.NeedsReview)
		fmt.Printf("Errors:        %d\n", s.Errors)
		fmt.Printf("Report:        %s\n", out.Report.HTML)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Interrupted; report written for processed files.")
			return 130
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		// A missing folder or an empty one is a usage problem.
		if types.IsCode(err, types.ErrFileNotFound) {
			return 2
		}
		return 1
	}
	return 0
}
