// Command fix_note audits one clinical note and corrects it in place.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"note-auditor/internal/app"
	"note-auditor/internal/compliance"
	"note-auditor/internal/logger"
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

// realMain returns the exit code, so its deferred cleanup has run by the
// time main exits.
func realMain(args []string) int {
	fs := flag.NewFlagSet("fix_note", flag.ContinueOnError)
	backend := fs.String("backend", "", "PDF backend: mupdf or overlay (default from config)")
	configPath := fs.String("config", "", "Path to a JSON config file")
	logFile := fs.String("log", "fix_note.log", "Log file path")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: fix_note [flags] <file.pdf>")
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
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

	return run(fs.Arg(0), *configPath, *backend)
}

func run(path, configPath, backend string) int {
	cfg, err := app.LoadConfig(app.Options{ConfigPath: configPath, Backend: backend})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
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

	res, err := a.FixNote(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("%s: %s\n", res.Filename, res.Status)
	for _, k := range res.Applied {
		fmt.Printf("  fixed   %s\n", k.Label())
	}
	skipped := make([]compliance.Kind, 0, len(res.Skipped))
	for k := range res.Skipped {
		skipped = append(skipped, k)
	}
	sort.Slice(skipped, func(i, j int) bool { return skipped[i] < skipped[j] })
	for _, k := range skipped {
		fmt.Printf("  skipped %s: %s\n", k.Label(), res.Skipped[k])
	}
	for _, issue := range res.VerificationIssues {
		fmt.Printf("  review  %s\n", issue)
	}
	return 0
}
