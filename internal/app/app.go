// Package app wires configuration, the analysis client and the patch engine
// together for the command line tools.
package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"note-auditor/internal/analysis"
	"note-auditor/internal/batch"
	"note-auditor/internal/compliance"
	"note-auditor/internal/config"
	"note-auditor/internal/logger"
	"note-auditor/internal/patch"
	"note-auditor/internal/pdf"
	"note-auditor/internal/results"
	"note-auditor/internal/types"
)

// Options are the settings a command line can override.
type Options struct {
	ConfigPath string
	Backend    string
	EnvFile    string
}

// LoadConfig reads the .env file, the config file and the environment, in
// that order, applies overrides and validates the result.
func LoadConfig(opts Options) (*config.Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("cannot read env file", logger.String("path", envFile), logger.Err(err))
	}

	mgr := config.NewManager(opts.ConfigPath)
	if err := mgr.Load(); err != nil {
		return nil, err
	}
	cfg := mgr.Config()
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.GetLogger().SetLevel(logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// NoteFixer patches a note in place.
type NoteFixer interface {
	PatchInPlace(ctx context.Context, src string, a compliance.Analysis) (patch.Result, error)
}

// App holds the collaborators shared by the tools.
type App struct {
	cfg      *config.Config
	analyzer batch.Analyzer
	cache    *analysis.Cache
	patcher  *patch.Patcher
	fixer    NoteFixer
	extract  batch.Extractor
	validate func(path string) error
}

// New creates an App talking to the configured model endpoint.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	cm, err := analysis.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithModel(cfg, cm), nil
}

// NewWithModel creates an App around an existing chat model.
func NewWithModel(cfg *config.Config, cm analysis.ChatModel) *App {
	an := analysis.NewAnalyzer(cfg, cm)
	var cache *analysis.Cache
	if cfg.Batch.AnalysisCache != "" {
		cache = analysis.NewCache(cfg.Batch.AnalysisCache)
		if err := cache.Load(); err != nil {
			logger.Warn("analysis cache ignored", logger.String("path", cache.Path()), logger.Err(err))
			cache.Clear()
		}
		an.SetCache(cache)
	}
	p := patch.NewPatcher(cfg, an)
	return &App{
		cfg:      cfg,
		analyzer: an,
		cache:    cache,
		patcher:  p,
		fixer:    p,
		extract:  pdf.ExtractText,
		validate: pdf.Validate,
	}
}

// Config returns the configuration the App was built with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Close persists the analysis cache, if one is configured.
func (a *App) Close() error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Save()
}

// Runner returns a batch runner. Dry runs get no patcher.
func (a *App) Runner(dryRun bool) *batch.Runner {
	var p batch.Patcher
	if !dryRun {
		p = a.patcher
	}
	r := batch.NewRunner(a.cfg, a.analyzer, p)
	r.SetExtractor(a.extract)
	return r
}

// FixNote analyses one note and, when issues are found, corrects it in
// place.
func (a *App) FixNote(ctx context.Context, path string) (*results.DocumentResult, error) {
	name := filepath.Base(path)
	log := logger.With(logger.String("file", name))

	if err := a.validate(path); err != nil {
		return nil, err
	}
	res := &results.DocumentResult{Filename: name, Path: path, NoteType: compliance.NoteTherapy}
	if sum, err := results.CalculateFileMD5(path); err == nil {
		res.SourceMD5 = sum
	}

	pages, err := a.extract(path, 0)
	if err != nil {
		return nil, err
	}
	text, err := pdf.JoinPages(pages)
	if err != nil {
		return nil, err
	}

	an, err := a.analyzer.Analyze(ctx, text, name)
	if err != nil {
		return nil, err
	}
	if an.ParseStatus == compliance.ParseFailed {
		return nil, types.NewAppErrorWithDetails(types.ErrParse, "analysis response could not be parsed", an.ParseError, nil)
	}
	res.Analysis = &an

	if !an.AnyFound() {
		res.Status = results.StatusNoIssues
		log.Info("no compliance issues found")
		return res, nil
	}

	pr, err := a.fixer.PatchInPlace(ctx, path, an)
	if err != nil {
		return nil, err
	}
	res.Applied = pr.Applied
	res.Skipped = pr.Skipped
	res.VerificationIssues = pr.Issues
	res.CorrectionsMade = pr.Fixed
	res.OutputPath = pr.OutputPath
	switch {
	case !pr.Fixed:
		res.Status = results.StatusNotFixed
	case pr.VerificationPassed:
		res.Status = results.StatusCorrected
	default:
		res.Status = results.StatusNeedsReview
	}
	return res, nil
}
