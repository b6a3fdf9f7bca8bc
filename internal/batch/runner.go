// Package batch runs the audit over a folder of notes: discovery,
// classification, analysis, correction, sorting and reporting.
package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"note-auditor/internal/analysis"
	"note-auditor/internal/compliance"
	"note-auditor/internal/config"
	errmgr "note-auditor/internal/errors"
	"note-auditor/internal/logger"
	"note-auditor/internal/patch"
	"note-auditor/internal/pdf"
	"note-auditor/internal/report"
	"note-auditor/internal/results"
	"note-auditor/internal/types"
)

// Folder names created under the input directory in sort mode.
const (
	TherapyFolder   = "therapy_notes"
	MedicalFolder   = "medical_notes"
	ProcessedFolder = "processed"
)

// Analyzer reviews note text.
type Analyzer interface {
	Analyze(ctx context.Context, text, filename string) (compliance.Analysis, error)
	AnalyzeMDM(ctx context.Context, text, filename string) (analysis.MDMResult, error)
}

// Patcher writes a corrected copy of a note.
type Patcher interface {
	PatchCopy(ctx context.Context, src string, a compliance.Analysis) (patch.Result, error)
}

// Extractor returns the text of up to maxPages pages; zero means all.
type Extractor func(path string, maxPages int) ([]string, error)

// ProgressCallback is called after each document.
type ProgressCallback func(done, total int, filename string)

// Options select the run mode.
type Options struct {
	// Sort moves inputs and outputs into the therapy, medical and
	// processed folders.
	Sort bool
	// DryRun analyses and reports without patching or moving files.
	DryRun bool
}

// Outcome is what a run produced.
type Outcome struct {
	RunID     string
	Summary   results.Summary
	Report    report.Paths
	Cancelled bool
}

// Runner processes a folder of notes sequentially.
type Runner struct {
	cfg        *config.Config
	analyzer   Analyzer
	patcher    Patcher
	classifier *compliance.Classifier
	extract    Extractor
	progress   ProgressCallback
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// NewRunner creates a Runner. The patcher may be nil for dry runs.
func NewRunner(cfg *config.Config, a Analyzer, p Patcher) *Runner {
	return &Runner{
		cfg:        cfg,
		analyzer:   a,
		patcher:    p,
		classifier: compliance.NewClassifier(cfg.CredentialSet(), cfg.TherapyCodes),
		extract:    pdf.ExtractText,
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// SetExtractor replaces the text extractor.
func (r *Runner) SetExtractor(e Extractor) {
	r.extract = e
}

// SetProgressCallback installs a per-document progress hook.
func (r *Runner) SetProgressCallback(cb ProgressCallback) {
	r.progress = cb
}

// Discover lists the PDFs directly inside dir, skipping earlier outputs.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewAppErrorWithDetails(types.ErrFileNotFound, "input folder not found", dir, err)
		}
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "cannot read input folder", dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".pdf") || patch.IsCorrectedName(name) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	return files, nil
}

// ReportDir resolves the configured report folder against root.
func (r *Runner) ReportDir(root string) string {
	if filepath.IsAbs(r.cfg.Batch.ReportDir) {
		return r.cfg.Batch.ReportDir
	}
	return filepath.Join(root, r.cfg.Batch.ReportDir)
}

// Run audits every PDF in root. A cancelled context stops after the current
// document; the report is still written and ctx.Err() is returned with the
// outcome.
func (r *Runner) Run(ctx context.Context, root string, opts Options) (*Outcome, error) {
	files, err := Discover(root)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrFileNotFound, "no PDF files found", root, nil)
	}

	st := &run{
		Runner: r,
		id:     uuid.NewString(),
		opts:   opts,
		root:   root,
	}
	st.log = logger.With(logger.String("run", st.id))
	if opts.DryRun {
		st.opts.Sort = false
	}
	reportDir := r.ReportDir(root)
	if st.rm, err = results.NewResultManager(reportDir); err != nil {
		return nil, types.NewAppError(types.ErrInternal, "cannot prepare report folder", err)
	}
	if st.em, err = errmgr.NewErrorManager(reportDir); err != nil {
		return nil, types.NewAppError(types.ErrInternal, "cannot open error ledger", err)
	}
	if st.opts.Sort {
		if err := st.setupFolders(); err != nil {
			return nil, err
		}
	}

	st.log.Info("batch started",
		logger.String("root", root),
		logger.Int("files", len(files)),
		logger.Bool("sort", st.opts.Sort),
		logger.Bool("dryRun", opts.DryRun))
	start := time.Now()

	classes := r.classify(ctx, files)

	cancelled := false
	for i, path := range files {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		res := st.process(ctx, path, classes[i])
		st.rm.Add(res)
		if r.progress != nil {
			r.progress(i+1, len(files), res.Filename)
		}

		every := r.cfg.Batch.PauseEvery
		if every > 0 && (i+1)%every == 0 && i+1 < len(files) {
			st.log.Debug("pausing for rate limits", logger.Duration("pause", r.cfg.Batch.Pause.Std()))
			if err := r.sleep(ctx, r.cfg.Batch.Pause.Std()); err != nil {
				cancelled = true
				break
			}
		}
	}
	if cancelled {
		st.log.Warn("batch cancelled", logger.Int("processed", len(st.rm.Results())), logger.Int("files", len(files)))
	}

	now := r.now()
	data := report.NewData(st.id, now, st.rm.Results(), st.em.ListErrors())
	data.DryRun = opts.DryRun
	paths, err := report.Write(reportDir, report.ReportName(now), data, st.rm)
	if err != nil {
		return nil, err
	}

	out := &Outcome{RunID: st.id, Summary: data.Summary, Report: paths, Cancelled: cancelled}
	st.log.Info("batch finished",
		logger.Int("total", out.Summary.Total),
		logger.Int("withIssues", out.Summary.WithIssues),
		logger.Int("corrected", out.Summary.Corrected),
		logger.Int("needsReview", out.Summary.NeedsReview),
		logger.Int("errors", out.Summary.Errors),
		logger.Duration("elapsed", time.Since(start)))
	if cancelled {
		return out, ctx.Err()
	}
	return out, nil
}

// classified is the pre-pass verdict for one file.
type classified struct {
	compliance.Classification
	err error
}

// classify reads the leading pages of every file concurrently. Failures
// are kept per file and reported when the file is processed.
func (r *Runner) classify(ctx context.Context, files []string) []classified {
	out := make([]classified, len(files))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Batch.ClassifyWorkers)

	for i, path := range files {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				out[i].err = err
				return nil
			}
			pages, err := r.extract(path, r.cfg.Batch.ClassifyPages)
			if err != nil {
				out[i].err = err
				return nil
			}
			out[i].Classification = r.classifier.Classify(strings.Join(pages, "\n"))
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

// run is the state of one Run call.
type run struct {
	*Runner
	id   string
	opts Options
	root string
	rm   *results.ResultManager
	em   *errmgr.ErrorManager
	log  logger.Logger
}

func (st *run) folder(name string) string {
	return filepath.Join(st.root, name)
}

func (st *run) setupFolders() error {
	for _, name := range []string{TherapyFolder, MedicalFolder, ProcessedFolder} {
		if err := os.MkdirAll(st.folder(name), 0755); err != nil {
			return types.NewAppErrorWithDetails(types.ErrInternal, "cannot create folder", name, err)
		}
	}
	return nil
}

// process runs one document to completion. Every failure is captured in
// the returned result.
func (st *run) process(ctx context.Context, path string, cls classified) *results.DocumentResult {
	name := filepath.Base(path)
	log := st.log.With(logger.String("file", name))
	res := &results.DocumentResult{
		Filename:   name,
		Path:       path,
		NoteType:   cls.Type,
		Credential: cls.Credential,
	}
	if sum, err := results.CalculateFileMD5(path); err == nil {
		res.SourceMD5 = sum
	} else {
		log.Warn("cannot hash source", logger.Err(err))
	}

	if prev, ok := st.em.GetError(name); ok {
		if err := st.em.IncrementRetry(name); err != nil {
			log.Warn("cannot update retry count", logger.Err(err))
		}
		log.Info("retrying earlier failure",
			logger.String("stage", string(prev.Stage)),
			logger.String("previousRun", prev.RunID),
			logger.Int("retry", prev.RetryCount+1))
	}

	if cls.err != nil {
		return st.fail(res, log, errmgr.StageExtract, cls.err, false)
	}
	text, err := st.fullText(path)
	if err != nil {
		return st.fail(res, log, errmgr.StageExtract, err, false)
	}

	if cls.Type == compliance.NoteMedical {
		return st.processMedical(ctx, res, log, text)
	}
	res.NoteType = compliance.NoteTherapy
	log.Info("therapy note", logger.String("credential", cls.Credential))

	a, err := st.analyzer.Analyze(ctx, text, name)
	if err != nil {
		return st.fail(res, log, errmgr.StageAnalysis, err, analysis.IsRetryable(err))
	}
	a.NoteType = compliance.NoteTherapy
	res.Analysis = &a

	if a.ParseStatus == compliance.ParseFailed {
		perr := types.NewAppErrorWithDetails(types.ErrParse, "analysis response could not be parsed", a.ParseError, nil)
		st.fail(res, log, errmgr.StageParse, perr, true)
		st.sortInto(res, log, TherapyFolder)
		return res
	}

	switch {
	case !a.AnyFound():
		res.Status = results.StatusNoIssues
	case st.opts.DryRun || st.patcher == nil:
		res.Status = results.StatusAnalyzed
	default:
		st.correct(ctx, res, log, a)
	}
	switch res.Status {
	case results.StatusNoIssues, results.StatusAnalyzed, results.StatusCorrected:
		st.clearError(name, log)
	}
	st.sortInto(res, log, TherapyFolder)
	return res
}

func (st *run) processMedical(ctx context.Context, res *results.DocumentResult, log logger.Logger, text string) *results.DocumentResult {
	log.Info("medical note, assessing MDM")
	mdm, err := st.analyzer.AnalyzeMDM(ctx, text, res.Filename)
	if err != nil {
		return st.fail(res, log, errmgr.StageAnalysis, err, analysis.IsRetryable(err))
	}
	res.MDM = &mdm
	res.Status = results.StatusAnalyzed
	if mdm.ParseStatus == compliance.ParseFailed {
		perr := types.NewAppErrorWithDetails(types.ErrParse, "MDM response could not be parsed", mdm.ParseError, nil)
		st.fail(res, log, errmgr.StageParse, perr, true)
	} else {
		st.clearError(res.Filename, log)
	}
	st.sortInto(res, log, MedicalFolder)
	return res
}

func (st *run) correct(ctx context.Context, res *results.DocumentResult, log logger.Logger, a compliance.Analysis) {
	pr, err := st.patcher.PatchCopy(ctx, res.Path, a)
	if err != nil {
		st.fail(res, log, errmgr.StagePatch, err, false)
		res.Status = results.StatusNotFixed
		return
	}
	res.Applied = pr.Applied
	res.Skipped = pr.Skipped
	res.OutputPath = pr.OutputPath
	res.VerificationIssues = pr.Issues
	res.CorrectionsMade = pr.Fixed

	switch {
	case !pr.Fixed:
		res.Status = results.StatusNotFixed
		log.Warn("no correction could be applied", logger.Int("skipped", len(pr.Skipped)))
	case pr.VerificationPassed:
		res.Status = results.StatusCorrected
	default:
		res.Status = results.StatusNeedsReview
		verr := types.NewAppErrorWithDetails(types.ErrVerify, "corrected output needs review", strings.Join(pr.Issues, "; "), nil)
		if err := st.em.RecordError(res.Filename, res.Path, st.id, errmgr.StageVerify, verr, false); err != nil {
			log.Warn("cannot record verification issue", logger.Err(err))
		}
	}
}

// fail marks res as failed at stage and records it in the ledger.
func (st *run) fail(res *results.DocumentResult, log logger.Logger, stage errmgr.ErrorStage, err error, canRetry bool) *results.DocumentResult {
	res.Status = results.StatusError
	res.Error = err.Error()
	res.ErrorStage = string(stage)
	log.Error("document failed", err, logger.String("stage", string(stage)))
	if errors.Is(err, context.Canceled) {
		return res
	}
	if rerr := st.em.RecordError(res.Filename, res.Path, st.id, stage, err, canRetry); rerr != nil {
		log.Warn("cannot record failure", logger.Err(rerr))
	}
	return res
}

func (st *run) clearError(name string, log logger.Logger) {
	if err := st.em.RemoveError(name); err != nil {
		log.Warn("cannot clear earlier failure", logger.Err(err))
	}
}

// sortInto moves the source into folder and any corrected output into the
// processed folder. Failures leave files where they are.
func (st *run) sortInto(res *results.DocumentResult, log logger.Logger, folder string) {
	if !st.opts.Sort {
		return
	}
	if res.OutputPath != "" {
		moved, err := moveInto(st.folder(ProcessedFolder), res.OutputPath)
		if err != nil {
			st.sortFailed(res, log, err)
			return
		}
		res.OutputPath = moved
	}
	moved, err := moveInto(st.folder(folder), res.Path)
	if err != nil {
		st.sortFailed(res, log, err)
		return
	}
	res.Path = moved
}

func (st *run) sortFailed(res *results.DocumentResult, log logger.Logger, err error) {
	log.Warn("cannot sort file", logger.Err(err))
	if rerr := st.em.RecordError(res.Filename, res.Path, st.id, errmgr.StageSort, err, true); rerr != nil {
		log.Warn("cannot record failure", logger.Err(rerr))
	}
}

func (st *run) fullText(path string) (string, error) {
	pages, err := st.extract(path, 0)
	if err != nil {
		return "", err
	}
	return pdf.JoinPages(pages)
}

func moveInto(dir, path string) (string, error) {
	dest := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
