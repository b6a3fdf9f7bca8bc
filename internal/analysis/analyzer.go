package analysis

import (
	"context"
	"errors"
	"strings"
	"time"

	"note-auditor/internal/compliance"
	"note-auditor/internal/config"
	"note-auditor/internal/logger"
)

// Analyzer runs the model-backed reviews of a note.
type Analyzer struct {
	model ChatModel
	cfg   *config.Config
	creds *compliance.Credentials
	cache *Cache
}

// NewAnalyzer creates an Analyzer that uses cm for every call.
func NewAnalyzer(cfg *config.Config, cm ChatModel) *Analyzer {
	return &Analyzer{model: cm, cfg: cfg, creds: cfg.CredentialSet()}
}

// SetCache makes Analyze reuse earlier analyses of identical text.
func (a *Analyzer) SetCache(c *Cache) {
	a.cache = c
}

// Analyze reviews a therapy note. Malformed model output never produces an
// error: it is reported through the analysis ParseStatus. Errors are
// transport failures only.
func (a *Analyzer) Analyze(ctx context.Context, text, filename string) (compliance.Analysis, error) {
	if a.cache != nil {
		if cached, ok := a.cache.Get(a.cfg.OpenAIModel, text); ok {
			logger.Debug("analysis served from cache", logger.String("file", filename))
			cached.Filename = filename
			return cached, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout.Std())
	defer cancel()

	start := time.Now()
	prompt := buildAnalysisPrompt(filename, text, a.creds.List(), a.cfg.SigningWindow)
	raw, err := complete(ctx, a.model, analysisSystemPrompt, prompt, a.cfg.AnalysisTemperature)
	if err != nil {
		logger.Error("analysis request failed", err, logger.String("file", filename))
		return compliance.Analysis{}, err
	}

	res := Parse(raw, filename)
	if res.Status != compliance.ParseFailed {
		Normalize(&res.Analysis, a.cfg.SigningWindow)
	}

	fields := []logger.Field{
		logger.String("file", filename),
		logger.String("parse", string(res.Status)),
		logger.Duration("elapsed", time.Since(start)),
	}
	switch res.Status {
	case compliance.ParseFailed:
		logger.Warn("analysis response could not be parsed", append(fields, logger.Err(res.Err))...)
	case compliance.ParseRecovered:
		logger.Info("analysis response recovered", append(fields, logger.Err(res.Err))...)
	default:
		logger.Debug("analysis parsed", fields...)
	}
	if a.cache != nil {
		a.cache.Set(a.cfg.OpenAIModel, text, filename, res.Analysis)
	}
	return res.Analysis, nil
}

// GoalLines is a block of treatment goal text, one rendered line per entry.
type GoalLines []string

// GenerateGoals writes replacement treatment goals for a note whose goals
// finding reported fewer than two goals. A single existing goal is kept as
// Goal #1. When the model fails the canned template is returned; only a
// cancelled context is reported as an error.
func (a *Analyzer) GenerateGoals(ctx context.Context, text string, goals compliance.Finding) (GoalLines, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout.Std())
	defer cancel()

	prompt := buildGoalsPrompt(truncateRunes(text, a.cfg.GoalsInputRunes), goals.GoalsFound, goals.GoalsCount)
	out, err := complete(ctx, a.model, goalsSystemPrompt, prompt, a.cfg.GoalsTemperature)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		logger.Warn("goal generation failed, using template", logger.Err(err))
		return FallbackGoals(goals), nil
	}

	lines := splitLines(out)
	if len(lines) == 0 {
		return FallbackGoals(goals), nil
	}
	return lines, nil
}

// FallbackGoals is the canned two-goal block used when generation fails.
func FallbackGoals(goals compliance.Finding) GoalLines {
	second := []string{
		`Goal #2: "I want to build healthier routines and relationships."`,
		"Objective: Client will use one identified coping strategy at least 2 times a week.",
		"Tx Modality: CBT, DBT, Motivational Interviewing",
		"Progress: Client is identifying triggers and practicing coping strategies in session.",
	}
	if goals.GoalsCount == 1 && len(goals.GoalsFound) > 0 {
		return append(splitLines(goals.GoalsFound[0]), second...)
	}
	first := []string{
		`Goal #1: "I want to manage my symptoms and feel more in control of my life."`,
		"Objective: Client will practice one skill learned in session at least 1 time a week.",
		"Tx Modality: CBT, DBT, Motivational Interviewing",
		"Progress: Client is engaged in treatment and beginning to apply skills outside of session.",
	}
	return append(first, second...)
}

func splitLines(s string) GoalLines {
	var out GoalLines
	for _, line := range strings.Split(stripCodeFence(s), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// MDMAnalysis is the element-by-element MDM review.
type MDMAnalysis struct {
	ProblemsComplexity string   `json:"problems_complexity"`
	DataReviewed       string   `json:"data_reviewed"`
	RiskLevel          string   `json:"risk_level"`
	CriteriaMet        []string `json:"criteria_met"`
}

// MDMResult is the review of a medical note against moderate MDM.
type MDMResult struct {
	Filename                 string                 `json:"filename"`
	MeetsModerateMDM         bool                   `json:"meets_moderate_mdm"`
	Analysis                 MDMAnalysis            `json:"mdm_analysis"`
	CurrentAssessment        string                 `json:"current_assessment,omitempty"`
	SuggestedOverallProgress string                 `json:"suggested_overall_progress,omitempty"`
	CurrentPlan              string                 `json:"current_plan,omitempty"`
	SuggestedImprovedPlan    string                 `json:"suggested_improved_plan,omitempty"`
	KeyFindings              []string               `json:"key_findings,omitempty"`
	Recommendations          []string               `json:"recommendations,omitempty"`
	ParseStatus              compliance.ParseStatus `json:"parse_status"`
	ParseError               string                 `json:"parse_error,omitempty"`
}

// AnalyzeMDM reviews a medical note for moderate medical decision making.
func (a *Analyzer) AnalyzeMDM(ctx context.Context, text, filename string) (MDMResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout.Std())
	defer cancel()

	raw, err := complete(ctx, a.model, mdmSystemPrompt, buildMDMPrompt(filename, text), a.cfg.AnalysisTemperature)
	if err != nil {
		logger.Error("mdm request failed", err, logger.String("file", filename))
		return MDMResult{}, err
	}
	res := ParseMDM(raw, filename)
	if res.ParseStatus == compliance.ParseFailed {
		logger.Warn("mdm response could not be parsed", logger.String("file", filename))
	}
	return res, nil
}

// ParseMDM decodes an MDM response with the same strict-then-recover
// approach as Parse, without schema validation.
func ParseMDM(raw, filename string) MDMResult {
	var m map[string]interface{}
	status := compliance.ParseOK
	var err error
	if m, err = decodeMap(stripCodeFence(raw)); err != nil {
		status = compliance.ParseFailed
		if frag, ok := extractObject(raw); ok {
			if m, err = decodeMap(repairJSON(frag)); err == nil {
				status = compliance.ParseRecovered
			}
		}
	}
	if status == compliance.ParseFailed {
		return MDMResult{Filename: filename, ParseStatus: status, ParseError: "could not parse MDM response"}
	}

	r := MDMResult{
		Filename:                 filename,
		MeetsModerateMDM:         asBool(m["meets_moderate_mdm"]),
		CurrentAssessment:        asString(m["current_assessment"]),
		SuggestedOverallProgress: asString(m["suggested_overall_progress"]),
		CurrentPlan:              asString(m["current_plan"]),
		SuggestedImprovedPlan:    asString(m["suggested_improved_plan"]),
		KeyFindings:              asStrings(m["key_findings"]),
		Recommendations:          asStrings(m["recommendations"]),
		ParseStatus:              status,
	}
	if d, ok := m["mdm_analysis"].(map[string]interface{}); ok {
		r.Analysis = MDMAnalysis{
			ProblemsComplexity: asString(d["problems_complexity"]),
			DataReviewed:       asString(d["data_reviewed"]),
			RiskLevel:          asString(d["risk_level"]),
			CriteriaMet:        asStrings(d["criteria_met"]),
		}
	}
	return r
}
