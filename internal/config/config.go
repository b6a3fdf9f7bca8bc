// Package config provides configuration management for the note auditor.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"note-auditor/internal/compliance"
	"note-auditor/internal/logger"
	"note-auditor/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "note-auditor-config.json"
	// EnvOpenAIAPIKey is the environment variable name for OpenAI API key
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	// EnvOpenAIBaseURL is the environment variable name for OpenAI base URL
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	// EnvOpenAIModel is the environment variable name for the model
	EnvOpenAIModel = "OPENAI_MODEL"
	// EnvConfigPath points at a JSON config file
	EnvConfigPath = "NOTE_AUDITOR_CONFIG"
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the default OpenAI model to use
	DefaultModel = "gpt-4o"
	// DefaultRequestTimeout bounds one analysis call
	DefaultRequestTimeout = 120 * time.Second
	// DefaultGoalsTemperature is used when synthesising treatment goals
	DefaultGoalsTemperature = 0.3
	// DefaultGoalsInputRunes is how much note text the goals prompt receives
	DefaultGoalsInputRunes = 2000
	// DefaultPrognosisAnchor ends the goals section
	DefaultPrognosisAnchor = "OVERALL PROGNOSIS"
	// DefaultRasterDPI is the render resolution for preserved page regions
	DefaultRasterDPI = 150
	// DefaultPauseEvery is how many documents are processed between pauses
	DefaultPauseEvery = 5
	// DefaultPause is the rate-limit pause
	DefaultPause = 2 * time.Second
	// DefaultClassifyWorkers bounds the classification pre-pass
	DefaultClassifyWorkers = 4
	// DefaultClassifyPages is how many leading pages the classifier reads
	DefaultClassifyPages = 2
	// DefaultReportDir holds reports and the failure ledger
	DefaultReportDir = "compliance_reports"
)

// Locator policies.
const (
	LocateFirst = "first"
	LocateAll   = "all"
)

// Backends.
const (
	BackendOverlay = "overlay"
	BackendMuPDF   = "mupdf"
)

// DefaultGoalHeaders are tried in order when locating the first goal.
var DefaultGoalHeaders = []string{"Goal #1", "Goal 1", "Goal#1", "Goal"}

// Duration is a time.Duration that reads and writes JSON as "2s".
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "2s" style strings or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return err
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Policies holds the behaviours that used to be implicit.
type Policies struct {
	// Locator is "first" (only the first hit is patched) or "all".
	Locator string `json:"locator"`
	// ExpectedSupervisorLines is how many "Supervised by:" lines must
	// survive a supervision fix. Zero disables the check.
	ExpectedSupervisorLines int    `json:"expected_supervisor_lines"`
	RenderedByLabel         string `json:"rendered_by_label"`
	SupervisedByLabel       string `json:"supervised_by_label"`
}

// Batch controls the batch runner.
type Batch struct {
	PauseEvery      int      `json:"pause_every"`
	Pause           Duration `json:"pause"`
	ClassifyWorkers int      `json:"classify_workers"`
	ClassifyPages   int      `json:"classify_pages"`
	ReportDir       string   `json:"report_dir"`
	// AnalysisCache is a JSON file of earlier analyses keyed by note text.
	// Empty disables caching.
	AnalysisCache string `json:"analysis_cache,omitempty"`
}

// Config is the complete configuration. It is built once and passed
// explicitly to every component.
type Config struct {
	OpenAIAPIKey        string   `json:"openai_api_key,omitempty"`
	OpenAIBaseURL       string   `json:"openai_base_url"`
	OpenAIModel         string   `json:"openai_model"`
	RequestTimeout      Duration `json:"request_timeout"`
	AnalysisTemperature float32  `json:"analysis_temperature"`
	GoalsTemperature    float32  `json:"goals_temperature"`
	GoalsInputRunes     int      `json:"goals_input_runes"`

	Credentials   []string                 `json:"credentials"`
	TherapyCodes  []string                 `json:"therapy_codes"`
	SigningWindow compliance.SigningWindow `json:"signing_window"`

	GoalHeaders     []string `json:"goal_headers"`
	PrognosisAnchor string   `json:"prognosis_anchor"`
	RasterDPI       int      `json:"raster_dpi"`

	Backend  string   `json:"backend"`
	Policies Policies `json:"policies"`
	Batch    Batch    `json:"batch"`

	LogFile  string `json:"log_file,omitempty"`
	LogLevel string `json:"log_level,omitempty"`
}

// Default returns a Config with default values and no API key.
func Default() *Config {
	return &Config{
		OpenAIBaseURL:       DefaultBaseURL,
		OpenAIModel:         DefaultModel,
		RequestTimeout:      Duration(DefaultRequestTimeout),
		AnalysisTemperature: 0,
		GoalsTemperature:    DefaultGoalsTemperature,
		GoalsInputRunes:     DefaultGoalsInputRunes,
		Credentials:         append([]string(nil), compliance.DefaultTherapyCredentials...),
		TherapyCodes:        append([]string(nil), compliance.TherapyCPTCodes...),
		SigningWindow:       compliance.DefaultSigningWindow,
		GoalHeaders:         append([]string(nil), DefaultGoalHeaders...),
		PrognosisAnchor:     DefaultPrognosisAnchor,
		RasterDPI:           DefaultRasterDPI,
		Backend:             BackendOverlay,
		Policies: Policies{
			Locator:                 LocateFirst,
			ExpectedSupervisorLines: 1,
			RenderedByLabel:         "Rendered by:",
			SupervisedByLabel:       "Supervised by:",
		},
		Batch: Batch{
			PauseEvery:      DefaultPauseEvery,
			Pause:           Duration(DefaultPause),
			ClassifyWorkers: DefaultClassifyWorkers,
			ClassifyPages:   DefaultClassifyPages,
			ReportDir:       DefaultReportDir,
		},
		LogLevel: "info",
	}
}

// fillDefaults replaces empty fields with their defaults. Numeric fields
// where zero is meaningful are left alone.
func (c *Config) fillDefaults() {
	d := Default()
	if c.OpenAIBaseURL == "" {
		c.OpenAIBaseURL = d.OpenAIBaseURL
	}
	if c.OpenAIModel == "" {
		c.OpenAIModel = d.OpenAIModel
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.GoalsInputRunes <= 0 {
		c.GoalsInputRunes = d.GoalsInputRunes
	}
	if len(c.Credentials) == 0 {
		c.Credentials = d.Credentials
	}
	if len(c.TherapyCodes) == 0 {
		c.TherapyCodes = d.TherapyCodes
	}
	if c.SigningWindow == (compliance.SigningWindow{}) {
		c.SigningWindow = d.SigningWindow
	}
	if len(c.GoalHeaders) == 0 {
		c.GoalHeaders = d.GoalHeaders
	}
	if c.PrognosisAnchor == "" {
		c.PrognosisAnchor = d.PrognosisAnchor
	}
	if c.RasterDPI <= 0 {
		c.RasterDPI = d.RasterDPI
	}
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.Policies.Locator == "" {
		c.Policies.Locator = d.Policies.Locator
	}
	if c.Policies.RenderedByLabel == "" {
		c.Policies.RenderedByLabel = d.Policies.RenderedByLabel
	}
	if c.Policies.SupervisedByLabel == "" {
		c.Policies.SupervisedByLabel = d.Policies.SupervisedByLabel
	}
	if c.Batch.ClassifyWorkers <= 0 {
		c.Batch.ClassifyWorkers = d.Batch.ClassifyWorkers
	}
	if c.Batch.ClassifyPages <= 0 {
		c.Batch.ClassifyPages = d.Batch.ClassifyPages
	}
	if c.Batch.ReportDir == "" {
		c.Batch.ReportDir = d.Batch.ReportDir
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate checks the configuration and returns an ErrConfig AppError
// describing the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return types.NewAppErrorWithDetails(types.ErrConfig, "missing API key",
			"set "+EnvOpenAIAPIKey+" in the environment or a .env file", nil)
	}
	if c.CredentialSet().Len() == 0 {
		return types.NewAppError(types.ErrConfig, "credential list is empty", nil)
	}
	for _, code := range c.TherapyCodes {
		if !compliance.IsCPTCode(code) {
			return types.Errorf(types.ErrConfig, "invalid therapy CPT code %q", code)
		}
	}
	if err := c.SigningWindow.Validate(); err != nil {
		return types.NewAppError(types.ErrConfig, "invalid signing window", err)
	}
	switch c.Policies.Locator {
	case LocateFirst, LocateAll:
	default:
		return types.Errorf(types.ErrConfig, "unknown locator policy %q", c.Policies.Locator)
	}
	if c.Policies.ExpectedSupervisorLines < 0 {
		return types.Errorf(types.ErrConfig, "expected supervisor lines must not be negative, got %d", c.Policies.ExpectedSupervisorLines)
	}
	switch c.Backend {
	case BackendOverlay, BackendMuPDF:
	default:
		return types.Errorf(types.ErrConfig, "unknown backend %q", c.Backend)
	}
	if c.Batch.PauseEvery < 0 || c.Batch.Pause < 0 {
		return types.NewAppError(types.ErrConfig, "batch pause settings must not be negative", nil)
	}
	return nil
}

// CredentialSet returns the configured credentials as a matcher.
func (c *Config) CredentialSet() *compliance.Credentials {
	return compliance.NewCredentials(c.Credentials)
}

// Manager loads and saves a Config.
type Manager struct {
	configPath string
	config     *Config
}

// NewManager creates a Manager for configPath. An empty path falls back to
// NOTE_AUDITOR_CONFIG and then to a file in the working directory.
func NewManager(configPath string) *Manager {
	if configPath == "" {
		configPath = os.Getenv(EnvConfigPath)
	}
	if configPath == "" {
		configPath = DefaultConfigFileName
	}
	return &Manager{configPath: configPath, config: Default()}
}

// Load reads the config file if it exists, then applies environment
// overrides and fills defaults. A missing file is not an error; a
// malformed one is.
func (m *Manager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	cfg := Default()
	data, err := os.ReadFile(m.configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			logger.Error("invalid config file format", err, logger.String("path", m.configPath))
			return types.NewAppErrorWithDetails(types.ErrConfig, "invalid config file", m.configPath, err)
		}
		logger.Info("configuration loaded", logger.String("path", m.configPath))
	case os.IsNotExist(err):
		logger.Debug("config file not found, using defaults", logger.String("path", m.configPath))
	default:
		logger.Error("failed to read config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to read config file", err)
	}

	if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv(EnvOpenAIBaseURL); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv(EnvOpenAIModel); v != "" {
		cfg.OpenAIModel = v
	}
	cfg.fillDefaults()

	m.config = cfg
	logger.Debug("configuration ready",
		logger.Int("apiKeyLength", len(cfg.OpenAIAPIKey)),
		logger.String("baseURL", cfg.OpenAIBaseURL),
		logger.String("model", cfg.OpenAIModel),
		logger.String("backend", cfg.Backend))
	return nil
}

// Save writes the current configuration without the API key.
func (m *Manager) Save() error {
	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	out := *m.config
	out.OpenAIAPIKey = ""
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}
	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved", logger.String("path", m.configPath))
	return nil
}

// Config returns the current configuration.
func (m *Manager) Config() *Config {
	return m.config
}

// Path returns the path to the config file.
func (m *Manager) Path() string {
	return m.configPath
}
