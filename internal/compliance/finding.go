// Package compliance holds the clinical-note compliance model: findings produced
// by analysis, the CPT duration table, the signing-date window, credential
// handling and the therapy/medical note classifier.
package compliance

// Kind identifies one of the four compliance checks.
type Kind string

const (
	KindDate        Kind = "date"
	KindCPT         Kind = "cpt_code"
	KindGoals       Kind = "goals"
	KindSupervision Kind = "supervision"
)

// Kinds lists every kind in patch order.
var Kinds = []Kind{KindDate, KindCPT, KindGoals, KindSupervision}

// IssueKey is the JSON key the analysis response uses for the kind.
func (k Kind) IssueKey() string {
	switch k {
	case KindDate:
		return "date_issue"
	case KindCPT:
		return "cpt_issue"
	case KindGoals:
		return "goals_issue"
	case KindSupervision:
		return "supervision_issue"
	}
	return string(k)
}

// Label is a short human-readable name used in reports.
func (k Kind) Label() string {
	switch k {
	case KindDate:
		return "Signing date"
	case KindCPT:
		return "CPT code"
	case KindGoals:
		return "Treatment goals"
	case KindSupervision:
		return "Supervision"
	}
	return string(k)
}

// Finding is one compliance issue instance. Payload fields are only
// meaningful for their own kind.
type Finding struct {
	Kind            Kind   `json:"kind"`
	Found           bool   `json:"found"`
	Description     string `json:"description,omitempty"`
	OriginalText    string `json:"original_text,omitempty"`
	ReplacementText string `json:"replacement_text,omitempty"`

	// date
	ServiceDate    string `json:"service_date,omitempty"`
	SigningDate    string `json:"signing_date,omitempty"`
	CorrectedDate  string `json:"corrected_date,omitempty"`
	DaysDifference *int   `json:"days_difference,omitempty"`

	// cpt_code
	InitialVisit bool   `json:"is_initial_visit,omitempty"`
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
	Duration     int    `json:"duration_minutes,omitempty"`
	CurrentCode  string `json:"current_code,omitempty"`
	CorrectCode  string `json:"correct_code,omitempty"`

	// goals; GoalsCount is -1 when the response did not report a count
	GoalsCount       int      `json:"goals_count"`
	GoalsFound       []string `json:"goals_found,omitempty"`
	FormattingIssues []string `json:"formatting_issues,omitempty"`

	// supervision
	SignerName        string   `json:"signer_name,omitempty"`
	SignerCredentials string   `json:"signer_credentials,omitempty"`
	RenderedBy        string   `json:"rendered_by,omitempty"`
	SupervisedBy      []string `json:"supervised_by,omitempty"`
}

// RenderedByLine is the replacement supervision line for the signer.
func (f Finding) RenderedByLine(label string) string {
	return label + " " + f.SignerName + ", " + f.SignerCredentials
}

// ParseStatus tags how an analysis response was decoded.
type ParseStatus string

const (
	ParseOK        ParseStatus = "ok"
	ParseRecovered ParseStatus = "recovered"
	ParseFailed    ParseStatus = "failed"
)

// NoteType is the classifier's verdict for a document.
type NoteType string

const (
	NoteTherapy NoteType = "therapy"
	NoteMedical NoteType = "medical"
	NoteUnknown NoteType = "unknown"
)

// Analysis is the collaborator's result for one document: exactly one
// finding per kind.
type Analysis struct {
	Filename    string      `json:"filename"`
	NoteType    NoteType    `json:"note_type,omitempty"`
	ServiceDate string      `json:"service_date,omitempty"`
	SigningDate string      `json:"signing_date,omitempty"`
	Date        Finding     `json:"date_issue"`
	CPT         Finding     `json:"cpt_issue"`
	Goals       Finding     `json:"goals_issue"`
	Supervision Finding     `json:"supervision_issue"`
	ParseStatus ParseStatus `json:"parse_status"`
	ParseError  string      `json:"parse_error,omitempty"`
	RawResponse string      `json:"raw_response,omitempty"`
}

// NewAnalysis returns an analysis with every kind present and not found.
func NewAnalysis(filename string) Analysis {
	return Analysis{
		Filename:    filename,
		Date:        Finding{Kind: KindDate},
		CPT:         Finding{Kind: KindCPT},
		Goals:       Finding{Kind: KindGoals, GoalsCount: -1},
		Supervision: Finding{Kind: KindSupervision},
		ParseStatus: ParseOK,
	}
}

// Finding returns the finding of the given kind.
func (a *Analysis) Finding(k Kind) *Finding {
	switch k {
	case KindDate:
		return &a.Date
	case KindCPT:
		return &a.CPT
	case KindGoals:
		return &a.Goals
	case KindSupervision:
		return &a.Supervision
	}
	return nil
}

// Findings returns all four findings in patch order.
func (a Analysis) Findings() []Finding {
	return []Finding{a.Date, a.CPT, a.Goals, a.Supervision}
}

// AnyFound reports whether at least one kind was flagged.
func (a Analysis) AnyFound() bool {
	return a.Date.Found || a.CPT.Found || a.Goals.Found || a.Supervision.Found
}

// FoundKinds lists the flagged kinds in patch order.
func (a Analysis) FoundKinds() []Kind {
	var kinds []Kind
	for _, f := range a.Findings() {
		if f.Found {
			kinds = append(kinds, f.Kind)
		}
	}
	return kinds
}
