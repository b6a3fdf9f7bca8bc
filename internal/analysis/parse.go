package analysis

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"note-auditor/internal/compliance"
	"note-auditor/internal/types"
)

//go:embed analysis.schema.json
var analysisSchemaJSON []byte

var (
	schemaOnce     sync.Once
	analysisSchema *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("analysis.schema.json", bytes.NewReader(analysisSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		analysisSchema, schemaErr = compiler.Compile("analysis.schema.json")
	})
	return analysisSchema, schemaErr
}

// ParseResult is the outcome of decoding one model response.
type ParseResult struct {
	Status   compliance.ParseStatus
	Analysis compliance.Analysis
	Raw      string
	Err      error
}

// Parse decodes a raw analysis response in two stages. The strict stage
// requires schema-valid JSON (an optional Markdown fence is tolerated). The
// recovery stage extracts the first balanced object, repairs common damage
// and coerces loosely typed values. When both fail every finding is
// not-found and the raw text is kept.
func Parse(raw, filename string) ParseResult {
	res := ParseResult{Raw: raw}

	body := stripCodeFence(raw)
	strictErr := decodeStrict(body)
	if strictErr == nil {
		m, _ := decodeMap(body)
		res.Status = compliance.ParseOK
		res.Analysis = analysisFromMap(m, filename)
		res.Analysis.ParseStatus = compliance.ParseOK
		return res
	}

	if frag, ok := extractObject(raw); ok {
		if m, err := decodeMap(repairJSON(frag)); err == nil && hasAnyIssue(m) {
			res.Status = compliance.ParseRecovered
			res.Analysis = analysisFromMap(m, filename)
			res.Analysis.ParseStatus = compliance.ParseRecovered
			res.Err = strictErr
			return res
		}
	}

	res.Status = compliance.ParseFailed
	res.Err = types.NewAppError(types.ErrParse, "could not parse analysis response", strictErr)
	res.Analysis = compliance.NewAnalysis(filename)
	res.Analysis.ParseStatus = compliance.ParseFailed
	res.Analysis.ParseError = res.Err.Error()
	res.Analysis.RawResponse = raw
	return res
}

func decodeStrict(body string) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	var v interface{}
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return err
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

func decodeMap(body string) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("response is not a JSON object")
	}
	return m, nil
}

var codeFenceRe = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*(.*?)\\s*```\\s*$")

func stripCodeFence(s string) string {
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return strings.TrimSpace(s)
}

// extractObject returns the first balanced {...} fragment of s. Braces
// inside JSON strings are ignored.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	// unbalanced: fall back to the widest candidate
	if end := strings.LastIndexByte(s, '}'); end > start {
		return s[start : end+1], true
	}
	return "", false
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	smartQuotes     = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

func repairJSON(s string) string {
	s = smartQuotes.Replace(s)
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

func hasAnyIssue(m map[string]interface{}) bool {
	for _, k := range compliance.Kinds {
		if _, ok := m[k.IssueKey()].(map[string]interface{}); ok {
			return true
		}
	}
	return false
}

func analysisFromMap(m map[string]interface{}, filename string) compliance.Analysis {
	a := compliance.NewAnalysis(filename)
	if name := asString(m["filename"]); name != "" && filename == "" {
		a.Filename = name
	}
	a.ServiceDate = asString(m["service_date"])
	a.SigningDate = asString(m["signing_date"])

	if d, ok := m[compliance.KindDate.IssueKey()].(map[string]interface{}); ok {
		f := &a.Date
		fillCommon(f, d)
		f.ServiceDate = a.ServiceDate
		f.SigningDate = a.SigningDate
		f.CorrectedDate = asString(d["corrected_date"])
		if n, ok := asInt(d["days_difference"]); ok {
			f.DaysDifference = &n
		}
	}
	if d, ok := m[compliance.KindCPT.IssueKey()].(map[string]interface{}); ok {
		f := &a.CPT
		fillCommon(f, d)
		f.InitialVisit = asBool(d["is_initial_visit"])
		f.StartTime = asString(d["start_time"])
		f.EndTime = asString(d["end_time"])
		f.Duration, _ = asInt(d["duration_minutes"])
		f.CurrentCode = bareCode(asString(d["current_code"]))
		f.CorrectCode = bareCode(asString(d["correct_code"]))
	}
	if d, ok := m[compliance.KindGoals.IssueKey()].(map[string]interface{}); ok {
		f := &a.Goals
		fillCommon(f, d)
		if n, ok := asInt(d["goals_count"]); ok {
			f.GoalsCount = n
		}
		f.GoalsFound = asStrings(d["goals_found"])
		f.FormattingIssues = asStrings(d["formatting_issues"])
	}
	if d, ok := m[compliance.KindSupervision.IssueKey()].(map[string]interface{}); ok {
		f := &a.Supervision
		fillCommon(f, d)
		f.SignerName = asString(d["signer_name"])
		f.SignerCredentials = asString(d["signer_credentials"])
		f.RenderedBy = asString(d["rendered_by"])
		f.SupervisedBy = asStrings(d["supervised_by"])
	}
	return a
}

func fillCommon(f *compliance.Finding, d map[string]interface{}) {
	f.Found = asBool(d["found"])
	f.Description = asString(d["description"])
	f.OriginalText = asString(d["original_text"])
	f.ReplacementText = asString(d["replacement_text"])
}

var fiveDigitsRe = regexp.MustCompile(`\b\d{5}\b`)

// bareCode reduces "CPT Code: 90834" to "90834".
func bareCode(s string) string {
	if m := fiveDigitsRe.FindString(s); m != "" {
		return m
	}
	return strings.TrimSpace(s)
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

var leadingIntRe = regexp.MustCompile(`-?\d+`)

func asInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case string:
		if m := leadingIntRe.FindString(t); m != "" {
			n, err := strconv.Atoi(m)
			return n, err == nil
		}
	}
	return 0, false
}

func asBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true
		}
	case float64:
		return t != 0
	}
	return false
}

func asStrings(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := asString(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	}
	return nil
}
