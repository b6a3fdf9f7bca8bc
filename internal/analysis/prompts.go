package analysis

import (
	"fmt"
	"strings"

	"note-auditor/internal/compliance"
)

const analysisSystemPrompt = "You are a medical compliance auditor. Analyze thoroughly and return valid JSON."

const goalsSystemPrompt = "You are a psychotherapy documentation expert. Create realistic, properly formatted treatment goals."

const mdmSystemPrompt = "You are an expert medical auditor specializing in evaluation and management (E&M) coding and medical decision making complexity. Analyze thoroughly and return valid JSON."

func buildAnalysisPrompt(filename, text string, creds []string, window compliance.SigningWindow) string {
	var b strings.Builder
	b.WriteString("Analyze this psychotherapy note for FOUR compliance issues:\n\n")

	fmt.Fprintf(&b, `1. DATE COMPLIANCE:
   - Service Date (DATE field in ENCOUNTER column)
   - Signing Date ("Electronically signed by... at [date time]")
   - Check if signing is within %d-%d days after service

`, window.MinDays, window.MaxDays)

	fmt.Fprintf(&b, `2. CPT CODE COMPLIANCE:
   - Right above START TIME/END TIME the note says either "INITIAL VISIT" or "FOLLOW-UP"
   - INITIAL VISIT and duration %d+ minutes: code should be %s
   - FOLLOW-UP: %s is never correct. Calculate duration from START TIME to END TIME:
     * %d-%d minutes = %s
     * %d-%d minutes = %s
     * %d+ minutes = %s
   - Set found to true ONLY if current_code differs from correct_code

`, compliance.Min60Minutes, compliance.CodeInitialEval, compliance.CodeInitialEval,
		compliance.MinBillableMinutes, compliance.Min45Minutes-1, compliance.Code30Min,
		compliance.Min45Minutes, compliance.Min60Minutes-1, compliance.Code45Min,
		compliance.Min60Minutes, compliance.Code60Min)

	b.WriteString(`3. TREATMENT GOALS:
   - Look for Goal sections (may be labeled "Goal #1", "Goal 1", "Goal", etc.)
   - Count how many distinct goals are documented; at least 2 are required
   - Each goal should have: Goal statement, Objective, Tx Modality, Progress
   - Note if goals are missing numbers or have inconsistent formatting

`)

	fmt.Fprintf(&b, `4. SUPERVISION HIERARCHY:
   - Find who signed the note ("Electronically signed by [Name][Credentials]")
   - Recognised credentials: %s
   - "Rendered by:" MUST match the person who signed the note; if not, this is an issue
   - The correct "Rendered by:" is the signer's name and credentials
   - If there are multiple "Supervised by:" lines, keep only "Supervised by: [Name], MD"

`, strings.Join(creds, ", "))

	fmt.Fprintf(&b, `Return JSON only:
{
  "filename": %q,
  "service_date": "MM/DD/YYYY",
  "signing_date": "MM/DD/YYYY HH:MM am/pm",
  "date_issue": {"found": true/false, "description": "explanation", "days_difference": number,
    "corrected_date": "MM/DD/YYYY HH:MM am/pm", "original_text": "text to find", "replacement_text": "corrected text"},
  "cpt_issue": {"found": true/false, "is_initial_visit": true/false, "start_time": "HH:MM am/pm",
    "end_time": "HH:MM am/pm", "duration_minutes": number, "current_code": "90XXX", "correct_code": "90XXX",
    "description": "explanation", "original_text": "CPT Code: 90XXX", "replacement_text": "CPT Code: 90XXX"},
  "goals_issue": {"found": true/false, "goals_count": number, "description": "explanation",
    "formatting_issues": ["list of issues"], "goals_found": ["Goal 1 text", "Goal 2 text"]},
  "supervision_issue": {"found": true/false, "signer_name": "Name who signed", "signer_credentials": "credentials",
    "rendered_by": "current rendered by text", "supervised_by": ["list of supervisors found"],
    "description": "explanation of issue", "original_text": "full original supervision block",
    "replacement_text": "corrected supervision block"}
}

Document:
%s
`, filename, text)
	return b.String()
}

func buildGoalsPrompt(text string, existing []string, count int) string {
	if count == 1 {
		first := ""
		if len(existing) > 0 {
			first = existing[0]
		}
		return fmt.Sprintf(`The note has ONE existing goal. Keep Goal #1 exactly as it is, and create only Goal #2.

EXISTING GOAL #1 (KEEP THIS EXACTLY):
%s

NOTE CONTEXT (for creating Goal #2):
%s

Create ONLY Goal #2 with this exact format:

Goal #2: "I want to [specific client desire different from Goal #1]"
Objective: Client will [specific measurable action] at least [frequency] times a week.
Tx Modality: CBT, DBT, Motivational Interviewing
Progress: Client is [current status for this goal].

Return the complete text with both goals: first Goal #1 exactly as provided, then the new Goal #2.
Make Goal #2 address a different issue than Goal #1 based on the note context.
`, first, text)
	}

	return fmt.Sprintf(`Create two properly formatted psychotherapy treatment goals based on this note.

NOTE CONTEXT (look for diagnoses, symptoms, client concerns):
%s

Each goal must have exactly this structure:

Goal #1: "I want to [specific client desire in first person]"
Objective: Client will [specific measurable action] at least [frequency] times a week.
Tx Modality: CBT, DBT, Motivational Interviewing
Progress: Client is [current status and what they're working on].

Goal #2: "I want to [different specific client desire in first person]"
Objective: Client will [different measurable action] at least [frequency] times a week.
Tx Modality: CBT, DBT, Motivational Interviewing
Progress: Client is [current status for this goal].

Goals are in the client's voice. Objectives are measurable with a frequency of 1-2 times a week.
Progress reflects what is actually in the note.
Return ONLY the formatted goals text, no explanations.
`, text)
}

func buildMDMPrompt(filename, text string) string {
	return fmt.Sprintf(`Analyze this medical note to determine if it meets MODERATE Medical Decision Making (MDM) criteria.

Read the ENTIRE note, paying attention to HPI, Chief Complaint, Assessment/Plan, Risk Assessment,
Review of Systems and Physical Exam findings.

MODERATE MDM requires meeting 2 of these 3 elements:

1. NUMBER & COMPLEXITY OF PROBLEMS: 1+ chronic illness with progression or side effects; 2+ stable
   chronic illnesses; 1 undiagnosed new problem with uncertain prognosis; 1 acute illness with systemic
   symptoms; 1 acute complicated injury.
2. AMOUNT/COMPLEXITY OF DATA: review of prior external notes; ordering of tests; assessment requiring an
   independent historian; independent interpretation of tests; discussion with an external provider.
3. RISK OF COMPLICATIONS: prescription drug management; decision regarding minor surgery with risk
   factors; decision regarding elective major surgery; diagnosis or treatment significantly limited by
   social determinants.

Generate an improved "OVERALL PROGRESS" section (4-6 sentences) that synthesizes the HPI, chief
complaint, assessment and plan and clearly demonstrates moderate MDM. Also suggest an improved Plan
section with clear clinical reasoning and appropriate follow-up.

Return JSON:
{
  "filename": %q,
  "meets_moderate_mdm": true/false,
  "mdm_analysis": {
    "problems_complexity": "description of problems addressed",
    "data_reviewed": "description of data/tests reviewed or ordered",
    "risk_level": "description of risk factors and management",
    "criteria_met": ["list of which MDM criteria are met"]
  },
  "current_assessment": "the current A section text",
  "suggested_overall_progress": "OVERALL PROGRESS: ...",
  "current_plan": "the current plan text",
  "suggested_improved_plan": "improved plan section text",
  "key_findings": ["important clinical findings"],
  "recommendations": ["suggestions for improving MDM documentation"]
}

Document:
%s
`, filename, text)
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
