package compliance

import "testing"

func TestExpectedCPT(t *testing.T) {
	tests := []struct {
		name     string
		minutes  int
		initial  bool
		wantCode string
		wantOK   bool
	}{
		{"too short", 15, false, "", false},
		{"lower bound 30 min", 16, false, Code30Min, true},
		{"upper bound 30 min", 37, false, Code30Min, true},
		{"lower bound 45 min", 38, false, Code45Min, true},
		{"upper bound 45 min", 52, false, Code45Min, true},
		{"lower bound 60 min", 53, false, Code60Min, true},
		{"long follow-up", 120, false, Code60Min, true},
		{"initial full eval", 53, true, CodeInitialEval, true},
		{"initial long eval", 75, true, CodeInitialEval, true},
		{"short initial uses follow-up table", 40, true, Code45Min, true},
		{"short initial too short", 10, true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := ExpectedCPT(tt.minutes, tt.initial)
			if code != tt.wantCode || ok != tt.wantOK {
				t.Errorf("ExpectedCPT(%d, %v) = (%q, %v), want (%q, %v)",
					tt.minutes, tt.initial, code, ok, tt.wantCode, tt.wantOK)
			}
		})
	}
}

func TestSessionMinutes(t *testing.T) {
	tests := []struct {
		start, end string
		want       int
	}{
		{"2:00 pm", "2:53 pm", 53},
		{"10:15 AM", "11:00 AM", 45},
		{"11:45 am", "12:30 pm", 45},
		{"9:00am", "9:38am", 38},
		{"14:00", "14:16", 16},
		{"11:30 pm", "12:15 am", 45},
		{"3:00 p.m.", "3:30 p.m.", 30},
	}

	for _, tt := range tests {
		got, err := SessionMinutes(tt.start, tt.end)
		if err != nil {
			t.Errorf("SessionMinutes(%q, %q) failed: %v", tt.start, tt.end, err)
			continue
		}
		if got != tt.want {
			t.Errorf("SessionMinutes(%q, %q) = %d, want %d", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestSessionMinutesInvalid(t *testing.T) {
	if _, err := SessionMinutes("noon", "1:00 pm"); err == nil {
		t.Error("Expected error for unparseable start time")
	}
}

func TestIsCPTCode(t *testing.T) {
	for _, code := range TherapyCPTCodes {
		if !IsCPTCode(code) {
			t.Errorf("Expected %s to be a CPT code", code)
		}
	}
	for _, bad := range []string{"", "9083", "908377", "9083a"} {
		if IsCPTCode(bad) {
			t.Errorf("Expected %q to be rejected", bad)
		}
	}
}
