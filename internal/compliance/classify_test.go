package compliance

import (
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(NewCredentials(DefaultTherapyCredentials), nil)

	tests := []struct {
		name     string
		text     string
		wantType NoteType
		wantCred string
	}{
		{
			name:     "signature with cpt code",
			text:     "Progress Note\nCPT: 90834\nElectronically signed by\nJane Doe, LPCC\n",
			wantType: NoteTherapy,
			wantCred: "LPCC",
		},
		{
			name:     "signature with session times",
			text:     "START TIME: 2:00 pm\nEND TIME: 2:50 pm\nSigned by: Sam Roe LMFT",
			wantType: NoteTherapy,
			wantCred: "LMFT",
		},
		{
			name:     "indicators without credential",
			text:     "Therapy Type: Individual\nTx Modality: CBT\nGoal #1: reduce anxiety",
			wantType: NoteTherapy,
			wantCred: "Unknown",
		},
		{
			name:     "medical note",
			text:     "Chief complaint: cough\nAssessment and plan\nSigned by Dr. Lee, MD\nCPT 99213",
			wantType: NoteMedical,
		},
		{
			name:     "credential inside another word is ignored",
			text:     "Signed by Pat LPCX\nCPT 90837",
			wantType: NoteMedical,
		},
		{
			name:     "empty",
			text:     "  \n",
			wantType: NoteUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.text)
			if got.Type != tt.wantType {
				t.Errorf("Expected type %s, got %s", tt.wantType, got.Type)
			}
			if got.Credential != tt.wantCred {
				t.Errorf("Expected credential %q, got %q", tt.wantCred, got.Credential)
			}
		})
	}
}

func TestCredentialsArtifacts(t *testing.T) {
	creds := NewCredentials([]string{" lcsw", "LCADC", "LCADCA", "LCSW"})

	if !reflect.DeepEqual(creds.List(), []string{"LCSW", "LCADC", "LCADCA"}) {
		t.Errorf("unexpected normalised list %v", creds.List())
	}

	got := creds.Artifacts("Rendered by: Jane Doe, LCSWa Supervised by: Kim, LCADCAb")
	want := []string{"LCSWa", "LCADCAb"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if a := creds.Artifacts("Rendered by: Jane Doe, LCSW"); len(a) != 0 {
		t.Errorf("Expected no artifacts, got %v", a)
	}
	if a := NewCredentials(nil).Artifacts("LCSWa"); a != nil {
		t.Errorf("Expected nil for empty credential list, got %v", a)
	}
}
