package patch

import (
	"path/filepath"
	"strings"
	"testing"

	"note-auditor/internal/compliance"
	"note-auditor/internal/config"
)

func TestVerify(t *testing.T) {
	tests := []struct {
		name      string
		spans     []fakeSpan
		wantPages int
		applied   []compliance.Kind
		replaced  []string
		want      []string
	}{
		{
			name: "clean output",
			spans: []fakeSpan{
				span("Signed: 03/07/2024 02:00 pm", 50, 100),
				span("Rendered by: Michelle Craig, LCSW", 50, 200),
				span("Supervised by: John Smith, MD", 50, 215),
			},
			wantPages: 1,
			applied:   []compliance.Kind{compliance.KindSupervision},
		},
		{
			name: "credential artifact",
			spans: []fakeSpan{
				span("Signed: 03/07/2024 02:00 pm", 50, 100),
				span("Rendered by: Michelle Craig, LCSWa", 50, 200),
			},
			wantPages: 1,
			want:      []string{`text artifact "LCSWa"`},
		},
		{
			name:      "date missing",
			spans:     []fakeSpan{span("Rendered by: Michelle Craig, LCSW", 50, 200)},
			wantPages: 1,
			want:      []string{"no date found"},
		},
		{
			name: "supervisor count off",
			spans: []fakeSpan{
				span("03/07/2024 02:00 pm", 50, 100),
				span("Supervised by: A, LCSW", 50, 200),
				span("Supervised by: B, MD", 50, 215),
			},
			wantPages: 1,
			applied:   []compliance.Kind{compliance.KindSupervision},
			want:      []string{`expected 1 "Supervised by:" line(s), found 2`},
		},
		{
			name: "supervisor count ignored without supervision fix",
			spans: []fakeSpan{
				span("03/07/2024 02:00 pm", 50, 100),
				span("Supervised by: A, LCSW", 50, 200),
				span("Supervised by: B, MD", 50, 215),
			},
			wantPages: 1,
			applied:   []compliance.Kind{compliance.KindCPT},
		},
		{
			name: "old values gone",
			spans: []fakeSpan{
				span("CPT Code: 90837", 50, 80),
				span("Signed: 03/07/2024 02:00 pm", 50, 100),
			},
			wantPages: 1,
			applied:   []compliance.Kind{compliance.KindDate, compliance.KindCPT},
			replaced:  []string{"03/15/2024 02:00 pm", "90834"},
		},
		{
			name: "old values still drawn",
			spans: []fakeSpan{
				span("CPT Code: 90834 90837", 50, 80),
				span("Signed: 03/15/2024 02:00 PM", 50, 100),
			},
			wantPages: 1,
			applied:   []compliance.Kind{compliance.KindDate, compliance.KindCPT},
			replaced:  []string{"03/15/2024 02:00 pm", "90834"},
			want: []string{
				`replaced text "03/15/2024 02:00 pm" still on page 1`,
				`replaced text "90834" still on page 1`,
			},
		},
		{
			name:      "page count changed",
			spans:     []fakeSpan{span("03/07/2024 02:00 pm", 50, 100)},
			wantPages: 2,
			want:      []string{"page count changed from 2 to 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.pdf")
			writeFakeFile(t, path, &fakePageData{W: 612, H: 792, Spans: tt.spans})

			p := newTestPatcher(config.Default(), nil, &fakeBackend{})
			issues := p.Verify(path, tt.wantPages, tt.applied, tt.replaced)

			if len(issues) != len(tt.want) {
				t.Fatalf("expected %d issues, got %d: %v", len(tt.want), len(issues), issues)
			}
			for i, w := range tt.want {
				if !strings.Contains(issues[i], w) {
					t.Errorf("issue %d: expected %q in %q", i, w, issues[i])
				}
			}
		})
	}
}

func TestVerify_SupervisionCheckDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pdf")
	writeFakeFile(t, path, &fakePageData{W: 612, H: 792, Spans: []fakeSpan{
		span("03/07/2024 02:00 pm", 50, 100),
	}})

	cfg := config.Default()
	cfg.Policies.ExpectedSupervisorLines = 0
	p := newTestPatcher(cfg, nil, &fakeBackend{})
	if issues := p.Verify(path, 1, []compliance.Kind{compliance.KindSupervision}, nil); len(issues) != 0 {
		t.Errorf("expected no issues with the check disabled, got %v", issues)
	}
}

func TestVerify_UnreadableOutput(t *testing.T) {
	p := newTestPatcher(config.Default(), nil, &fakeBackend{})
	issues := p.Verify(filepath.Join(t.TempDir(), "missing.pdf"), 1, nil, nil)
	if len(issues) != 2 {
		t.Fatalf("expected page count and reopen issues, got %v", issues)
	}
	if !strings.HasPrefix(issues[0], "cannot count pages") || !strings.HasPrefix(issues[1], "cannot reopen output") {
		t.Errorf("unexpected issues %v", issues)
	}
}
