package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/store"
)

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		secs int64
		want string
	}{
		{0, "0s"},
		{59, "59s"},
		{3600, "1h"},
		{86400, "1d"},
		{604800, "7d"},
		{90061, "1d1h1m1s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.secs); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}

func TestChallengeTimeline(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	p := New(&out, &errOut)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	p.Challenge(store.Challenge{ID: "c1", Name: "demo", TimelineTemplateID: "std", Status: store.StatusActive, StartDate: start},
		[]phase.Instance{
			{ID: "p1", Name: phase.NameRegistration, Duration: 86400, IsOpen: true, ActualStart: &start,
				ScheduledStart: start, ScheduledEnd: end},
			{ID: "p2", Name: phase.NameSubmission, Duration: 604800, Predecessor: "reg",
				ScheduledStart: end, ScheduledEnd: end.Add(7 * 24 * time.Hour)},
		})

	got := out.String()
	for _, want := range []string{"challenge", "c1", "Active", "demo", "template:  std",
		"Registration", "2024-01-01 00:00", "2024-01-02 00:00", "7d", "after reg", iconOpen, iconUnopened} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if errOut.Len() != 0 {
		t.Errorf("unexpected diagnostics: %q", errOut.String())
	}
}

func TestEmptyTimeline(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	New(&out, &out).Timeline(nil)
	if !strings.Contains(out.String(), "(no phases)") {
		t.Errorf("got %q", out.String())
	}
}

func TestDiagnostics(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	p := New(&out, &errOut)
	p.Error("boom")
	p.Success("saved")
	p.Info("note")
	for _, want := range []string{"error:", "boom", "saved", "note"} {
		if !strings.Contains(errOut.String(), want) {
			t.Errorf("diagnostics missing %q: %q", want, errOut.String())
		}
	}
	if out.Len() != 0 {
		t.Errorf("results stream should be empty, got %q", out.String())
	}
}

func TestCatalogListing(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	p := New(&out, &out)
	p.Definitions([]phase.Definition{{ID: "reg", Name: phase.NameRegistration, DefaultDuration: 86400}})
	p.Templates([]phase.Template{{ID: "std", Name: "Standard", IsActive: false, Entries: []phase.TemplateEntry{
		{PhaseID: "sub", DefaultDuration: 3600, Predecessor: "reg"},
	}}})
	for _, want := range []string{"Registration", "1d", "std", "inactive", "- sub 1h after reg"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
