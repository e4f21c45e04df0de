package model

import "testing"

func TestConfidenceRank(t *testing.T) {
	if !(ConfidenceHigh.Rank() > ConfidenceMedium.Rank() && ConfidenceMedium.Rank() > ConfidenceLow.Rank()) {
		t.Error("confidence ranks out of order")
	}
	if Confidence("").Rank() != 0 {
		t.Error("empty confidence should rank 0")
	}
}

func TestMentionText(t *testing.T) {
	m := Mention{Title: "T", Snippet: "S"}
	if m.Text() != "T\nS" {
		t.Errorf("unexpected text %q", m.Text())
	}
	m.RawText = "R"
	if m.Text() != "T\nS\nR" {
		t.Errorf("unexpected text %q", m.Text())
	}
}

func TestProjectHasCoordinates(t *testing.T) {
	p := Project{}
	if p.HasCoordinates() {
		t.Error("expected no coordinates")
	}
	lat, lng := 32.0, -97.0
	p.Lat, p.Lng = &lat, &lng
	if !p.HasCoordinates() {
		t.Error("expected coordinates")
	}
}

func TestStageResultAdd(t *testing.T) {
	r := StageResult{Processed: 1, Skipped: 2}
	r.Add(StageResult{Processed: 3, Failed: 1, TimedOut: true})
	if r != (StageResult{Processed: 4, Skipped: 2, Failed: 1, TimedOut: true}) {
		t.Errorf("unexpected sum %+v", r)
	}
}
