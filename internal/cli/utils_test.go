package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/tasuke/internal/models"
)

func sampleAsk() *models.AskResponse {
	return &models.AskResponse{
		ActionPlan: "Call the pantry first.",
		GroupedResults: models.GroupedResults{
			{Need: "food-assistance", Candidates: []models.Candidate{{
				ID: "p1", ServiceID: "p1", Name: "Pantry", Score: 0.91,
				MatchedNeeds: []string{"food-assistance"}, Metadata: map[string]any{},
				ModelSummary: "Pantry - Org provides food",
			}}},
			{Need: "rental-help", Candidates: []models.Candidate{{
				ServiceID: "r1", Score: 0.5, Metadata: map[string]any{},
			}}},
		},
		Counts:     models.Counts{TotalResults: 2, Needs: 2},
		Needs:      []models.Need{{Slug: "food-assistance", Query: "food"}, {Slug: "rental-help", Query: "rent"}},
		Confidence: 0.75,
		Took:       12,
	}
}

func TestWriteAskResponse_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAskResponse(&buf, sampleAsk(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.AskResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got := decoded.GroupedResults.Keys(); len(got) != 2 || got[0] != "food-assistance" {
		t.Errorf("group keys = %v", got)
	}
	if decoded.Counts.TotalResults != 2 {
		t.Errorf("total_results = %d", decoded.Counts.TotalResults)
	}
}

func TestWriteAskResponse_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAskResponse(&buf, sampleAsk(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Found 2 resources across 2 needs",
		"Needs: food-assistance, rental-help (confidence 0.75)",
		"Call the pantry first.",
		"=== Food Assistance ===",
		"=== Rental Help ===",
		"1. Pantry | Score: 0.9100",
		"1. r1 | Score: 0.5000",
		"Pantry - Org provides food",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteNeedsResponse(t *testing.T) {
	resp := &models.NeedsResponse{
		Needs:      []models.Need{{Slug: "childcare", Query: "daycare"}},
		Confidence: 0.4,
		Candidates: []models.Candidate{{ServiceID: "c1", Name: "Daycare", Score: 0.3}},
	}
	var buf bytes.Buffer
	if err := WriteNeedsResponse(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "- childcare: daycare") || !strings.Contains(buf.String(), "1 candidates") {
		t.Errorf("unexpected text output:\n%s", buf.String())
	}

	buf.Reset()
	if err := WriteNeedsResponse(&buf, resp, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !json.Valid(buf.Bytes()) {
		t.Errorf("invalid JSON: %s", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want OutputFormat
	}{
		{"json", OutputJSON},
		{" JSON ", OutputJSON},
		{"text", OutputText},
		{"", OutputText},
		{"yaml", OutputText},
	}
	for _, tt := range tests {
		if got := ParseFormat(tt.in); got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
