// Package cli provides output helpers for the tasuke command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/tasuke/internal/generate"
	"github.com/hyperjump/tasuke/internal/models"
	"github.com/hyperjump/tasuke/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an OutputFormat. Anything but "json" is text.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), string(OutputJSON)) {
		return OutputJSON
	}
	return OutputText
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// WriteAskResponse writes an ask response to w in the given format.
func WriteAskResponse(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	writeAskText(w, resp)
	return nil
}

func writeAskText(w io.Writer, resp *models.AskResponse) {
	fmt.Fprintf(w, "\nFound %d resources across %d needs in %.0fms\n", resp.Counts.TotalResults, resp.Counts.Needs, resp.Took)
	if len(resp.Needs) > 0 {
		slugs := make([]string, len(resp.Needs))
		for i, n := range resp.Needs {
			slugs[i] = n.Slug
		}
		fmt.Fprintf(w, "Needs: %s (confidence %.2f)\n", strings.Join(slugs, ", "), resp.Confidence)
	}
	if resp.ActionPlan != "" {
		fmt.Fprintf(w, "\n%s\n", resp.ActionPlan)
	}
	for _, grp := range resp.GroupedResults {
		fmt.Fprintf(w, "\n=== %s ===\n", generate.Label(grp.Need))
		for i, c := range grp.Candidates {
			writeCandidate(w, i+1, c)
		}
	}
	fmt.Fprintln(w)
}

// WriteNeedsResponse writes a needs response to w in the given format.
func WriteNeedsResponse(w io.Writer, resp *models.NeedsResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	fmt.Fprintf(w, "\nConfidence: %.2f\n", resp.Confidence)
	for _, n := range resp.Needs {
		fmt.Fprintf(w, "- %s: %s\n", n.Slug, n.Query)
	}
	if len(resp.Candidates) > 0 {
		fmt.Fprintf(w, "\n%d candidates\n", len(resp.Candidates))
		for i, c := range resp.Candidates {
			writeCandidate(w, i+1, c)
		}
	}
	fmt.Fprintln(w)
	return nil
}

func writeCandidate(w io.Writer, rank int, c models.Candidate) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	name := c.Name
	if name == "" {
		name = c.ServiceID
	}
	fmt.Fprintf(w, "%d. %s | Score: %.4f\n", rank, name, c.Score)
	fmt.Fprintf(w, "ID: %s\n", c.ServiceID)
	if len(c.MatchedNeeds) > 0 {
		fmt.Fprintf(w, "Matched: %s\n", strings.Join(c.MatchedNeeds, ", "))
	}
	if c.ModelSummary != "" {
		fmt.Fprintf(w, "%s\n", utils.Truncate(c.ModelSummary, 200))
	}
}
