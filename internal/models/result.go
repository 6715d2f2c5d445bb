package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Hit is a single retrieval result. Only ID, Score, and Metadata are read.
type Hit struct {
	ID       string         `json:"id,omitempty"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UnmarshalJSON decodes a hit leniently: numeric ids are stringified, a score that is
// missing, null, or non-numeric becomes 0, and non-object metadata is ignored.
func (h *Hit) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       json.RawMessage `json:"id"`
		Score    any             `json:"score"`
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*h = Hit{}
	if len(raw.ID) > 0 {
		// numbers keep their literal so 1 and 1.0 stay distinct ids
		dec := json.NewDecoder(bytes.NewReader(raw.ID))
		dec.UseNumber()
		var id any
		if err := dec.Decode(&id); err == nil {
			if s, ok := Stringify(id); ok {
				h.ID = s
			}
		}
	}
	h.Score = CoerceFloat(raw.Score)
	if len(raw.Metadata) > 0 {
		var md map[string]any
		if err := json.Unmarshal(raw.Metadata, &md); err == nil {
			h.Metadata = md
		}
	}
	return nil
}

// Stringify renders a scalar as a string. It reports false for nil, empty strings,
// zero numbers, false, and empty collections.
func Stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, x != ""
	case bool:
		if !x {
			return "", false
		}
		return "true", true
	case float64:
		if x == 0 || math.IsNaN(x) {
			return "", false
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return Stringify(float64(x))
	case int:
		return strconv.Itoa(x), x != 0
	case int64:
		return strconv.FormatInt(x, 10), x != 0
	case json.Number:
		lit := x.String()
		if !strings.ContainsAny(lit, ".eE") {
			return lit, lit != "" && lit != "0" && lit != "-0"
		}
		f, err := x.Float64()
		if err != nil || f == 0 {
			return "", false
		}
		return formatFloatLiteral(f), true
	case []any:
		if len(x) == 0 {
			return "", false
		}
	case map[string]any:
		if len(x) == 0 {
			return "", false
		}
	}
	return fmt.Sprint(v), true
}

// formatFloatLiteral renders f with a trailing ".0" when it is integral, and in
// exponent form for very large or small magnitudes.
func formatFloatLiteral(f float64) string {
	abs := math.Abs(f)
	if abs >= 1e16 || abs < 1e-4 {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// CoerceFloat converts v to a finite float64, returning 0 when it cannot.
func CoerceFloat(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return 0
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		f = p
	case bool:
		if x {
			f = 1
		}
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Candidate is one distinct resource collected across retrieval calls.
type Candidate struct {
	ID           string         `json:"id,omitempty"`
	ServiceID    string         `json:"service_id"`
	Name         string         `json:"name"`
	Score        float64        `json:"score"`
	MatchedNeeds []string       `json:"matched_needs"`
	Metadata     map[string]any `json:"metadata"`
	ModelSummary string         `json:"model_summary,omitempty"`
}

// Group is the list of candidates attached to one need slug.
type Group struct {
	Need       string      `json:"need"`
	Candidates []Candidate `json:"candidates"`
}

// GroupedResults maps need slugs to candidate lists, in group order.
// It marshals to a JSON object whose keys keep that order.
type GroupedResults []Group

// Get returns the candidates for slug and whether the group exists.
func (g GroupedResults) Get(slug string) ([]Candidate, bool) {
	for _, grp := range g {
		if grp.Need == slug {
			return grp.Candidates, true
		}
	}
	return nil, false
}

// Keys returns the group slugs in order.
func (g GroupedResults) Keys() []string {
	keys := make([]string, len(g))
	for i, grp := range g {
		keys[i] = grp.Need
	}
	return keys
}

// Total returns the number of candidate placements across all groups.
func (g GroupedResults) Total() int {
	n := 0
	for _, grp := range g {
		n += len(grp.Candidates)
	}
	return n
}

// MarshalJSON writes the groups as an ordered JSON object.
func (g GroupedResults) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, grp := range g {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(grp.Need)
		if err != nil {
			return nil, err
		}
		cands := grp.Candidates
		if cands == nil {
			cands = []Candidate{}
		}
		val, err := json.Marshal(cands)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of slug to candidate list, keeping key order.
func (g *GroupedResults) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*g = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("grouped results: expected object, got %v", tok)
	}
	out := GroupedResults{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("grouped results: expected key, got %v", tok)
		}
		var cands []Candidate
		if err := dec.Decode(&cands); err != nil {
			return fmt.Errorf("grouped results %q: %w", key, err)
		}
		out = append(out, Group{Need: key, Candidates: cands})
	}
	*g = out
	return nil
}

// Counts summarizes an ask response.
type Counts struct {
	TotalResults int `json:"total_results"`
	Needs        int `json:"needs"`
}

// AskResponse is the response to an ask request.
type AskResponse struct {
	ActionPlan     string         `json:"action_plan"`
	GroupedResults GroupedResults `json:"grouped_results"`
	Counts         Counts         `json:"counts"`
	Needs          []Need         `json:"needs"`
	Confidence     float64        `json:"confidence"`
	Took           float64        `json:"took_ms,omitempty"`
}

// NeedsResponse is the response to a needs request.
type NeedsResponse struct {
	Needs      []Need      `json:"needs"`
	Confidence float64     `json:"confidence"`
	Candidates []Candidate `json:"candidates"`
}
