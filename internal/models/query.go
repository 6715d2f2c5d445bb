package models

import "fmt"

// RetrieveOptions are passed through unchanged to every retrieval call of one aggregation.
type RetrieveOptions struct {
	Namespace string  `json:"namespace,omitempty"`
	Filter    *Filter `json:"filter,omitempty"`
}

// Filter restricts retrieval to resources whose metadata matches every set field.
type Filter struct {
	City     string `json:"city,omitempty"`
	County   string `json:"county,omitempty"`
	ZipCode  string `json:"zip_code,omitempty"`
	Language string `json:"language,omitempty"`
	FreeOnly bool   `json:"free_only,omitempty"`
}

// Empty reports whether the filter has no constraints.
func (f *Filter) Empty() bool {
	return f == nil || (f.City == "" && f.County == "" && f.ZipCode == "" && f.Language == "" && !f.FreeOnly)
}

// AskRequest is a request for grouped resource recommendations for a story.
type AskRequest struct {
	Query      string `json:"query"`
	TopK       int    `json:"top_k,omitempty"`
	TopResults int    `json:"top_results,omitempty"`
	City       string `json:"city,omitempty"`
	County     string `json:"county,omitempty"`
	ZipCode    string `json:"zip_code,omitempty"`
	Language   string `json:"language,omitempty"`
	FreeOnly   bool   `json:"free_only,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
}

// Validate normalizes TopK and TopResults. Returns an error when either is negative.
func (r *AskRequest) Validate() error {
	if r.TopK < 0 || r.TopResults < 0 {
		return fmt.Errorf("top_k and top_results must not be negative")
	}
	if r.TopK == 0 {
		r.TopK = 8
	}
	if r.TopK > 100 {
		r.TopK = 100
	}
	if r.TopResults == 0 {
		r.TopResults = 5
	}
	return nil
}

// NeedsRequest asks for the needs extracted from a story plus the flat candidate list.
type NeedsRequest struct {
	Story string `json:"user_story"`
}
