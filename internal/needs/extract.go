// Package needs turns a free-text story into a short list of distinct needs via a language model.
package needs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hyperjump/tasuke/internal/llm"
	"github.com/hyperjump/tasuke/internal/metrics"
	"github.com/hyperjump/tasuke/internal/models"
	"github.com/hyperjump/tasuke/pkg/utils"
)

// MaxNeeds is the most needs one extraction returns.
const MaxNeeds = 5

const systemPrompt = `You read a person's description of their situation and identify the distinct kinds of help they need from community resources.
Return at most 5 needs. For each need give:
- slug: a short lowercase kebab-case label such as "food-assistance" or "rental-help"
- query: a short search query (a few words) describing the services that would help
Also return confidence between 0 and 1 for how clearly the needs are stated.
Do not invent needs the person did not express.`

// ErrEmptyResponse is returned by Parse for a blank model response.
var ErrEmptyResponse = errors.New("empty model response")

// ExtractionError reports which stage of need extraction failed.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("needs extraction (%s): %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Fallback returns the empty extraction result.
func Fallback() models.NeedsResult {
	return models.NeedsResult{Needs: []models.Need{}, Confidence: 0}
}

// Schema returns the structured-output schema for need extraction.
func Schema() *llm.JSONSchema {
	return &llm.JSONSchema{
		Name:   "needs_extraction",
		Strict: true,
		Schema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"needs", "confidence"},
			"properties": map[string]any{
				"needs": map[string]any{
					"type":     "array",
					"maxItems": MaxNeeds,
					"items": map[string]any{
						"type":                 "object",
						"additionalProperties": false,
						"required":             []string{"slug", "query"},
						"properties": map[string]any{
							"slug":  map[string]any{"type": "string"},
							"query": map[string]any{"type": "string"},
						},
					},
				},
				"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			},
		},
	}
}

// BuildPrompt returns the chat messages for extracting needs from story.
func BuildPrompt(story string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: "Story:\n" + story},
	}
}

type rawResult struct {
	Needs      *[]json.RawMessage `json:"needs"`
	Confidence *json.RawMessage   `json:"confidence"`
}

type rawNeed struct {
	Slug  any `json:"slug"`
	Query any `json:"query"`
}

var validate = validator.New()

// Parse decodes and sanitizes a model response. Items that are not objects or that
// have a blank query are skipped; slugs are re-derived with Slugify, falling back to the
// query; at most MaxNeeds are kept and confidence is clamped to [0, 1].
func Parse(raw string) (models.NeedsResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Fallback(), &ExtractionError{Stage: "decode", Err: ErrEmptyResponse}
	}
	var r rawResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Fallback(), &ExtractionError{Stage: "decode", Err: err}
	}
	if r.Needs == nil || r.Confidence == nil {
		return Fallback(), &ExtractionError{Stage: "schema", Err: errors.New("needs and confidence are required")}
	}

	out := models.NeedsResult{Needs: []models.Need{}}
	for _, item := range *r.Needs {
		if len(out.Needs) == MaxNeeds {
			break
		}
		var n rawNeed
		if err := json.Unmarshal(item, &n); err != nil {
			continue
		}
		query, _ := n.Query.(string)
		query = strings.TrimSpace(query)
		if query == "" {
			continue
		}
		slugSrc, _ := n.Slug.(string)
		slug := Slugify(slugSrc)
		if slug == "" {
			slug = Slugify(query)
		}
		if slug == "" {
			continue
		}
		out.Needs = append(out.Needs, models.Need{Slug: slug, Query: query})
	}

	var conf any
	_ = json.Unmarshal(*r.Confidence, &conf)
	out.Confidence = clamp(models.CoerceFloat(conf), 0, 1)

	if err := validate.Struct(out); err != nil {
		return Fallback(), &ExtractionError{Stage: "validate", Err: err}
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Extractor asks a language model for the needs in a story.
type Extractor struct {
	client llm.Completer
	logger *zap.Logger
}

// NewExtractor returns an Extractor. A nil client makes every extraction fall back.
func NewExtractor(client llm.Completer, logger *zap.Logger) *Extractor {
	return &Extractor{client: client, logger: utils.OrNop(logger)}
}

// Extract returns the needs in story. It never fails: any error yields Fallback().
func (e *Extractor) Extract(ctx context.Context, story string) models.NeedsResult {
	res, err := e.TryExtract(ctx, story)
	if err != nil {
		e.logger.Warn("needs extraction failed, using fallback", zap.Error(err))
		metrics.RecordLLMCall("needs", "fallback")
		metrics.RecordNeeds(0)
		return Fallback()
	}
	metrics.RecordLLMCall("needs", "ok")
	metrics.RecordNeeds(len(res.Needs))
	return res
}

// TryExtract is Extract with the failure reported as an *ExtractionError.
func (e *Extractor) TryExtract(ctx context.Context, story string) (models.NeedsResult, error) {
	story = strings.TrimSpace(story)
	if story == "" {
		return Fallback(), nil
	}
	if e.client == nil {
		return Fallback(), &ExtractionError{Stage: "call", Err: errors.New("no language model configured")}
	}
	temp := float32(0)
	raw, err := e.client.Chat(ctx, BuildPrompt(story), llm.ChatOptions{Schema: Schema(), Temperature: &temp})
	if err != nil {
		return Fallback(), &ExtractionError{Stage: "call", Err: err}
	}
	return Parse(raw)
}
