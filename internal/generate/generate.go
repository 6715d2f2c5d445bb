// Package generate writes the human-facing text around grouped results: per-card summaries
// and an action plan. Every output has a deterministic fallback when the model is unavailable.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hyperjump/tasuke/internal/llm"
	"github.com/hyperjump/tasuke/internal/metrics"
	"github.com/hyperjump/tasuke/internal/models"
	"github.com/hyperjump/tasuke/pkg/utils"
)

const systemPrompt = `You are a helpful assistant that routes people to local community resources.
Use ONLY the provided resources. Keep summaries factual; do not invent contact details.`

const (
	textExcerptRunes  = 900
	resourcesPerGroup = 3
	namesPerGroup     = 2
)

var titleCaser = cases.Title(language.English)

// Generator produces card summaries and action plans.
type Generator struct {
	client llm.Completer
	logger *zap.Logger
}

// New returns a Generator. A nil client always uses the fallbacks.
func New(client llm.Completer, logger *zap.Logger) *Generator {
	return &Generator{client: client, logger: utils.OrNop(logger)}
}

type cardItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Org         string   `json:"org"`
	Text        string   `json:"text"`
	Eligibility string   `json:"eligibility"`
	Fees        string   `json:"fees"`
	Languages   []string `json:"languages"`
	Categories  []string `json:"categories"`
}

type cardsResponse struct {
	Cards []struct {
		ID      string `json:"id"`
		Summary string `json:"summary"`
	} `json:"cards"`
}

// SummaryKey returns the key a candidate's summary is stored under.
func SummaryKey(c models.Candidate) string {
	if c.ID != "" {
		return c.ID
	}
	if s, ok := models.Stringify(c.Metadata["resource_id"]); ok {
		return s
	}
	return c.ServiceID
}

// CardSummaries returns a one or two sentence summary per candidate, keyed by SummaryKey.
func (g *Generator) CardSummaries(ctx context.Context, story string, candidates []models.Candidate) map[string]string {
	items := make([]cardItem, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, toCardItem(c))
	}

	summaries, err := g.modelSummaries(ctx, story, items)
	if err != nil {
		g.logger.Warn("card summaries failed, using fallback", zap.Error(err))
		metrics.RecordLLMCall("summaries", "fallback")
		summaries = map[string]string{}
	} else {
		metrics.RecordLLMCall("summaries", "ok")
	}

	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if _, ok := summaries[it.ID]; ok {
			continue
		}
		summaries[it.ID] = FallbackSummary(it.Name, it.Org, it.Fees, it.Categories, it.Languages)
	}
	return summaries
}

func (g *Generator) modelSummaries(ctx context.Context, story string, items []cardItem) (map[string]string, error) {
	if g.client == nil {
		return nil, errors.New("no language model configured")
	}
	if len(items) == 0 {
		return map[string]string{}, nil
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal items: %w", err)
	}
	prompt := fmt.Sprintf("User question: %s\nItems JSON:\n%s\n%s", story, payload,
		"For each item, write a concise 1-2 sentence summary tailored to the user's question. "+
			"Mention what it provides and any clear eligibility, cost, or language. Respond in JSON only.")

	raw, err := g.client.Chat(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{Schema: cardsSchema()})
	if err != nil {
		return nil, err
	}

	var resp cardsResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse card summaries: %w", err)
	}
	out := make(map[string]string, len(resp.Cards))
	for _, c := range resp.Cards {
		if c.ID == "" {
			continue
		}
		out[c.ID] = strings.TrimSpace(c.Summary)
	}
	return out, nil
}

func cardsSchema() *llm.JSONSchema {
	return &llm.JSONSchema{
		Name:   "card_summaries",
		Strict: true,
		Schema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"cards"},
			"properties": map[string]any{
				"cards": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":                 "object",
						"additionalProperties": false,
						"required":             []string{"id", "summary"},
						"properties": map[string]any{
							"id":      map[string]any{"type": "string"},
							"summary": map[string]any{"type": "string"},
						},
					},
				},
			},
		},
	}
}

// FallbackSummary builds a single-line summary from resource metadata.
func FallbackSummary(name, org, fees string, categories, languages []string) string {
	if name == "" {
		name = "Resource"
	}
	if org == "" {
		org = "Organization"
	}
	services := strings.ToLower(strings.Join(categories, ", "))
	if services == "" {
		services = "services"
	}
	parts := []string{fmt.Sprintf("%s - %s provides %s", name, org, services)}
	if fees != "" {
		parts = append(parts, "("+fees+")")
	}
	if len(languages) > 0 {
		parts = append(parts, "Languages: "+strings.Join(languages, ", "))
	}
	return strings.Join(parts, " ")
}

func toCardItem(c models.Candidate) cardItem {
	md := c.Metadata
	eligibility := str(md["eligibility"])
	if eligibility == "" {
		if details, ok := md["service_details"].(map[string]any); ok {
			eligibility = str(details["eligibility"])
		}
	}
	return cardItem{
		ID:          SummaryKey(c),
		Name:        str(md["resource_name"]),
		Org:         str(md["organization_name"]),
		Text:        utils.Truncate(strings.TrimSpace(str(md["text"])), textExcerptRunes),
		Eligibility: eligibility,
		Fees:        str(md["fees"]),
		Languages:   strs(md["languages"]),
		Categories:  strs(md["categories"]),
	}
}

type planResource struct {
	Name         string   `json:"name"`
	Organization string   `json:"organization"`
	Summary      string   `json:"summary"`
	Categories   []string `json:"categories"`
}

type planEntry struct {
	Need      string         `json:"need"`
	Label     string         `json:"label"`
	Resources []planResource `json:"resources"`
}

// Label turns a need slug into a display label, e.g. "food-assistance" to "Food Assistance".
func Label(slug string) string {
	if slug == "" {
		slug = "support options"
	}
	return titleCaser.String(strings.ReplaceAll(slug, "-", " "))
}

// ActionPlan returns a short narrative grounded in the grouped results, or "" when there
// is nothing to plan for.
func (g *Generator) ActionPlan(ctx context.Context, story string, grouped models.GroupedResults) string {
	story = strings.TrimSpace(story)
	if story == "" || len(grouped) == 0 {
		return ""
	}

	entries := make([]planEntry, 0, len(grouped))
	for _, grp := range grouped {
		e := planEntry{Need: grp.Need, Label: Label(grp.Need), Resources: []planResource{}}
		for i, c := range grp.Candidates {
			if i == resourcesPerGroup {
				break
			}
			name := str(c.Metadata["resource_name"])
			if name == "" {
				name = c.Name
			}
			e.Resources = append(e.Resources, planResource{
				Name:         name,
				Organization: str(c.Metadata["organization_name"]),
				Summary:      c.ModelSummary,
				Categories:   strs(c.Metadata["categories"]),
			})
		}
		entries = append(entries, e)
	}

	text, err := g.modelPlan(ctx, story, entries)
	if err == nil && text != "" {
		metrics.RecordLLMCall("plan", "ok")
		return text
	}
	if err != nil {
		g.logger.Warn("action plan failed, using fallback", zap.Error(err))
	}
	metrics.RecordLLMCall("plan", "fallback")
	return fallbackPlan(entries)
}

func (g *Generator) modelPlan(ctx context.Context, story string, entries []planEntry) (string, error) {
	if g.client == nil {
		return "", errors.New("no language model configured")
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan payload: %w", err)
	}
	prompt := fmt.Sprintf("User story: %s\nGrouped results JSON: %s\n%s", story, payload,
		"Write a compassionate, empowering action plan for the person described in the user story. "+
			"Use two to three paragraphs. The first paragraph should acknowledge their situation. "+
			"Later paragraphs should suggest concrete next steps, referencing the kinds of resources available "+
			"for each need (for example food pantries or rental assistance). Stay factual and concise.")
	raw, err := g.client.Chat(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

func fallbackPlan(entries []planEntry) string {
	parts := []string{"We understand your situation and are here to help connect you with nearby support."}
	for _, e := range entries {
		if len(e.Resources) == 0 {
			continue
		}
		var names []string
		catSet := make(map[string]struct{})
		for _, r := range e.Resources {
			if r.Name != "" {
				names = append(names, r.Name)
			}
			for _, c := range r.Categories {
				catSet[c] = struct{}{}
			}
		}
		if len(names) > 0 {
			if len(names) > namesPerGroup {
				names = names[:namesPerGroup]
			}
			parts = append(parts, fmt.Sprintf("For %s, consider reaching out to resources such as %s.", e.Label, strings.Join(names, ", ")))
			continue
		}
		if len(catSet) > 0 {
			cats := make([]string, 0, len(catSet))
			for c := range catSet {
				cats = append(cats, c)
			}
			sort.Strings(cats)
			parts = append(parts, fmt.Sprintf("For %s, there are options offering %s.", e.Label, strings.Join(cats, ", ")))
		}
	}
	parts = append(parts, "Please contact these organizations to confirm details like hours, eligibility, and availability.")
	return strings.Join(parts, "\n\n")
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func strs(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}
