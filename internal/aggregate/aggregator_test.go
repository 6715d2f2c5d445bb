package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/hyperjump/tasuke/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordedCall struct {
	Query string
	TopK  int
	Opts  models.RetrieveOptions
}

// stubRetriever returns canned hits keyed by the query text before " Context:".
type stubRetriever struct {
	mu    sync.Mutex
	calls []recordedCall
	hits  map[string][]models.Hit
	errs  map[string]error
}

func (s *stubRetriever) Retrieve(_ context.Context, query string, topK int, opts models.RetrieveOptions) ([]models.Hit, error) {
	s.mu.Lock()
	s.calls = append(s.calls, recordedCall{Query: query, TopK: topK, Opts: opts})
	s.mu.Unlock()

	key := query
	if i := strings.Index(query, " Context:"); i >= 0 {
		key = query[:i]
	}
	if err := s.errs[key]; err != nil {
		return nil, err
	}
	return s.hits[key], nil
}

func svc(id, name string, score float64) models.Hit {
	return models.Hit{ID: id, Score: score, Metadata: map[string]any{"service_id": id, "resource_name": name}}
}

func newAggregator(r Retriever) *Aggregator {
	return NewAggregator(r, WithLogger(zap.NewNop()))
}

func TestAggregate_BlankStoryMakesNoCalls(t *testing.T) {
	r := &stubRetriever{}
	got := newAggregator(r).Aggregate(context.Background(), "   \n\t", []models.Need{{Slug: "food", Query: "food"}}, Options{})
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	if len(r.calls) != 0 {
		t.Errorf("expected no retrieval calls, got %d", len(r.calls))
	}
	data, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{}" {
		t.Errorf("blank story marshals to %s, want {}", data)
	}
}

func TestAggregate_BlankStoryWithSeveralNeeds(t *testing.T) {
	r := &stubRetriever{}
	needs := []models.Need{{Slug: "food", Query: "food"}, {Slug: "housing", Query: "rent help"}}
	got := newAggregator(r).Aggregate(context.Background(), "", needs, Options{GroupedTopK: 3})
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", got)
	}
	if _, ok := got.Get("food"); ok {
		t.Error("blank story must not create need groups")
	}
}

func TestAggregate_NoNeedsFanout(t *testing.T) {
	story := "I need help with many things"
	var hits []models.Hit
	for i, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		hits = append(hits, svc(id, strings.ToUpper(id), 1-float64(i)/10))
	}
	r := &stubRetriever{hits: map[string][]models.Hit{story: hits}}
	ro := models.RetrieveOptions{Namespace: "ns", Filter: &models.Filter{City: "Springfield"}}

	got := newAggregator(r).Aggregate(context.Background(), "  "+story+"  ", nil, Options{FullTopK: 7, GroupedTopK: 4, Retrieve: ro})

	wantCalls := []recordedCall{{Query: story, TopK: 7, Opts: ro}}
	if diff := cmp.Diff(wantCalls, r.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	want := map[string][]string{GeneralGroup: {"a", "b", "c", "d"}}
	if diff := cmp.Diff(want, groupIDs(got)); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate_NoNeedsNoHits(t *testing.T) {
	got := newAggregator(&stubRetriever{}).Aggregate(context.Background(), "story", nil, Options{})
	if len(got) != 0 {
		t.Errorf("expected empty mapping, got %v", got)
	}
}

func TestAggregate_PerNeedFanoutCount(t *testing.T) {
	r := &stubRetriever{}
	needs := []models.Need{{Slug: "food", Query: "food pantry"}, {Slug: "rent", Query: "rent help"}}

	newAggregator(r).Aggregate(context.Background(), "lost my job", needs, Options{PerNeedTopK: 4})

	if len(r.calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(r.calls))
	}
	for _, c := range r.calls[1:] {
		if !strings.Contains(c.Query, "Context:") {
			t.Errorf("per-need query %q lacks Context:", c.Query)
		}
		if c.TopK != 4 {
			t.Errorf("per-need top_k = %d, want 4", c.TopK)
		}
	}
	if r.calls[1].Query != "food pantry Context: lost my job" {
		t.Errorf("query = %q", r.calls[1].Query)
	}
}

func TestAggregate_OnlyFirstPerNeedLimitQueried(t *testing.T) {
	r := &stubRetriever{}
	needs := []models.Need{
		{Slug: "food", Query: "food"},
		{Slug: "rent", Query: "rent"},
		{Slug: "medical", Query: "medical"},
		{Slug: "extra", Query: "extra"},
	}

	newAggregator(r).Aggregate(context.Background(), "family needs food", needs, Options{PerNeedLimit: 3})

	want := []string{
		"family needs food",
		"food Context: family needs food",
		"rent Context: family needs food",
		"medical Context: family needs food",
	}
	var got []string
	for _, c := range r.calls {
		got = append(got, c.Query)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate_LimitAppliedBeforeBlankFilter(t *testing.T) {
	r := &stubRetriever{}
	needs := []models.Need{
		{Slug: "blank", Query: "   "},
		{Slug: "food", Query: "food"},
		{Slug: "rent", Query: "rent"},
	}

	newAggregator(r).Aggregate(context.Background(), "story", needs, Options{PerNeedLimit: 2})

	if len(r.calls) != 2 {
		t.Fatalf("calls = %d, want 2 (story + food)", len(r.calls))
	}
	if !strings.HasPrefix(r.calls[1].Query, "food") {
		t.Errorf("second call = %q", r.calls[1].Query)
	}
}

func TestAggregate_ContextIsCollapsedAndBounded(t *testing.T) {
	r := &stubRetriever{}
	story := "word\n\n" + strings.Repeat("x ", 300)

	newAggregator(r).Aggregate(context.Background(), story, []models.Need{{Slug: "s", Query: "q"}}, Options{})

	q := r.calls[1].Query
	excerpt := strings.TrimPrefix(q, "q Context: ")
	if len([]rune(excerpt)) != 200 {
		t.Errorf("excerpt length = %d, want 200", len([]rune(excerpt)))
	}
	if strings.Contains(excerpt, "\n") || strings.Contains(excerpt, "  ") {
		t.Errorf("excerpt not collapsed: %q", excerpt)
	}
}

func TestAggregate_ScoreMaxAndNeedsUnion(t *testing.T) {
	story := "need housing help"
	r := &stubRetriever{hits: map[string][]models.Hit{
		story:     {svc("svc-1", "Alpha", 0.2)},
		"housing": {svc("svc-1", "Alpha", 0.8)},
		"shelter": {svc("svc-1", "Alpha", 0.4)},
	}}
	needs := []models.Need{{Slug: "housing", Query: "housing"}, {Slug: "shelter", Query: "shelter"}}

	cands := newAggregator(r).Collect(context.Background(), story, needs, Options{})

	if len(cands) != 1 {
		t.Fatalf("len = %d, want 1", len(cands))
	}
	c := cands[0]
	if c.ServiceID != "svc-1" || c.Score != 0.8 || c.Name != "Alpha" {
		t.Errorf("candidate = %+v", c)
	}
	if diff := cmp.Diff([]string{"housing", "shelter"}, c.MatchedNeeds); diff != "" {
		t.Errorf("matched_needs mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate_StoryThenNeedSighting(t *testing.T) {
	story := "need housing"
	r := &stubRetriever{hits: map[string][]models.Hit{
		story:     {svc("svc-1", "Alpha", 0.2)},
		"housing": {svc("svc-1", "Alpha", 0.8)},
	}}

	cands := newAggregator(r).Collect(context.Background(), story, []models.Need{{Slug: "housing", Query: "housing"}}, Options{})

	want := []models.Candidate{{
		ID:           "svc-1",
		ServiceID:    "svc-1",
		Name:         "Alpha",
		Score:        0.8,
		MatchedNeeds: []string{"housing"},
		Metadata:     map[string]any{"service_id": "svc-1", "resource_name": "Alpha"},
	}}
	if diff := cmp.Diff(want, cands); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate_BlankSlugNeedIsUntagged(t *testing.T) {
	r := &stubRetriever{hits: map[string][]models.Hit{"q": {svc("x", "X", 0.5)}}}

	cands := newAggregator(r).Collect(context.Background(), "story", []models.Need{{Slug: "", Query: "q"}}, Options{})

	if len(cands) != 1 || len(cands[0].MatchedNeeds) != 0 {
		t.Errorf("expected untagged candidate, got %+v", cands)
	}
}

func TestAggregate_RetrieverErrorIsEmpty(t *testing.T) {
	story := "story"
	r := &stubRetriever{
		hits: map[string][]models.Hit{"rent": {svc("r1", "Rent Aid", 0.7)}},
		errs: map[string]error{story: errors.New("index offline"), "food": errors.New("timeout")},
	}
	needs := []models.Need{{Slug: "food", Query: "food"}, {Slug: "rent", Query: "rent"}}

	got := newAggregator(r).Aggregate(context.Background(), story, needs, Options{})

	want := map[string][]string{"food": {}, "rent": {"r1"}}
	if diff := cmp.Diff(want, groupIDs(got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate_CapEnforcement(t *testing.T) {
	story := "story"
	var many []models.Hit
	for i := 0; i < 30; i++ {
		id := string(rune('a' + i%26))
		if i >= 26 {
			id += "2"
		}
		many = append(many, svc(id, id, float64(i)))
	}
	r := &stubRetriever{hits: map[string][]models.Hit{story: many, "food": many[:10], "rent": many[10:20]}}
	needs := []models.Need{{Slug: "food", Query: "food"}, {Slug: "rent", Query: "rent"}}
	ag := newAggregator(r)

	cands := ag.Collect(context.Background(), story, needs, Options{MaxCandidates: 12})
	if len(cands) > 12 {
		t.Errorf("len(candidates) = %d, want <= 12", len(cands))
	}
	grouped := ag.Aggregate(context.Background(), story, needs, Options{MaxCandidates: 12, GroupedTopK: 3})
	for _, g := range grouped {
		if len(g.Candidates) > 3 {
			t.Errorf("group %s has %d candidates, want <= 3", g.Need, len(g.Candidates))
		}
	}
}

func deterministicStub() *stubRetriever {
	story := "I was evicted and need food and a doctor"
	return &stubRetriever{hits: map[string][]models.Hit{
		story:     {svc("a", "A", 0.5), svc("b", "B", 0.5), svc("c", "C", 0.3)},
		"housing": {svc("b", "B", 0.5), svc("d", "D", 0.9)},
		"food":    {svc("a", "A", 0.7), svc("e", "E", 0.5)},
		"medical": {svc("c", "C", 0.3), svc("f", "F", 0.1)},
	}}
}

func deterministicNeeds() []models.Need {
	return []models.Need{
		{Slug: "housing", Query: "housing"},
		{Slug: "food", Query: "food"},
		{Slug: "medical", Query: "medical"},
	}
}

func TestAggregate_Deterministic(t *testing.T) {
	story := "I was evicted and need food and a doctor"
	first, err := json.Marshal(newAggregator(deterministicStub()).Aggregate(context.Background(), story, deterministicNeeds(), Options{}))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(newAggregator(deterministicStub()).Aggregate(context.Background(), story, deterministicNeeds(), Options{}))
		if err != nil {
			t.Fatal(err)
		}
		if string(first) != string(again) {
			t.Fatalf("run %d differs:\n%s\n%s", i, first, again)
		}
	}
}

func TestAggregate_ParallelMatchesSequential(t *testing.T) {
	story := "I was evicted and need food and a doctor"
	seq, err := json.Marshal(newAggregator(deterministicStub()).Aggregate(context.Background(), story, deterministicNeeds(), Options{}))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		par, err := json.Marshal(newAggregator(deterministicStub()).Aggregate(context.Background(), story, deterministicNeeds(), Options{Parallel: true}))
		if err != nil {
			t.Fatal(err)
		}
		if string(seq) != string(par) {
			t.Fatalf("parallel run %d differs:\n%s\n%s", i, seq, par)
		}
	}
}

func TestRetrieverFunc(t *testing.T) {
	var gotQuery string
	f := RetrieverFunc(func(_ context.Context, q string, _ int, _ models.RetrieveOptions) ([]models.Hit, error) {
		gotQuery = q
		return []models.Hit{svc("x", "X", 1)}, nil
	})
	cands := newAggregator(f).Collect(context.Background(), "hello", nil, Options{})
	if gotQuery != "hello" || len(cands) != 1 {
		t.Errorf("query = %q, candidates = %v", gotQuery, cands)
	}
}
