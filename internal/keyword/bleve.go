package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/tasuke/internal/models"
)

const defaultNameBoost = 2.0

var (
	nameFields = []string{"name", "organization"}
	bodyFields = []string{"categories", "text"}
)

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex opens the Bleve index at path, creating it when missing.
// If the mapping changes, remove the index directory and reindex.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	index, err := bleve.New(path, resourceMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemoryBleveIndex returns an index that lives only in memory.
func NewMemoryBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(resourceMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func resourceMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase and tokenize without stemming, so names match literally.
	text.Analyzer = standard.Name
	for _, f := range append(append([]string{}, nameFields...), bodyFields...) {
		doc.AddFieldMappingsAt(f, text)
	}
	doc.AddFieldMappingsAt("namespace", bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("resource", doc)
	im.DefaultType = "resource"
	im.DefaultMapping = doc
	return im
}

// Index adds or replaces the resource document.
func (b *BleveIndex) Index(ctx context.Context, r *models.Resource) error {
	return b.index.Index(r.ID, resourceDoc(r))
}

func resourceDoc(r *models.Resource) map[string]any {
	return map[string]any{
		"name":         metaString(r.Metadata, "resource_name"),
		"organization": metaString(r.Metadata, "organization_name"),
		"categories":   strings.Join(metaStrings(r.Metadata, "categories"), " "),
		"text":         r.Text,
		"namespace":    r.Namespace,
	}
}

// Search runs a disjunction of match queries over name and body fields, boosting names.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Result, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	boost := defaultNameBoost
	fuzziness := 0
	if opts != nil {
		if opts.NameBoost > 0 {
			boost = opts.NameBoost
		}
		fuzziness = min(max(opts.Fuzziness, 0), 2)
	}

	var clauses []blevequery.Query
	for _, f := range nameFields {
		clauses = append(clauses, matchQuery(query, f, boost, fuzziness))
	}
	for _, f := range bodyFields {
		clauses = append(clauses, matchQuery(query, f, 1, fuzziness))
	}

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(clauses...))
	req.Size = limit
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]Result, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

func matchQuery(q, field string, boost float64, fuzziness int) blevequery.Query {
	mq := bleve.NewMatchQuery(q)
	mq.SetField(field)
	mq.SetBoost(boost)
	if fuzziness > 0 {
		mq.SetFuzziness(fuzziness)
	}
	return mq
}

// Delete removes a document by id.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the number of indexed documents.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func metaString(md map[string]any, key string) string {
	s, _ := md[key].(string)
	return s
}

func metaStrings(md map[string]any, key string) []string {
	switch v := md[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}
