package retrieval

import (
	"strings"

	"github.com/hyperjump/tasuke/internal/models"
)

// BuildFilter returns a filter for the given constraints, or nil when none are set.
// Blank strings and a false freeOnly add no constraint.
func BuildFilter(city, county, zipCode, language string, freeOnly bool) *models.Filter {
	f := &models.Filter{
		City:     strings.TrimSpace(city),
		County:   strings.TrimSpace(county),
		ZipCode:  strings.TrimSpace(zipCode),
		Language: strings.TrimSpace(language),
		FreeOnly: freeOnly,
	}
	if f.Empty() {
		return nil
	}
	return f
}

// nested holds the sub-objects that may carry a flat field in unflattened metadata.
var nested = map[string]string{
	"city":             "location",
	"county":           "location",
	"zip_code":         "location",
	"languages":        "service_details",
	"free_or_low_cost": "service_details",
}

func lookup(md map[string]any, key string) any {
	if v, ok := md[key]; ok && v != nil {
		return v
	}
	if parent, ok := nested[key]; ok {
		if sub, ok := md[parent].(map[string]any); ok {
			return sub[key]
		}
	}
	return nil
}

// Matches reports whether metadata satisfies every constraint in f. Strings compare
// exactly, language must be a member of "languages", and free_only requires
// "free_or_low_cost" to be true. A nil filter matches everything.
func Matches(f *models.Filter, md map[string]any) bool {
	if f.Empty() {
		return true
	}
	for _, c := range []struct{ key, want string }{
		{"city", f.City},
		{"county", f.County},
		{"zip_code", f.ZipCode},
	} {
		if c.want == "" {
			continue
		}
		got, _ := models.Stringify(lookup(md, c.key))
		if got != c.want {
			return false
		}
	}
	if f.Language != "" && !containsValue(lookup(md, "languages"), f.Language) {
		return false
	}
	if f.FreeOnly {
		if free, ok := lookup(md, "free_or_low_cost").(bool); !ok || !free {
			return false
		}
	}
	return true
}

func containsValue(v any, want string) bool {
	switch x := v.(type) {
	case string:
		return x == want
	case []string:
		for _, s := range x {
			if s == want {
				return true
			}
		}
	case []any:
		for _, item := range x {
			if s, ok := models.Stringify(item); ok && s == want {
				return true
			}
		}
	}
	return false
}
