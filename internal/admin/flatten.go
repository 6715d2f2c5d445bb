package admin

import (
	"strings"
)

// expectedKeys are always present in a flattened record so the review UI can render them.
var expectedKeys = []string{
	"resource_name", "organization_name", "categories", "fees", "languages",
	"hours_notes", "street", "city", "state", "zip_code", "county",
	"phone", "website", "email", "last_updated", "source_file", "resource_id", "full_address",
	"eligibility", "application_process",
}

// nestedFields maps a flat key to the sub-object and key it may be nested under.
var nestedFields = []struct{ flat, parent, key string }{
	{"phone", "contact", "phone"},
	{"website", "contact", "website"},
	{"email", "contact", "email"},
	{"full_address", "location", "full_address"},
	{"street", "location", "street"},
	{"city", "location", "city"},
	{"state", "location", "state"},
	{"zip_code", "location", "zip_code"},
	{"county", "location", "county"},
	{"hours_notes", "hours", "notes"},
	{"fees", "service_details", "fees"},
	{"eligibility", "service_details", "eligibility"},
	{"application_process", "service_details", "application_process"},
	{"languages", "service_details", "languages"},
}

// coalesce returns the first value that is not nil, a blank string, or an empty collection.
func coalesce(vals ...any) any {
	for _, v := range vals {
		switch x := v.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(x) == "" {
				continue
			}
		case []any:
			if len(x) == 0 {
				continue
			}
		case map[string]any:
			if len(x) == 0 {
				continue
			}
		}
		return v
	}
	return nil
}

// asList turns nil into an empty list, splits strings on commas and wraps scalars.
func asList(v any) []any {
	switch x := v.(type) {
	case nil:
		return []any{}
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case string:
		out := []any{}
		for _, p := range strings.Split(x, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return []any{v}
	}
}

func sub(md map[string]any, key string) map[string]any {
	m, _ := md[key].(map[string]any)
	return m
}

// FlattenMetadata lifts contact, location, hours and service_details fields to the top
// level, normalizes categories and languages to lists, and makes sure every expected key
// exists (nil when unknown). Flat values win over nested ones. md is not modified.
func FlattenMetadata(md map[string]any) map[string]any {
	out := make(map[string]any, len(md)+len(expectedKeys))
	for k, v := range md {
		out[k] = v
	}
	for _, f := range nestedFields {
		out[f.flat] = coalesce(md[f.flat], sub(md, f.parent)[f.key])
	}
	out["languages"] = asList(out["languages"])
	out["categories"] = asList(md["categories"])
	out["resource_id"] = coalesce(md["resource_id"], md["id"])
	out["last_updated"] = md["last_updated"]
	out["source_file"] = md["source_file"]
	for _, k := range expectedKeys {
		if _, ok := out[k]; !ok {
			out[k] = nil
		}
	}
	return out
}

// unknown is shown for any empty field.
const unknown = "Unknown"

// withPlaceholders replaces empty values with "Unknown", leaving list fields as lists.
func withPlaceholders(md map[string]any) map[string]any {
	for k, v := range md {
		if k == "categories" || k == "languages" {
			if l, ok := v.([]any); !ok || len(l) == 0 {
				md[k] = []any{}
			}
			continue
		}
		if s, ok := v.(string); v == nil || (ok && strings.TrimSpace(s) == "") {
			md[k] = unknown
		}
	}
	return md
}
