package aggregate

import (
	"math"
	"testing"

	"github.com/hyperjump/tasuke/internal/models"
)

func TestIdentity(t *testing.T) {
	tests := []struct {
		name   string
		hit    models.Hit
		want   string
		wantOK bool
	}{
		{"service_id first", models.Hit{ID: "h", Metadata: map[string]any{"service_id": "svc", "resource_id": "res", "id": "mid"}}, "svc", true},
		{"resource_id when service_id empty", models.Hit{ID: "h", Metadata: map[string]any{"service_id": "", "resource_id": "res"}}, "res", true},
		{"metadata id", models.Hit{ID: "h", Metadata: map[string]any{"id": "mid"}}, "mid", true},
		{"hit id fallback", models.Hit{ID: "h"}, "h", true},
		{"numeric service_id", models.Hit{Metadata: map[string]any{"service_id": float64(77)}}, "77", true},
		{"nothing", models.Hit{Metadata: map[string]any{"name": "x"}}, "", false},
		{"nil metadata and no id", models.Hit{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Identity(tt.hit)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Identity() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		md   map[string]any
		want string
	}{
		{"resource_name wins", map[string]any{"resource_name": " Food Bank ", "name": "Other"}, "Food Bank"},
		{"blank resource_name skipped", map[string]any{"resource_name": "   ", "name": "Shelter"}, "Shelter"},
		{"title", map[string]any{"title": "Clinic"}, "Clinic"},
		{"organization_name last", map[string]any{"organization_name": "County"}, "County"},
		{"none", map[string]any{"city": "x"}, ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DisplayName(models.Hit{Metadata: tt.md}); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHitScore(t *testing.T) {
	if got := HitScore(models.Hit{Score: 0.42}); got != 0.42 {
		t.Errorf("got %v", got)
	}
	if got := HitScore(models.Hit{Score: math.NaN()}); got != 0 {
		t.Errorf("NaN should coerce to 0, got %v", got)
	}
	if got := HitScore(models.Hit{Score: math.Inf(1)}); got != 0 {
		t.Errorf("Inf should coerce to 0, got %v", got)
	}
}
