package needs

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Food Assistance", "food-assistance"},
		{"  rental--help!! ", "rental-help"},
		{"Child care & after-school", "child-care-after-school"},
		{"---", ""},
		{"", ""},
		{"ÉCOLE 2", "cole-2"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSlugify_MaxLength(t *testing.T) {
	got := Slugify(strings.Repeat("ab ", 40))
	if len(got) > MaxSlugLength {
		t.Errorf("len = %d, want <= %d", len(got), MaxSlugLength)
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("slug ends with dash: %q", got)
	}
}
