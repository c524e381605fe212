package catalog

import (
	"reflect"
	"testing"
)

func TestCanonical(t *testing.T) {
	mapper := DefaultGenreMapper()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"exact match", "pop", "pop"},
		{"alias match", "dance pop", "pop"},
		{"hyphen variant", "hip-hop", "hip hop"},
		{"case insensitive", "Classic Rock", "rock"},
		{"whitespace trimmed", "  jazz  ", "jazz"},
		{"regional qualifier", "canadian pop", "pop"},
		{"longer alias wins", "seattle indie rock", "indie"},
		{"drum and bass shorthand", "dnb", "drum and bass"},
		{"truncated name", "electro", "electronic"},
		{"unknown genre", "vaporwave polka", GenreFallback},
		{"empty string", "", GenreFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapper.Canonical(tt.raw); got != tt.want {
				t.Errorf("Canonical(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCanonicalAll(t *testing.T) {
	mapper := DefaultGenreMapper()

	got := mapper.CanonicalAll([]string{"dance pop", "electropop", "classic rock", "pop"})
	want := []string{"pop", "rock"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CanonicalAll = %v, want %v", got, want)
	}
}

func TestCanonicalAllEmpty(t *testing.T) {
	mapper := DefaultGenreMapper()

	if got := mapper.CanonicalAll(nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestCanonicalCustomTable(t *testing.T) {
	mapper := NewGenreMapper(map[string]string{"shoegaze": "indie"})

	if got := mapper.Canonical("shoegaze"); got != "indie" {
		t.Errorf("Canonical = %q, want indie", got)
	}
	if got := mapper.Canonical("pop"); got != GenreFallback {
		t.Errorf("unmapped genre should fall back, got %q", got)
	}
}
