package catalog

import (
	"sort"
	"strings"
)

// GenreFallback is the canonical bucket for genres no alias matches.
const GenreFallback = "other"

// GenreMapper folds the free-form genre strings catalogs return into a small
// canonical vocabulary. The mapping is deliberately lossy: "canadian pop" and
// "dance pop" both land on "pop" so profiles built from different catalogs
// stay comparable.
type GenreMapper struct {
	aliases map[string]string
	ordered []string
}

// NewGenreMapper builds a mapper from an alias table. Keys are raw genre
// strings, values the canonical genre they fold into.
func NewGenreMapper(aliases map[string]string) *GenreMapper {
	ordered := make([]string, 0, len(aliases))
	for alias := range aliases {
		ordered = append(ordered, alias)
	}
	// Longer aliases first so "indie rock" wins over "rock" on substring match
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})

	return &GenreMapper{aliases: aliases, ordered: ordered}
}

// DefaultGenreMapper returns the built-in alias table.
func DefaultGenreMapper() *GenreMapper {
	return NewGenreMapper(map[string]string{
		"pop": "pop", "dance pop": "pop", "electropop": "pop",
		"rock": "rock", "classic rock": "rock",
		"hip hop": "hip hop", "hip-hop": "hip hop", "hiphop": "hip hop",
		"rap": "rap",
		"r&b": "r&b", "rnb": "r&b", "r and b": "r&b", "rhythm and blues": "r&b",
		"electronic": "electronic", "electronica": "electronic",
		"dance": "dance",
		"edm":   "edm",
		"house": "house", "deep house": "house", "tech house": "house",
		"techno": "techno",
		"jazz":   "jazz", "smooth jazz": "jazz",
		"blues": "blues",
		"soul":  "soul", "neo-soul": "soul", "neo soul": "soul",
		"funk":    "funk",
		"reggae":  "reggae",
		"country": "country",
		"folk":    "folk", "indie folk": "folk",
		"indie": "indie", "indie rock": "indie", "indie pop": "indie",
		"alternative": "alternative", "alt rock": "alternative",
		"punk": "punk", "pop punk": "punk",
		"metal": "metal", "heavy metal": "metal",
		"classical": "classical",
		"latin":     "latin", "latin pop": "latin",
		"k-pop": "k-pop", "kpop": "k-pop", "k pop": "k-pop",
		"j-pop": "j-pop", "jpop": "j-pop", "j pop": "j-pop",
		"trap":      "trap",
		"drill":     "drill",
		"afrobeats": "afrobeats", "afrobeat": "afrobeats",
		"reggaeton": "reggaeton",
		"disco":     "disco",
		"ambient":   "ambient",
		"lo-fi":     "lo-fi", "lofi": "lo-fi", "lo fi": "lo-fi",
		"chill": "chill", "chillout": "chill",
		"acoustic":          "acoustic",
		"singer-songwriter": "singer-songwriter", "singer songwriter": "singer-songwriter",
		"grunge":        "grunge",
		"emo":           "emo",
		"ska":           "ska",
		"dub":           "dub",
		"dubstep":       "dubstep",
		"trance":        "trance",
		"drum and bass": "drum and bass", "dnb": "drum and bass", "d&b": "drum and bass",
		"garage": "garage", "uk garage": "garage",
		"grime":    "grime",
		"gospel":   "gospel",
		"opera":    "opera",
		"new wave": "new wave",
		"synthpop": "synthpop", "synth-pop": "synthpop", "synth pop": "synthpop",
	})
}

// Canonical maps one raw genre string to its canonical genre. Unknown genres
// fold into GenreFallback.
func (m *GenreMapper) Canonical(raw string) string {
	genre := strings.ToLower(strings.TrimSpace(raw))
	if genre == "" {
		return GenreFallback
	}

	if canonical, ok := m.aliases[genre]; ok {
		return canonical
	}

	// Substring pass in both directions so regional qualifiers
	// ("canadian pop") and truncated names ("electro") still resolve
	for _, alias := range m.ordered {
		if strings.Contains(genre, alias) || strings.Contains(alias, genre) {
			return m.aliases[alias]
		}
	}

	return GenreFallback
}

// CanonicalAll maps a genre list, dropping duplicates while preserving the
// order of first appearance.
func (m *GenreMapper) CanonicalAll(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(raw))
	canonical := make([]string, 0, len(raw))
	for _, genre := range raw {
		mapped := m.Canonical(genre)
		if _, ok := seen[mapped]; ok {
			continue
		}
		seen[mapped] = struct{}{}
		canonical = append(canonical, mapped)
	}

	return canonical
}
