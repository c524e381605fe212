package models

import (
	"strings"
	"time"
)

// SourceStrategy tags a candidate with the discovery strategy that produced it.
type SourceStrategy string

const (
	StrategyLibrary       SourceStrategy = "library"
	StrategyRelatedArtist SourceStrategy = "related_artist"
	StrategyArtistRadio   SourceStrategy = "artist_radio"
	StrategyChart         SourceStrategy = "chart"
	StrategyGenreExplore  SourceStrategy = "genre_explore"
	StrategyCuratedRadio  SourceStrategy = "curated_radio"
	StrategyEra           SourceStrategy = "era"
	StrategyWildcard      SourceStrategy = "wildcard"
)

// DefaultTempoBPM is the neutral tempo assumed when a listener's library
// carries no tempo information at all.
const DefaultTempoBPM = 120.0

// DefaultPopularity is assumed for tracks whose catalog reports none.
const DefaultPopularity = 0.5

// IdentityKey normalizes a title/artist pair into the key used for
// deduplication and cooldown matching.
func IdentityKey(title, artist string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.TrimSpace(artist))
}

// Track is one scored unit of candidate selection.
type Track struct {
	IdentityKey    string         `json:"identityKey"`
	Title          string         `json:"title"`
	Artist         string         `json:"artist"`
	Popularity     float64        `json:"popularity"` // normalized 0-1
	Genres         []string       `json:"genres,omitempty"`
	TempoBPM       float64        `json:"tempoBpm,omitempty"` // 0 means unknown
	SourceStrategy SourceStrategy `json:"sourceStrategy"`
	CatalogID      string         `json:"catalogId,omitempty"` // opaque, follow-up lookups only
}

// NewTrack builds a Track with its identity key derived from title and artist.
func NewTrack(title, artist string, strategy SourceStrategy) Track {
	return Track{
		IdentityKey:    IdentityKey(title, artist),
		Title:          title,
		Artist:         artist,
		Popularity:     DefaultPopularity,
		SourceStrategy: strategy,
	}
}

// TrackDetails carries the metadata a catalog can report for a known track.
type TrackDetails struct {
	Genres     []string `json:"genres,omitempty"`
	TempoBPM   float64  `json:"tempoBpm,omitempty"`
	Popularity float64  `json:"popularity"`
}

// Artist identifies an artist within one catalog.
type Artist struct {
	CatalogID string `json:"catalogId"`
	Name      string `json:"name"`
}

// Station identifies a curated radio station within one catalog.
type Station struct {
	CatalogID string `json:"catalogId"`
	Name      string `json:"name"`
}

// ListenerProfile is an immutable per-cycle taste snapshot for one listener.
type ListenerProfile struct {
	ListenerID       string             `json:"listenerId"`
	GenreAffinity    map[string]float64 `json:"genreAffinity"`
	AvgTempoBPM      float64            `json:"avgTempoBpm"`
	LibraryTrackKeys map[string]Track   `json:"-"`
	BuiltAt          time.Time          `json:"builtAt"`
}

// HasLibraryKey reports whether the listener contributed the given identity key.
func (p *ListenerProfile) HasLibraryKey(key string) bool {
	_, ok := p.LibraryTrackKeys[key]
	return ok
}

// TopGenres returns up to n genres by descending affinity weight.
// Ties are broken alphabetically so results are stable.
func (p *ListenerProfile) TopGenres(n int) []string {
	type entry struct {
		genre  string
		weight float64
	}
	entries := make([]entry, 0, len(p.GenreAffinity))
	for g, w := range p.GenreAffinity {
		entries = append(entries, entry{g, w})
	}
	for i := 0; i < len(entries)-1; i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].weight > entries[i].weight ||
				(entries[j].weight == entries[i].weight && entries[j].genre < entries[i].genre) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}
	if n > len(entries) {
		n = len(entries)
	}
	genres := make([]string, 0, n)
	for _, e := range entries[:n] {
		genres = append(genres, e.genre)
	}
	return genres
}

// CooldownSet is a read-only snapshot of identity keys ineligible for replay.
type CooldownSet map[string]struct{}

// NewCooldownSet builds a cooldown snapshot from identity keys.
func NewCooldownSet(keys []string) CooldownSet {
	set := make(CooldownSet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Contains reports whether the identity key is cooling down.
func (c CooldownSet) Contains(key string) bool {
	_, ok := c[key]
	return ok
}

// CandidatePool is an ordered, deduplicated mapping of identity key to Track,
// tagged with the cycle that produced it. First writer wins on duplicates.
type CandidatePool struct {
	CycleID string    `json:"cycleId"`
	BuiltAt time.Time `json:"builtAt"`

	order  []string
	tracks map[string]Track
}

// NewCandidatePool creates an empty pool for the given cycle.
func NewCandidatePool(cycleID string) *CandidatePool {
	return &CandidatePool{
		CycleID: cycleID,
		BuiltAt: time.Now(),
		tracks:  make(map[string]Track),
	}
}

// Add inserts a track unless its identity key is already present.
// Returns true when the track was inserted.
func (p *CandidatePool) Add(track Track) bool {
	if _, exists := p.tracks[track.IdentityKey]; exists {
		return false
	}
	p.tracks[track.IdentityKey] = track
	p.order = append(p.order, track.IdentityKey)
	return true
}

// Get returns the track stored under the identity key.
func (p *CandidatePool) Get(key string) (Track, bool) {
	track, ok := p.tracks[key]
	return track, ok
}

// Tracks returns the pool contents in insertion order.
func (p *CandidatePool) Tracks() []Track {
	out := make([]Track, 0, len(p.order))
	for _, key := range p.order {
		out = append(out, p.tracks[key])
	}
	return out
}

// Len returns the number of deduplicated tracks in the pool.
func (p *CandidatePool) Len() int {
	return len(p.order)
}

// ScoreBreakdown explains how a candidate's score was composed.
type ScoreBreakdown struct {
	Genre       float64 `json:"genre"`
	Popularity  float64 `json:"popularity"`
	Exploration float64 `json:"exploration"`
	Jitter      float64 `json:"jitter"`
}

// SelectionResult is the committed outcome of one turn.
type SelectionResult struct {
	Track             Track          `json:"track"`
	ActingListenerID  string         `json:"actingListenerId"`
	Score             float64        `json:"score"`
	ScoreBreakdown    ScoreBreakdown `json:"scoreBreakdown"`
	ForcedLibraryPick bool           `json:"forcedLibraryPick"`
	Reason            string         `json:"reason"`
}

// PlayRecord is one persisted playback history entry.
type PlayRecord struct {
	ID          int64          `json:"id"`
	SessionID   string         `json:"sessionId"`
	ListenerID  string         `json:"listenerId"`
	IdentityKey string         `json:"identityKey"`
	Title       string         `json:"title"`
	Artist      string         `json:"artist"`
	Strategy    SourceStrategy `json:"strategy"`
	Reason      string         `json:"reason"`
	ForcedPick  bool           `json:"forcedPick"`
	PlayedAt    time.Time      `json:"playedAt"`
}
