package models

import (
	"testing"
)

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		artist   string
		expected string
	}{
		{
			name:     "Lowercase normalization",
			title:    "Song A",
			artist:   "Artist X",
			expected: "song a|artist x",
		},
		{
			name:     "Whitespace trimmed",
			title:    "  Song A  ",
			artist:   " Artist X ",
			expected: "song a|artist x",
		},
		{
			name:     "Already normalized",
			title:    "song a",
			artist:   "artist x",
			expected: "song a|artist x",
		},
		{
			name:     "Empty values",
			title:    "",
			artist:   "",
			expected: "|",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IdentityKey(tt.title, tt.artist); got != tt.expected {
				t.Errorf("IdentityKey(%q, %q) = %q, want %q", tt.title, tt.artist, got, tt.expected)
			}
		})
	}
}

func TestNewTrack(t *testing.T) {
	track := NewTrack("Song A", "Artist X", StrategyChart)

	if track.IdentityKey != "song a|artist x" {
		t.Errorf("Expected identity key 'song a|artist x', got %q", track.IdentityKey)
	}
	if track.SourceStrategy != StrategyChart {
		t.Errorf("Expected strategy chart, got %s", track.SourceStrategy)
	}
	if track.Popularity != DefaultPopularity {
		t.Errorf("Expected default popularity %.2f, got %.2f", DefaultPopularity, track.Popularity)
	}
}

func TestCandidatePoolDedup(t *testing.T) {
	pool := NewCandidatePool("cycle-1")

	first := NewTrack("Song A", "Artist X", StrategyRelatedArtist)
	second := NewTrack("Song A", "Artist X", StrategyChart)

	if !pool.Add(first) {
		t.Error("First insert should succeed")
	}
	if pool.Add(second) {
		t.Error("Duplicate identity key should be rejected")
	}
	if pool.Len() != 1 {
		t.Errorf("Expected pool size 1, got %d", pool.Len())
	}

	stored, ok := pool.Get("song a|artist x")
	if !ok {
		t.Fatal("Track should be retrievable by key")
	}
	if stored.SourceStrategy != StrategyRelatedArtist {
		t.Errorf("First-seen strategy should win, got %s", stored.SourceStrategy)
	}
}

func TestCandidatePoolOrder(t *testing.T) {
	pool := NewCandidatePool("cycle-1")
	pool.Add(NewTrack("Song A", "Artist X", StrategyChart))
	pool.Add(NewTrack("Song B", "Artist Y", StrategyChart))
	pool.Add(NewTrack("Song C", "Artist Z", StrategyWildcard))

	tracks := pool.Tracks()
	if len(tracks) != 3 {
		t.Fatalf("Expected 3 tracks, got %d", len(tracks))
	}

	expected := []string{"song a|artist x", "song b|artist y", "song c|artist z"}
	for i, key := range expected {
		if tracks[i].IdentityKey != key {
			t.Errorf("Position %d: expected %q, got %q", i, key, tracks[i].IdentityKey)
		}
	}
}

func TestCooldownSet(t *testing.T) {
	set := NewCooldownSet([]string{"song a|artist x", "song b|artist y"})

	if !set.Contains("song a|artist x") {
		t.Error("Expected key to be present")
	}
	if set.Contains("song c|artist z") {
		t.Error("Expected key to be absent")
	}

	empty := NewCooldownSet(nil)
	if empty.Contains("song a|artist x") {
		t.Error("Empty set should contain nothing")
	}
}

func TestTopGenres(t *testing.T) {
	profile := &ListenerProfile{
		ListenerID: "alice",
		GenreAffinity: map[string]float64{
			"pop":   5,
			"rock":  3,
			"jazz":  3,
			"blues": 1,
		},
	}

	top := profile.TopGenres(3)
	if len(top) != 3 {
		t.Fatalf("Expected 3 genres, got %d", len(top))
	}
	if top[0] != "pop" {
		t.Errorf("Expected 'pop' first, got %q", top[0])
	}
	// jazz and rock tie at 3; alphabetical order breaks the tie
	if top[1] != "jazz" || top[2] != "rock" {
		t.Errorf("Expected [jazz rock] after pop, got %v", top[1:])
	}
}

func TestTopGenresEmpty(t *testing.T) {
	profile := &ListenerProfile{
		ListenerID:    "bob",
		GenreAffinity: map[string]float64{},
	}

	if got := profile.TopGenres(3); len(got) != 0 {
		t.Errorf("Expected no genres, got %v", got)
	}
}

func TestHasLibraryKey(t *testing.T) {
	track := NewTrack("Song A", "Artist X", StrategyLibrary)
	profile := &ListenerProfile{
		ListenerID:       "alice",
		LibraryTrackKeys: map[string]Track{track.IdentityKey: track},
	}

	if !profile.HasLibraryKey("song a|artist x") {
		t.Error("Expected library key to be present")
	}
	if profile.HasLibraryKey("song b|artist y") {
		t.Error("Expected library key to be absent")
	}
}
