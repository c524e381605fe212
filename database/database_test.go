package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tuneturn/tuneturn/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := New(dbPath, logger)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestRecordSelectionAndHistory(t *testing.T) {
	db := setupTestDB(t)

	records := []models.PlayRecord{
		{SessionID: "session-1", ListenerID: "alice", IdentityKey: "first|one", Title: "First", Artist: "One", Strategy: models.StrategyChart, Reason: "chart pick", PlayedAt: time.Now().Add(-2 * time.Minute)},
		{SessionID: "session-1", ListenerID: "bob", IdentityKey: "second|two", Title: "Second", Artist: "Two", Strategy: models.StrategyLibrary, ForcedPick: true, PlayedAt: time.Now().Add(-time.Minute)},
		{SessionID: "session-2", ListenerID: "carol", IdentityKey: "third|three", Title: "Third", Artist: "Three", Strategy: models.StrategyWildcard, PlayedAt: time.Now()},
	}
	for _, record := range records {
		if err := db.RecordSelection(record); err != nil {
			t.Fatalf("RecordSelection failed: %v", err)
		}
	}

	history, err := db.GetPlayHistory("session-1", 10)
	if err != nil {
		t.Fatalf("GetPlayHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 records, got %d", len(history))
	}
	if history[0].IdentityKey != "second|two" {
		t.Errorf("expected newest first, got %q", history[0].IdentityKey)
	}
	if !history[0].ForcedPick {
		t.Errorf("expected forced pick flag to round-trip")
	}
	if history[0].Strategy != models.StrategyLibrary {
		t.Errorf("expected library strategy, got %q", history[0].Strategy)
	}
}

func TestRecordSelectionValidation(t *testing.T) {
	db := setupTestDB(t)

	if err := db.RecordSelection(models.PlayRecord{IdentityKey: "a|b"}); err == nil {
		t.Errorf("expected error for empty session ID")
	}
	if err := db.RecordSelection(models.PlayRecord{SessionID: "s"}); err == nil {
		t.Errorf("expected error for empty identity key")
	}
}

func TestRecentIdentityKeys(t *testing.T) {
	db := setupTestDB(t)

	recent := models.PlayRecord{
		SessionID: "session-1", ListenerID: "alice",
		IdentityKey: "fresh|artist", Title: "Fresh", Artist: "Artist",
		Strategy: models.StrategyChart, PlayedAt: time.Now().Add(-time.Hour),
	}
	stale := models.PlayRecord{
		SessionID: "session-2", ListenerID: "bob",
		IdentityKey: "stale|artist", Title: "Stale", Artist: "Artist",
		Strategy: models.StrategyChart, PlayedAt: time.Now().Add(-24 * time.Hour),
	}
	if err := db.RecordSelection(recent); err != nil {
		t.Fatalf("RecordSelection failed: %v", err)
	}
	if err := db.RecordSelection(stale); err != nil {
		t.Fatalf("RecordSelection failed: %v", err)
	}

	keys, err := db.RecentIdentityKeys(8 * time.Hour)
	if err != nil {
		t.Fatalf("RecentIdentityKeys failed: %v", err)
	}
	if !keys.Contains("fresh|artist") {
		t.Errorf("expected recent play inside cooldown window")
	}
	if keys.Contains("stale|artist") {
		t.Errorf("expected old play outside cooldown window")
	}
}

func TestRecentIdentityKeysCrossSession(t *testing.T) {
	db := setupTestDB(t)

	record := models.PlayRecord{
		SessionID: "other-session", ListenerID: "alice",
		IdentityKey: "shared|artist", Title: "Shared", Artist: "Artist",
		Strategy: models.StrategyChart, PlayedAt: time.Now(),
	}
	if err := db.RecordSelection(record); err != nil {
		t.Fatalf("RecordSelection failed: %v", err)
	}

	keys, err := db.RecentIdentityKeys(8 * time.Hour)
	if err != nil {
		t.Fatalf("RecentIdentityKeys failed: %v", err)
	}
	if !keys.Contains("shared|artist") {
		t.Errorf("cooldown should apply across sessions")
	}
}

func TestStoreAndGetLibraryTracks(t *testing.T) {
	db := setupTestDB(t)

	tracks := []models.Track{
		models.NewTrack("Song A", "Artist A", models.StrategyLibrary),
		{Title: "Song B", Artist: "Artist B", IdentityKey: models.IdentityKey("Song B", "Artist B"), Popularity: 0.8, Genres: []string{"rock", "indie"}, TempoBPM: 128, CatalogID: "cat-42"},
	}
	if err := db.StoreLibraryTracks("alice", tracks); err != nil {
		t.Fatalf("StoreLibraryTracks failed: %v", err)
	}

	got, err := db.GetLibraryTracks("alice")
	if err != nil {
		t.Fatalf("GetLibraryTracks failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(got))
	}

	var songB *models.Track
	for i := range got {
		if got[i].Title == "Song B" {
			songB = &got[i]
		}
		if got[i].SourceStrategy != models.StrategyLibrary {
			t.Errorf("library tracks should carry the library strategy, got %q", got[i].SourceStrategy)
		}
	}
	if songB == nil {
		t.Fatalf("Song B missing from library")
	}
	if len(songB.Genres) != 2 || songB.Genres[0] != "rock" {
		t.Errorf("genres did not round-trip: %v", songB.Genres)
	}
	if songB.Popularity != 0.8 || songB.TempoBPM != 128 {
		t.Errorf("track fields did not round-trip: %+v", songB)
	}

	count, err := db.GetLibraryTrackCount("alice")
	if err != nil {
		t.Fatalf("GetLibraryTrackCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
}

func TestStoreLibraryTracksUpsert(t *testing.T) {
	db := setupTestDB(t)

	track := models.NewTrack("Same Song", "Same Artist", models.StrategyLibrary)
	track.Popularity = 0.3
	if err := db.StoreLibraryTracks("alice", []models.Track{track}); err != nil {
		t.Fatalf("StoreLibraryTracks failed: %v", err)
	}

	track.Popularity = 0.9
	if err := db.StoreLibraryTracks("alice", []models.Track{track}); err != nil {
		t.Fatalf("StoreLibraryTracks second call failed: %v", err)
	}

	got, err := db.GetLibraryTracks("alice")
	if err != nil {
		t.Fatalf("GetLibraryTracks failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected upsert to keep a single row, got %d", len(got))
	}
	if got[0].Popularity != 0.9 {
		t.Errorf("expected updated popularity, got %f", got[0].Popularity)
	}
}

func TestLibraryTracksPerListener(t *testing.T) {
	db := setupTestDB(t)

	if err := db.StoreLibraryTracks("alice", []models.Track{models.NewTrack("Hers", "A", models.StrategyLibrary)}); err != nil {
		t.Fatalf("StoreLibraryTracks failed: %v", err)
	}
	if err := db.StoreLibraryTracks("bob", []models.Track{models.NewTrack("His", "B", models.StrategyLibrary)}); err != nil {
		t.Fatalf("StoreLibraryTracks failed: %v", err)
	}

	got, err := db.GetLibraryTracks("alice")
	if err != nil {
		t.Fatalf("GetLibraryTracks failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Hers" {
		t.Errorf("library rows leaked across listeners: %+v", got)
	}
}

func TestSessionListeners(t *testing.T) {
	db := setupTestDB(t)

	if err := db.SetSessionListeners("session-1", []string{"alice", "bob", "carol"}); err != nil {
		t.Fatalf("SetSessionListeners failed: %v", err)
	}

	got, err := db.GetSessionListeners("session-1")
	if err != nil {
		t.Fatalf("GetSessionListeners failed: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(got) != len(want) {
		t.Fatalf("expected %d listeners, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rotation order broken at %d: got %q, want %q", i, got[i], want[i])
		}
	}

	// Replacing the roster drops departed members
	if err := db.SetSessionListeners("session-1", []string{"bob", "dave"}); err != nil {
		t.Fatalf("SetSessionListeners replace failed: %v", err)
	}
	got, err = db.GetSessionListeners("session-1")
	if err != nil {
		t.Fatalf("GetSessionListeners failed: %v", err)
	}
	if len(got) != 2 || got[0] != "bob" || got[1] != "dave" {
		t.Errorf("roster replace failed: %v", got)
	}
}

func TestGetSessionListenersEmpty(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.GetSessionListeners("missing")
	if err != nil {
		t.Fatalf("GetSessionListeners failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty roster, got %v", got)
	}
}

func TestConnectionStats(t *testing.T) {
	db := setupTestDB(t)

	stats := db.GetConnectionStats()
	if stats.OpenConnections < 0 {
		t.Errorf("unexpected connection stats: %+v", stats)
	}
}
