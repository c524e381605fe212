package deezer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tuneturn/tuneturn/config"
	"github.com/tuneturn/tuneturn/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	cfg := &config.Config{
		DeezerBaseURL:  server.URL,
		CatalogTimeout: 2 * time.Second,
		CatalogRPS:     1000,
		CatalogBurst:   100,
	}

	return NewWithHTTPClient(server.Client(), cfg, logger)
}

func TestChartTracks(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chart/0/tracks" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"data":[
			{"id":1,"title":"Hit One","rank":900000,"artist":{"id":10,"name":"Star"}},
			{"id":2,"title":"Hit Two","rank":800000,"artist":{"id":11,"name":"Comet"}},
			{"id":3,"title":"Hit Three","rank":700000,"artist":{"id":12,"name":"Nova"}}
		]}`))
	}))

	tracks, err := client.ChartTracks(context.Background(), 2)
	if err != nil {
		t.Fatalf("ChartTracks failed: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected limit to apply, got %d tracks", len(tracks))
	}
	if tracks[0].IdentityKey != "hit one|star" {
		t.Errorf("identity key = %q", tracks[0].IdentityKey)
	}
	if tracks[0].Popularity != 0.9 {
		t.Errorf("popularity = %f, want 0.9", tracks[0].Popularity)
	}
}

func TestArtistRadioTracks(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/artist":
			if got := r.URL.Query().Get("q"); got != "Radiohead" {
				t.Errorf("unexpected artist query %q", got)
			}
			w.Write([]byte(`{"data":[{"id":42,"name":"Radiohead"}]}`))
		case "/artist/42/radio":
			w.Write([]byte(`{"data":[{"id":5,"title":"Deep Cut","rank":100000,"artist":{"id":43,"name":"Adjacent"}}]}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	tracks, err := client.ArtistRadioTracks(context.Background(), "Radiohead", 10)
	if err != nil {
		t.Fatalf("ArtistRadioTracks failed: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Title != "Deep Cut" {
		t.Errorf("unexpected tracks %v", tracks)
	}
}

func TestRelatedArtists(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/artist":
			w.Write([]byte(`{"data":[{"id":42,"name":"Radiohead"}]}`))
		case "/artist/42/related":
			w.Write([]byte(`{"data":[{"id":50,"name":"Portishead"},{"id":51,"name":"Massive Attack"},{"id":52,"name":"Blur"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	artists, err := client.RelatedArtists(context.Background(), "Radiohead", 2)
	if err != nil {
		t.Fatalf("RelatedArtists failed: %v", err)
	}
	if len(artists) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(artists))
	}
	if artists[0].Name != "Portishead" {
		t.Errorf("unexpected artist %q", artists[0].Name)
	}
}

func TestSearchStations(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/radio" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "80s" {
			t.Errorf("unexpected query %q", got)
		}
		w.Write([]byte(`{"data":[{"id":7,"title":"80s Hits"}]}`))
	}))

	stations, err := client.SearchStations(context.Background(), "80s", 5)
	if err != nil {
		t.Fatalf("SearchStations failed: %v", err)
	}
	if len(stations) != 1 || stations[0].Name != "80s Hits" || stations[0].CatalogID != "7" {
		t.Errorf("unexpected stations %v", stations)
	}
}

func TestStationTracks(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/radio/7/tracks" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"id":8,"title":"Take On Me","rank":950000,"artist":{"id":60,"name":"a-ha"}}]}`))
	}))

	tracks, err := client.StationTracks(context.Background(), "7", 10)
	if err != nil {
		t.Fatalf("StationTracks failed: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Artist != "a-ha" {
		t.Errorf("unexpected tracks %v", tracks)
	}
}

func TestGenreTopArtists(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/genre":
			w.Write([]byte(`{"data":[{"id":113,"name":"Dance"},{"id":116,"name":"Rap/Hip Hop"}]}`))
		case "/genre/113/artists":
			w.Write([]byte(`{"data":[{"id":70,"name":"Daft Punk"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	artists, err := client.GenreTopArtists(context.Background(), "dance", 5)
	if err != nil {
		t.Fatalf("GenreTopArtists failed: %v", err)
	}
	if len(artists) != 1 || artists[0].Name != "Daft Punk" {
		t.Errorf("unexpected artists %v", artists)
	}
}

func TestGenreTopArtistsUnknownGenre(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":113,"name":"Dance"}]}`))
	}))

	_, err := client.GenreTopArtists(context.Background(), "polka", 5)
	if !errors.IsCode(err, "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestTrackDetails(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/track/5":
			w.Write([]byte(`{"id":5,"title":"Song","rank":500000,"bpm":98.5,"album":{"id":90}}`))
		case "/album/90":
			w.Write([]byte(`{"id":90,"genres":{"data":[{"id":1,"name":"Electro"}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	details, err := client.TrackDetails(context.Background(), "5")
	if err != nil {
		t.Fatalf("TrackDetails failed: %v", err)
	}
	if details.Popularity != 0.5 {
		t.Errorf("popularity = %f, want 0.5", details.Popularity)
	}
	if details.TempoBPM != 98.5 {
		t.Errorf("tempo = %f, want 98.5", details.TempoBPM)
	}
	if len(details.Genres) != 1 || details.Genres[0] != "electronic" {
		t.Errorf("genres = %v, want [electronic]", details.Genres)
	}
}

func TestTrackDetailsAlbumLookupFails(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/track/5":
			w.Write([]byte(`{"id":5,"title":"Song","rank":500000,"bpm":120,"album":{"id":90}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	details, err := client.TrackDetails(context.Background(), "5")
	if err != nil {
		t.Fatalf("TrackDetails should tolerate album failures: %v", err)
	}
	if details.Genres != nil {
		t.Errorf("expected no genres, got %v", details.Genres)
	}
	if details.TempoBPM != 120 {
		t.Errorf("tempo = %f, want 120", details.TempoBPM)
	}
}

func TestNormalizeRank(t *testing.T) {
	tests := []struct {
		name string
		rank int64
		want float64
	}{
		{"mid rank", 500000, 0.5},
		{"zero falls back to neutral", 0, 0.5},
		{"clamped at one", 2000000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeRank(tt.rank); got != tt.want {
				t.Errorf("normalizeRank(%d) = %f, want %f", tt.rank, got, tt.want)
			}
		})
	}
}
