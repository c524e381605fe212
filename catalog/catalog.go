// Package catalog defines the connector surface the discovery engine uses to
// reach external music catalogs. Connectors translate catalog-specific APIs
// into the shared track model; callers never see a provider's raw payloads.
package catalog

import (
	"context"

	"github.com/tuneturn/tuneturn/models"
)

// Connector is one external music catalog. A connector that cannot serve a
// given operation returns errors.ErrCatalogUnsupported so callers can fall
// through to another connector.
type Connector interface {
	// Name identifies the connector in logs and error context.
	Name() string

	// Available reports whether the connector is still usable. A connector
	// flips to unavailable permanently after an authentication failure.
	Available() bool

	// SearchTrack resolves a title and artist to a catalog track.
	SearchTrack(ctx context.Context, title, artist string) (models.Track, error)

	// TrackDetails fetches genres, tempo and popularity for a catalog track.
	TrackDetails(ctx context.Context, catalogID string) (models.TrackDetails, error)

	// RelatedArtists returns artists similar to the named one.
	RelatedArtists(ctx context.Context, artistName string, limit int) ([]models.Artist, error)

	// ArtistTopTracks returns the most popular tracks for an artist.
	ArtistTopTracks(ctx context.Context, artistName string, limit int) ([]models.Track, error)

	// ArtistRadioTracks returns a radio-style mix seeded by an artist.
	ArtistRadioTracks(ctx context.Context, artistName string, limit int) ([]models.Track, error)

	// ChartTracks returns the current global chart.
	ChartTracks(ctx context.Context, limit int) ([]models.Track, error)

	// GenreTopArtists returns prominent artists for a genre.
	GenreTopArtists(ctx context.Context, genre string, limit int) ([]models.Artist, error)

	// SearchStations finds curated radio stations matching a query.
	SearchStations(ctx context.Context, query string, limit int) ([]models.Station, error)

	// StationTracks returns the track list of a radio station.
	StationTracks(ctx context.Context, stationID string, limit int) ([]models.Track, error)
}
