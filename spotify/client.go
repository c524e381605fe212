// Package spotify implements the primary catalog connector. It resolves
// track metadata, genres, tempo and popularity through a Spotify-compatible
// web API authenticated with the client credentials flow.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/tuneturn/tuneturn/catalog"
	"github.com/tuneturn/tuneturn/config"
	"github.com/tuneturn/tuneturn/errors"
	"github.com/tuneturn/tuneturn/models"
)

const (
	ConnectorName = "spotify"

	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 500 * time.Millisecond

	topTracksMarket = "US"
)

type Client struct {
	httpClient  *http.Client
	baseURL     string
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      *logrus.Logger
	genres      *catalog.GenreMapper
	maxRetries  int
	baseBackoff time.Duration
	disabled    atomic.Bool
}

var _ catalog.Connector = (*Client)(nil)

// New creates a connector authenticated through the client credentials flow.
// The oauth2 transport caches the access token and refreshes it on expiry.
func New(cfg *config.Config, logger *logrus.Logger) *Client {
	creds := &clientcredentials.Config{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
		TokenURL:     cfg.SpotifyTokenURL,
	}

	return NewWithHTTPClient(creds.Client(context.Background()), cfg, logger)
}

// NewWithHTTPClient creates a connector with a caller-supplied HTTP client.
func NewWithHTTPClient(httpClient *http.Client, cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		httpClient:  httpClient,
		baseURL:     cfg.SpotifyBaseURL,
		timeout:     cfg.CatalogTimeout,
		limiter:     rate.NewLimiter(rate.Limit(cfg.CatalogRPS), cfg.CatalogBurst),
		logger:      logger,
		genres:      catalog.DefaultGenreMapper(),
		maxRetries:  DefaultMaxRetries,
		baseBackoff: DefaultBaseBackoff,
	}
}

func (c *Client) Name() string {
	return ConnectorName
}

func (c *Client) Available() bool {
	return !c.disabled.Load()
}

// get performs one rate-limited GET with retry and decodes the JSON body
// into out. A 401 or 403 response disables the connector permanently.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if c.disabled.Load() {
		return errors.ErrConnectorDisabled.WithContext("connector", ConnectorName)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryCatalog, "RATE_LIMIT_WAIT", "rate limiter wait aborted").
			WithContext("connector", ConnectorName)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, errors.CategoryCatalog, "REQUEST_FAILED", "failed to build catalog request").
			WithContext("connector", ConnectorName).
			WithContext("path", path)
	}

	resp, err := c.doWithRetry(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if c.disabled.CompareAndSwap(false, true) {
			c.logger.WithFields(logrus.Fields{
				"connector": ConnectorName,
				"status":    resp.StatusCode,
			}).Error("Catalog authentication failed, connector disabled")
		}
		return errors.ErrCatalogAuth.
			WithContext("connector", ConnectorName).
			WithContext("status", resp.StatusCode)
	}

	if resp.StatusCode == http.StatusNotFound {
		return errors.New(errors.CategoryCatalog, "NOT_FOUND", "catalog resource not found").
			WithContext("connector", ConnectorName).
			WithContext("path", path)
	}

	if resp.StatusCode != http.StatusOK {
		return errors.ErrCatalogRequest.
			WithContext("connector", ConnectorName).
			WithContext("path", path).
			WithContext("status", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.CategoryCatalog, "DECODE_FAILED", "failed to decode catalog response").
			WithContext("connector", ConnectorName).
			WithContext("path", path)
	}

	return nil
}

// doWithRetry retries transient failures with exponential backoff, honoring
// Retry-After on 429 responses.
func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	var lastStatus int
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CategoryCatalog, "REQUEST_CANCELED", "catalog request canceled").
				WithContext("connector", ConnectorName)
		}

		resp, err := c.httpClient.Do(req)
		retryAfter, retry := shouldRetry(resp, err)
		if !retry {
			if err != nil {
				return nil, errors.Wrap(err, errors.CategoryCatalog, "REQUEST_FAILED", "catalog request failed").
					WithContext("connector", ConnectorName)
			}
			return resp, nil
		}

		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"connector": ConnectorName,
				"attempt":   attempt + 1,
			}).Warn("Retrying catalog request after error")
		} else {
			lastStatus = resp.StatusCode
			resp.Body.Close()
			c.logger.WithFields(logrus.Fields{
				"connector": ConnectorName,
				"attempt":   attempt + 1,
				"status":    resp.StatusCode,
			}).Warn("Retrying catalog request after status")
		}

		if attempt == c.maxRetries-1 {
			break
		}

		backoff := c.baseBackoff * time.Duration(1<<attempt)
		if retryAfter > 0 {
			backoff = retryAfter
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Wrap(ctx.Err(), errors.CategoryCatalog, "REQUEST_CANCELED", "catalog request canceled during backoff").
				WithContext("connector", ConnectorName)
		case <-timer.C:
		}
	}

	return nil, errors.ErrCatalogUnavailable.
		WithContext("connector", ConnectorName).
		WithContext("attempts", c.maxRetries).
		WithContext("last_status", lastStatus)
}

func shouldRetry(resp *http.Response, err error) (time.Duration, bool) {
	if err != nil {
		return 0, true
	}
	if resp == nil {
		return 0, false
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return parseRetryAfter(resp), true
	}

	return 0, false
}

func parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if when, err := http.ParseTime(retryAfter); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}

	return 0
}

// SearchTrack resolves a title and artist to the closest catalog match.
func (c *Client) SearchTrack(ctx context.Context, title, artist string) (models.Track, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("track:%s artist:%s", title, artist))
	query.Set("type", "track")
	query.Set("limit", "1")

	var payload searchResponse
	if err := c.get(ctx, "/search", query, &payload); err != nil {
		return models.Track{}, err
	}

	if len(payload.Tracks.Items) == 0 {
		return models.Track{}, errors.New(errors.CategoryCatalog, "NOT_FOUND", "no track matched the search").
			WithContext("connector", ConnectorName).
			WithContext("title", title).
			WithContext("artist", artist)
	}

	return c.mapTrack(payload.Tracks.Items[0]), nil
}

// TrackDetails fetches popularity, genres and tempo for a catalog track.
// Genres come from the primary artist. A missing audio analysis degrades to
// an unknown tempo rather than failing the lookup.
func (c *Client) TrackDetails(ctx context.Context, catalogID string) (models.TrackDetails, error) {
	if catalogID == "" {
		return models.TrackDetails{}, errors.ErrInvalidInput.WithContext("field", "catalogID")
	}

	var track wireTrack
	if err := c.get(ctx, "/tracks/"+url.PathEscape(catalogID), nil, &track); err != nil {
		return models.TrackDetails{}, err
	}

	details := models.TrackDetails{
		Popularity: float64(track.Popularity) / 100,
	}

	if len(track.Artists) > 0 && track.Artists[0].ID != "" {
		var artist wireArtist
		if err := c.get(ctx, "/artists/"+url.PathEscape(track.Artists[0].ID), nil, &artist); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"connector": ConnectorName,
				"catalogId": catalogID,
			}).Warn("Failed to fetch artist genres")
		} else {
			details.Genres = c.genres.CanonicalAll(artist.Genres)
		}
	}

	var features audioFeatures
	if err := c.get(ctx, "/audio-features/"+url.PathEscape(catalogID), nil, &features); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"connector": ConnectorName,
			"catalogId": catalogID,
		}).Debug("Audio features unavailable, tempo unknown")
	} else {
		details.TempoBPM = features.Tempo
	}

	return details, nil
}

// RelatedArtists returns artists similar to the named one.
func (c *Client) RelatedArtists(ctx context.Context, artistName string, limit int) ([]models.Artist, error) {
	artistID, err := c.findArtistID(ctx, artistName)
	if err != nil {
		return nil, err
	}

	var payload relatedArtistsResponse
	if err := c.get(ctx, "/artists/"+url.PathEscape(artistID)+"/related-artists", nil, &payload); err != nil {
		return nil, err
	}

	artists := make([]models.Artist, 0, limit)
	for _, artist := range payload.Artists {
		if len(artists) >= limit {
			break
		}
		artists = append(artists, models.Artist{CatalogID: artist.ID, Name: artist.Name})
	}

	return artists, nil
}

// ArtistTopTracks returns the artist's most popular tracks.
func (c *Client) ArtistTopTracks(ctx context.Context, artistName string, limit int) ([]models.Track, error) {
	artistID, err := c.findArtistID(ctx, artistName)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("market", topTracksMarket)

	var payload topTracksResponse
	if err := c.get(ctx, "/artists/"+url.PathEscape(artistID)+"/top-tracks", query, &payload); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, limit)
	for _, item := range payload.Tracks {
		if len(tracks) >= limit {
			break
		}
		tracks = append(tracks, c.mapTrack(item))
	}

	return tracks, nil
}

// ArtistRadioTracks builds a radio-style mix from the recommendations
// endpoint seeded with the artist.
func (c *Client) ArtistRadioTracks(ctx context.Context, artistName string, limit int) ([]models.Track, error) {
	artistID, err := c.findArtistID(ctx, artistName)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("seed_artists", artistID)
	query.Set("limit", strconv.Itoa(limit))

	var payload recommendationsResponse
	if err := c.get(ctx, "/recommendations", query, &payload); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(payload.Tracks))
	for _, item := range payload.Tracks {
		tracks = append(tracks, c.mapTrack(item))
	}

	return tracks, nil
}

// ChartTracks is not served by this connector.
func (c *Client) ChartTracks(ctx context.Context, limit int) ([]models.Track, error) {
	return nil, errors.ErrCatalogUnsupported.WithContext("connector", ConnectorName)
}

// GenreTopArtists returns prominent artists for a genre.
func (c *Client) GenreTopArtists(ctx context.Context, genre string, limit int) ([]models.Artist, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("genre:%q", genre))
	query.Set("type", "artist")
	query.Set("limit", strconv.Itoa(limit))

	var payload artistSearchResponse
	if err := c.get(ctx, "/search", query, &payload); err != nil {
		return nil, err
	}

	artists := make([]models.Artist, 0, len(payload.Artists.Items))
	for _, artist := range payload.Artists.Items {
		artists = append(artists, models.Artist{CatalogID: artist.ID, Name: artist.Name})
	}

	return artists, nil
}

// SearchStations is not served by this connector.
func (c *Client) SearchStations(ctx context.Context, query string, limit int) ([]models.Station, error) {
	return nil, errors.ErrCatalogUnsupported.WithContext("connector", ConnectorName)
}

// StationTracks is not served by this connector.
func (c *Client) StationTracks(ctx context.Context, stationID string, limit int) ([]models.Track, error) {
	return nil, errors.ErrCatalogUnsupported.WithContext("connector", ConnectorName)
}

func (c *Client) findArtistID(ctx context.Context, artistName string) (string, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("artist:%s", artistName))
	query.Set("type", "artist")
	query.Set("limit", "1")

	var payload artistSearchResponse
	if err := c.get(ctx, "/search", query, &payload); err != nil {
		return "", err
	}

	if len(payload.Artists.Items) == 0 {
		return "", errors.New(errors.CategoryCatalog, "NOT_FOUND", "no artist matched the search").
			WithContext("connector", ConnectorName).
			WithContext("artist", artistName)
	}

	return payload.Artists.Items[0].ID, nil
}

func (c *Client) mapTrack(item wireTrack) models.Track {
	artist := ""
	if len(item.Artists) > 0 {
		artist = item.Artists[0].Name
	}

	track := models.NewTrack(item.Name, artist, "")
	track.CatalogID = item.ID
	track.Popularity = float64(item.Popularity) / 100
	return track
}
