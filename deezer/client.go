// Package deezer implements the secondary catalog connector. The upstream
// API needs no authentication, which makes it the workhorse for chart, radio
// and genre browsing even when the primary connector is down.
package deezer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tuneturn/tuneturn/catalog"
	"github.com/tuneturn/tuneturn/config"
	"github.com/tuneturn/tuneturn/errors"
	"github.com/tuneturn/tuneturn/models"
)

const (
	ConnectorName = "deezer"

	// Rank is an absolute score up to roughly a million; normalize against it.
	maxRank = 1000000.0
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *logrus.Logger
	genres     *catalog.GenreMapper
}

var _ catalog.Connector = (*Client)(nil)

func New(cfg *config.Config, logger *logrus.Logger) *Client {
	return NewWithHTTPClient(http.DefaultClient, cfg, logger)
}

// NewWithHTTPClient creates a connector with a caller-supplied HTTP client.
func NewWithHTTPClient(httpClient *http.Client, cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    cfg.DeezerBaseURL,
		timeout:    cfg.CatalogTimeout,
		limiter:    rate.NewLimiter(rate.Limit(cfg.CatalogRPS), cfg.CatalogBurst),
		logger:     logger,
		genres:     catalog.DefaultGenreMapper(),
	}
}

func (c *Client) Name() string {
	return ConnectorName
}

// Available always reports true: the connector carries no credentials that
// could expire.
func (c *Client) Available() bool {
	return true
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CategoryCatalog, "REQUEST_FAILED", "catalog request failed").
			WithContext("connector", ConnectorName).
			WithContext("path", path)
	}
	defer resp.Body.Close()

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

// SearchTrack resolves a title and artist to the closest catalog match.
func (c *Client) SearchTrack(ctx context.Context, title, artist string) (models.Track, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("track:%q artist:%q", title, artist))
	query.Set("limit", "1")

	var payload trackListResponse
	if err := c.get(ctx, "/search", query, &payload); err != nil {
		return models.Track{}, err
	}

	if len(payload.Data) == 0 {
		return models.Track{}, errors.New(errors.CategoryCatalog, "NOT_FOUND", "no track matched the search").
			WithContext("connector", ConnectorName).
			WithContext("title", title).
			WithContext("artist", artist)
	}

	return c.mapTrack(payload.Data[0]), nil
}

// TrackDetails fetches rank, tempo and album genres for a catalog track.
// A failed album lookup degrades to no genres rather than failing.
func (c *Client) TrackDetails(ctx context.Context, catalogID string) (models.TrackDetails, error) {
	if catalogID == "" {
		return models.TrackDetails{}, errors.ErrInvalidInput.WithContext("field", "catalogID")
	}

	var track wireTrackFull
	if err := c.get(ctx, "/track/"+url.PathEscape(catalogID), nil, &track); err != nil {
		return models.TrackDetails{}, err
	}

	details := models.TrackDetails{
		Popularity: normalizeRank(track.Rank),
		TempoBPM:   track.BPM,
	}

	if track.Album.ID != 0 {
		var album wireAlbum
		if err := c.get(ctx, "/album/"+strconv.FormatInt(track.Album.ID, 10), nil, &album); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"connector": ConnectorName,
				"catalogId": catalogID,
			}).Warn("Failed to fetch album genres")
		} else {
			raw := make([]string, 0, len(album.Genres.Data))
			for _, genre := range album.Genres.Data {
				raw = append(raw, genre.Name)
			}
			details.Genres = c.genres.CanonicalAll(raw)
		}
	}

	return details, nil
}

// RelatedArtists returns artists similar to the named one.
func (c *Client) RelatedArtists(ctx context.Context, artistName string, limit int) ([]models.Artist, error) {
	artistID, err := c.findArtistID(ctx, artistName)
	if err != nil {
		return nil, err
	}

	var payload artistListResponse
	if err := c.get(ctx, "/artist/"+artistID+"/related", nil, &payload); err != nil {
		return nil, err
	}

	return mapArtists(payload.Data, limit), nil
}

// ArtistTopTracks returns the artist's most popular tracks.
func (c *Client) ArtistTopTracks(ctx context.Context, artistName string, limit int) ([]models.Track, error) {
	artistID, err := c.findArtistID(ctx, artistName)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	var payload trackListResponse
	if err := c.get(ctx, "/artist/"+artistID+"/top", query, &payload); err != nil {
		return nil, err
	}

	return c.mapTracks(payload.Data, limit), nil
}

// ArtistRadioTracks returns the artist's radio mix.
func (c *Client) ArtistRadioTracks(ctx context.Context, artistName string, limit int) ([]models.Track, error) {
	artistID, err := c.findArtistID(ctx, artistName)
	if err != nil {
		return nil, err
	}

	var payload trackListResponse
	if err := c.get(ctx, "/artist/"+artistID+"/radio", nil, &payload); err != nil {
		return nil, err
	}

	return c.mapTracks(payload.Data, limit), nil
}

// ChartTracks returns the global chart.
func (c *Client) ChartTracks(ctx context.Context, limit int) ([]models.Track, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	var payload trackListResponse
	if err := c.get(ctx, "/chart/0/tracks", query, &payload); err != nil {
		return nil, err
	}

	return c.mapTracks(payload.Data, limit), nil
}

// GenreTopArtists returns prominent artists for a genre. The genre catalog
// is matched by name, case-insensitively.
func (c *Client) GenreTopArtists(ctx context.Context, genre string, limit int) ([]models.Artist, error) {
	var genres genreListResponse
	if err := c.get(ctx, "/genre", nil, &genres); err != nil {
		return nil, err
	}

	var genreID int64
	found := false
	for _, entry := range genres.Data {
		if strings.EqualFold(entry.Name, genre) {
			genreID = entry.ID
			found = true
			break
		}
	}
	if !found {
		return nil, errors.New(errors.CategoryCatalog, "NOT_FOUND", "genre not listed by catalog").
			WithContext("connector", ConnectorName).
			WithContext("genre", genre)
	}

	var payload artistListResponse
	if err := c.get(ctx, "/genre/"+strconv.FormatInt(genreID, 10)+"/artists", nil, &payload); err != nil {
		return nil, err
	}

	return mapArtists(payload.Data, limit), nil
}

// SearchStations finds curated radio stations matching a query. Era queries
// like "80s" resolve the same way a mood or theme does.
func (c *Client) SearchStations(ctx context.Context, query string, limit int) ([]models.Station, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	var payload radioListResponse
	if err := c.get(ctx, "/search/radio", params, &payload); err != nil {
		return nil, err
	}

	stations := make([]models.Station, 0, limit)
	for _, station := range payload.Data {
		if len(stations) >= limit {
			break
		}
		stations = append(stations, models.Station{
			CatalogID: strconv.FormatInt(station.ID, 10),
			Name:      station.Title,
		})
	}

	return stations, nil
}

// StationTracks returns the track list of a radio station.
func (c *Client) StationTracks(ctx context.Context, stationID string, limit int) ([]models.Track, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	var payload trackListResponse
	if err := c.get(ctx, "/radio/"+url.PathEscape(stationID)+"/tracks", query, &payload); err != nil {
		return nil, err
	}

	return c.mapTracks(payload.Data, limit), nil
}

func (c *Client) findArtistID(ctx context.Context, artistName string) (string, error) {
	query := url.Values{}
	query.Set("q", artistName)
	query.Set("limit", "1")

	var payload artistListResponse
	if err := c.get(ctx, "/search/artist", query, &payload); err != nil {
		return "", err
	}

	if len(payload.Data) == 0 {
		return "", errors.New(errors.CategoryCatalog, "NOT_FOUND", "no artist matched the search").
			WithContext("connector", ConnectorName).
			WithContext("artist", artistName)
	}

	return strconv.FormatInt(payload.Data[0].ID, 10), nil
}

func (c *Client) mapTrack(item wireTrack) models.Track {
	track := models.NewTrack(item.Title, item.Artist.Name, "")
	track.CatalogID = strconv.FormatInt(item.ID, 10)
	track.Popularity = normalizeRank(item.Rank)
	return track
}

func (c *Client) mapTracks(items []wireTrack, limit int) []models.Track {
	tracks := make([]models.Track, 0, limit)
	for _, item := range items {
		if len(tracks) >= limit {
			break
		}
		tracks = append(tracks, c.mapTrack(item))
	}
	return tracks
}

func mapArtists(items []wireArtist, limit int) []models.Artist {
	artists := make([]models.Artist, 0, limit)
	for _, item := range items {
		if len(artists) >= limit {
			break
		}
		artists = append(artists, models.Artist{
			CatalogID: strconv.FormatInt(item.ID, 10),
			Name:      item.Name,
		})
	}
	return artists
}

func normalizeRank(rank int64) float64 {
	if rank <= 0 {
		return models.DefaultPopularity
	}
	popularity := float64(rank) / maxRank
	if popularity > 1 {
		popularity = 1
	}
	return popularity
}
