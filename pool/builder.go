// Package pool gathers discovery candidates. Each cycle fans out across the
// configured strategies, then merges the results into one deduplicated pool
// filtered against the replay cooldown.
package pool

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tuneturn/tuneturn/catalog"
	"github.com/tuneturn/tuneturn/config"
	"github.com/tuneturn/tuneturn/errors"
	"github.com/tuneturn/tuneturn/models"
)

// relatedPerSeed caps how many related artists are expanded per seed artist.
const relatedPerSeed = 2

// Stations queried by the curated_radio strategy.
var defaultCuratedStations = []string{"hits", "indie", "chill"}

// Stations queried by the era strategy.
var defaultEraStations = []string{"70s", "80s", "90s", "2000s"}

// Genres the wildcard strategy draws from. Deliberately skewed toward
// territory unlikely to show up in anyone's profile.
var defaultWildcardGenres = []string{
	"opera", "ska", "gospel", "trance", "afrobeats",
	"grime", "disco", "ambient", "drum and bass", "reggae",
}

type Builder struct {
	primary   catalog.Connector
	secondary catalog.Connector
	logger    *logrus.Logger

	maxSeedArtists   int
	maxTracksPerSeed int
	chartLimit       int
	genreExploreTop  int
	radioTrackLimit  int
	buildTimeout     time.Duration
	poolTTL          time.Duration

	curatedStations []string
	eraStations     []string
	wildcardGenres  []string

	rngMu sync.Mutex
	rng   *rand.Rand

	cacheMu sync.Mutex
	cache   map[string]*models.CandidatePool
}

// New creates a pool builder. The primary connector is the metadata-rich
// catalog, the secondary the chart/radio-rich one; either may be nil or
// become unavailable and the builder keeps going with whatever is left.
func New(primary, secondary catalog.Connector, cfg *config.Config, logger *logrus.Logger) *Builder {
	seed := cfg.JitterSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Builder{
		primary:          primary,
		secondary:        secondary,
		logger:           logger,
		maxSeedArtists:   cfg.MaxSeedArtists,
		maxTracksPerSeed: cfg.MaxTracksPerSeed,
		chartLimit:       cfg.ChartLimit,
		genreExploreTop:  cfg.GenreExploreTop,
		radioTrackLimit:  cfg.RadioTrackLimit,
		buildTimeout:     cfg.PoolBuildTimeout,
		poolTTL:          cfg.PoolTTL,
		curatedStations:  defaultCuratedStations,
		eraStations:      defaultEraStations,
		wildcardGenres:   defaultWildcardGenres,
		rng:              rand.New(rand.NewSource(seed)),
		cache:            make(map[string]*models.CandidatePool),
	}
}

type strategyResult struct {
	strategy models.SourceStrategy
	tracks   []models.Track
}

// Build returns the session's candidate pool, reusing a cached one while it
// is fresh. Strategies run concurrently under one overall deadline; their
// results merge sequentially in strategy priority order so first-writer-wins
// dedup stays deterministic regardless of fetch completion order.
func (b *Builder) Build(ctx context.Context, sessionID string, profiles []*models.ListenerProfile, cooldown models.CooldownSet) (*models.CandidatePool, error) {
	b.cacheMu.Lock()
	cached, ok := b.cache[sessionID]
	b.cacheMu.Unlock()
	if ok && time.Since(cached.BuiltAt) < b.poolTTL {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.buildTimeout)
	defer cancel()

	seedArtists := seedArtists(profiles, b.maxSeedArtists)
	topGenres := aggregateTopGenres(profiles, b.genreExploreTop)

	strategies := []struct {
		strategy models.SourceStrategy
		run      func(context.Context) []models.Track
	}{
		{models.StrategyRelatedArtist, func(ctx context.Context) []models.Track { return b.relatedArtist(ctx, seedArtists) }},
		{models.StrategyArtistRadio, func(ctx context.Context) []models.Track { return b.artistRadio(ctx, seedArtists) }},
		{models.StrategyChart, b.chart},
		{models.StrategyGenreExplore, func(ctx context.Context) []models.Track { return b.genreExplore(ctx, topGenres) }},
		{models.StrategyCuratedRadio, func(ctx context.Context) []models.Track { return b.stations(ctx, b.curatedStations) }},
		{models.StrategyEra, func(ctx context.Context) []models.Track { return b.stations(ctx, b.eraStations) }},
		{models.StrategyWildcard, b.wildcard},
	}

	results := make([]strategyResult, len(strategies))
	var wg sync.WaitGroup
	for i, entry := range strategies {
		wg.Add(1)
		go func(i int, strategy models.SourceStrategy, run func(context.Context) []models.Track) {
			defer wg.Done()
			results[i] = strategyResult{strategy: strategy, tracks: run(ctx)}
		}(i, entry.strategy, entry.run)
	}
	wg.Wait()

	pool := models.NewCandidatePool(uuid.NewString())
	dropped := 0
	for _, result := range results {
		for _, track := range result.tracks {
			track.SourceStrategy = result.strategy
			if cooldown.Contains(track.IdentityKey) {
				dropped++
				continue
			}
			pool.Add(track)
		}
	}

	b.logger.WithFields(logrus.Fields{
		"sessionID": sessionID,
		"cycleID":   pool.CycleID,
		"size":      pool.Len(),
		"cooldown":  dropped,
	}).Info("Candidate pool built")

	if pool.Len() == 0 {
		return nil, errors.ErrEmptyPool.WithContext("sessionID", sessionID)
	}

	b.cacheMu.Lock()
	b.cache[sessionID] = pool
	b.cacheMu.Unlock()

	return pool, nil
}

// Invalidate drops the session's cached pool.
func (b *Builder) Invalidate(sessionID string) {
	b.cacheMu.Lock()
	delete(b.cache, sessionID)
	b.cacheMu.Unlock()
}

func (b *Builder) relatedArtist(ctx context.Context, seeds []string) []models.Track {
	var tracks []models.Track
	for _, seed := range seeds {
		artists, err := fromConnectors(b, models.StrategyRelatedArtist, func(c catalog.Connector) ([]models.Artist, error) {
			return c.RelatedArtists(ctx, seed, b.maxSeedArtists)
		})
		if err != nil {
			continue
		}

		expanded := 0
		for _, artist := range artists {
			if expanded >= relatedPerSeed {
				break
			}
			top, err := fromConnectors(b, models.StrategyRelatedArtist, func(c catalog.Connector) ([]models.Track, error) {
				return c.ArtistTopTracks(ctx, artist.Name, b.maxTracksPerSeed)
			})
			if err != nil {
				continue
			}
			tracks = append(tracks, top...)
			expanded++
		}
	}
	return tracks
}

func (b *Builder) artistRadio(ctx context.Context, seeds []string) []models.Track {
	var tracks []models.Track
	for _, seed := range seeds {
		mix, err := fromConnectors(b, models.StrategyArtistRadio, func(c catalog.Connector) ([]models.Track, error) {
			return c.ArtistRadioTracks(ctx, seed, b.maxTracksPerSeed)
		})
		if err != nil {
			continue
		}
		tracks = append(tracks, mix...)
	}
	return tracks
}

func (b *Builder) chart(ctx context.Context) []models.Track {
	tracks, err := fromConnectors(b, models.StrategyChart, func(c catalog.Connector) ([]models.Track, error) {
		return c.ChartTracks(ctx, b.chartLimit)
	})
	if err != nil {
		return nil
	}
	return tracks
}

func (b *Builder) genreExplore(ctx context.Context, genres []string) []models.Track {
	var tracks []models.Track
	for _, genre := range genres {
		tracks = append(tracks, b.genreTracks(ctx, models.StrategyGenreExplore, genre)...)
	}
	return tracks
}

func (b *Builder) stations(ctx context.Context, queries []string) []models.Track {
	var tracks []models.Track
	for _, query := range queries {
		query := query
		found, err := fromConnectors(b, models.StrategyCuratedRadio, func(c catalog.Connector) ([]models.Station, error) {
			return c.SearchStations(ctx, query, 1)
		})
		if err != nil || len(found) == 0 {
			continue
		}

		list, err := fromConnectors(b, models.StrategyCuratedRadio, func(c catalog.Connector) ([]models.Track, error) {
			return c.StationTracks(ctx, found[0].CatalogID, b.radioTrackLimit)
		})
		if err != nil {
			continue
		}
		tracks = append(tracks, list...)
	}
	return tracks
}

func (b *Builder) wildcard(ctx context.Context) []models.Track {
	b.rngMu.Lock()
	genre := b.wildcardGenres[b.rng.Intn(len(b.wildcardGenres))]
	b.rngMu.Unlock()

	return b.genreTracks(ctx, models.StrategyWildcard, genre)
}

// genreTracks expands one genre into tracks via its top artists.
func (b *Builder) genreTracks(ctx context.Context, strategy models.SourceStrategy, genre string) []models.Track {
	artists, err := fromConnectors(b, strategy, func(c catalog.Connector) ([]models.Artist, error) {
		return c.GenreTopArtists(ctx, genre, b.maxSeedArtists)
	})
	if err != nil {
		return nil
	}

	var tracks []models.Track
	expanded := 0
	for _, artist := range artists {
		if expanded >= relatedPerSeed {
			break
		}
		top, err := fromConnectors(b, strategy, func(c catalog.Connector) ([]models.Track, error) {
			return c.ArtistTopTracks(ctx, artist.Name, b.maxTracksPerSeed)
		})
		if err != nil {
			continue
		}
		tracks = append(tracks, top...)
		expanded++
	}
	return tracks
}

// fromConnectors tries the secondary connector first, then the primary,
// skipping any that is unavailable or does not support the operation. The
// secondary leads because it carries the discovery-heavy endpoints.
func fromConnectors[T any](b *Builder, strategy models.SourceStrategy, call func(catalog.Connector) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for _, connector := range []catalog.Connector{b.secondary, b.primary} {
		if connector == nil || !connector.Available() {
			continue
		}

		result, err := call(connector)
		if err != nil {
			if !errors.IsCode(err, "OPERATION_UNSUPPORTED") {
				b.logger.WithError(err).WithFields(logrus.Fields{
					"connector": connector.Name(),
					"strategy":  string(strategy),
				}).Warn("Strategy call failed")
			}
			lastErr = err
			continue
		}
		return result, nil
	}

	if lastErr == nil {
		lastErr = errors.ErrCatalogUnavailable.WithContext("strategy", string(strategy))
	}
	return zero, lastErr
}

// seedArtists collects distinct library artists across profiles, sorted for
// a deterministic fan-out, capped at max.
func seedArtists(profiles []*models.ListenerProfile, max int) []string {
	seen := make(map[string]struct{})
	for _, profile := range profiles {
		for _, track := range profile.LibraryTrackKeys {
			if track.Artist == "" {
				continue
			}
			seen[track.Artist] = struct{}{}
		}
	}

	artists := make([]string, 0, len(seen))
	for artist := range seen {
		artists = append(artists, artist)
	}
	sort.Strings(artists)

	if len(artists) > max {
		artists = artists[:max]
	}
	return artists
}

// aggregateTopGenres sums genre affinity across profiles and returns the top
// n genres by weight, ties broken alphabetically.
func aggregateTopGenres(profiles []*models.ListenerProfile, n int) []string {
	totals := make(map[string]float64)
	for _, profile := range profiles {
		for genre, weight := range profile.GenreAffinity {
			totals[genre] += weight
		}
	}

	genres := make([]string, 0, len(totals))
	for genre := range totals {
		genres = append(genres, genre)
	}
	sort.Slice(genres, func(i, j int) bool {
		if totals[genres[i]] != totals[genres[j]] {
			return totals[genres[i]] > totals[genres[j]]
		}
		return genres[i] < genres[j]
	})

	if len(genres) > n {
		genres = genres[:n]
	}
	return genres
}
