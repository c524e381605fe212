// Package profile builds per-listener taste snapshots from library tracks.
package profile

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tuneturn/tuneturn/catalog"
	"github.com/tuneturn/tuneturn/models"
)

// Builder turns library contributions into listener profiles. Profiles are
// cached per listener with a staleness budget; a rebuild always produces a
// fresh snapshot, never a mutation of a served one.
type Builder struct {
	connectors []catalog.Connector
	logger     *logrus.Logger
	workers    chan struct{} // semaphore for concurrent catalog lookups
	ttl        time.Duration

	mu    sync.RWMutex
	cache map[string]*models.ListenerProfile
}

func New(connectors []catalog.Connector, workers int, ttl time.Duration, logger *logrus.Logger) *Builder {
	if workers < 1 {
		workers = 1
	}
	return &Builder{
		connectors: connectors,
		logger:     logger,
		workers:    make(chan struct{}, workers),
		ttl:        ttl,
		cache:      make(map[string]*models.ListenerProfile),
	}
}

// Build returns the listener's profile, rebuilding it from the given library
// tracks when the cached snapshot is missing or stale.
func (b *Builder) Build(ctx context.Context, listenerID string, libraryTracks []models.Track) (*models.ListenerProfile, error) {
	b.mu.RLock()
	cached, ok := b.cache[listenerID]
	b.mu.RUnlock()
	if ok && time.Since(cached.BuiltAt) < b.ttl {
		return cached, nil
	}

	enriched := b.enrich(ctx, libraryTracks)

	profile := &models.ListenerProfile{
		ListenerID:       listenerID,
		GenreAffinity:    make(map[string]float64),
		LibraryTrackKeys: make(map[string]models.Track, len(enriched)),
		BuiltAt:          time.Now(),
	}

	var tempoSum float64
	var tempoCount int
	for _, track := range enriched {
		profile.LibraryTrackKeys[track.IdentityKey] = track
		for _, genre := range track.Genres {
			profile.GenreAffinity[genre]++
		}
		if track.TempoBPM > 0 {
			tempoSum += track.TempoBPM
			tempoCount++
		}
	}

	if tempoCount > 0 {
		profile.AvgTempoBPM = tempoSum / float64(tempoCount)
	} else {
		profile.AvgTempoBPM = models.DefaultTempoBPM
	}

	b.mu.Lock()
	b.cache[listenerID] = profile
	b.mu.Unlock()

	b.logger.WithFields(logrus.Fields{
		"listenerID":   listenerID,
		"tracks":       len(enriched),
		"genres":       len(profile.GenreAffinity),
		"avgTempo":     profile.AvgTempoBPM,
		"tempoSamples": tempoCount,
	}).Debug("Listener profile built")

	return profile, nil
}

// Invalidate drops the cached profile so the next Build starts fresh. Called
// when a listener's library changes.
func (b *Builder) Invalidate(listenerID string) {
	b.mu.Lock()
	delete(b.cache, listenerID)
	b.mu.Unlock()
}

// enrich fills in genres and tempo for tracks that lack them, with bounded
// concurrency. A failed lookup leaves the track as-is; missing metadata is
// tolerated, not fatal.
func (b *Builder) enrich(ctx context.Context, tracks []models.Track) []models.Track {
	enriched := make([]models.Track, len(tracks))
	copy(enriched, tracks)

	var wg sync.WaitGroup
	for i := range enriched {
		track := &enriched[i]
		if track.IdentityKey == "" {
			track.IdentityKey = models.IdentityKey(track.Title, track.Artist)
		}
		track.SourceStrategy = models.StrategyLibrary
		if len(track.Genres) > 0 && track.TempoBPM > 0 {
			continue
		}

		b.workers <- struct{}{}
		wg.Add(1)

		go func(track *models.Track) {
			defer func() {
				<-b.workers
				wg.Done()
			}()
			b.lookup(ctx, track)
		}(track)
	}
	wg.Wait()

	return enriched
}

func (b *Builder) lookup(ctx context.Context, track *models.Track) {
	for _, connector := range b.connectors {
		if !connector.Available() {
			continue
		}

		catalogID := track.CatalogID
		if catalogID == "" {
			found, err := connector.SearchTrack(ctx, track.Title, track.Artist)
			if err != nil {
				b.logger.WithError(err).WithFields(logrus.Fields{
					"connector":    connector.Name(),
					"identity_key": track.IdentityKey,
				}).Warn("Track search failed during profile build")
				continue
			}
			catalogID = found.CatalogID
		}

		details, err := connector.TrackDetails(ctx, catalogID)
		if err != nil {
			b.logger.WithError(err).WithFields(logrus.Fields{
				"connector":    connector.Name(),
				"identity_key": track.IdentityKey,
			}).Warn("Track detail lookup failed during profile build")
			continue
		}

		if len(track.Genres) == 0 {
			track.Genres = details.Genres
		}
		if track.TempoBPM == 0 {
			track.TempoBPM = details.TempoBPM
		}
		if track.Popularity == 0 {
			track.Popularity = details.Popularity
		}
		if track.CatalogID == "" {
			track.CatalogID = catalogID
		}
		return
	}
}
