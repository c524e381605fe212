// Package scoring ranks candidate tracks against a listener profile.
package scoring

import (
	"math/rand"
	"sync"
	"time"

	"github.com/tuneturn/tuneturn/config"
	"github.com/tuneturn/tuneturn/models"
)

// NeutralSimilarity is used when either the track or the profile carries no
// genre information. A genre-less track competes at average odds instead of
// being excluded.
const NeutralSimilarity = 0.3

type Engine struct {
	genreWeight     float64
	popWeight       float64
	exploreBonus    float64
	jitterMagnitude float64

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an engine with the configured weights. A non-zero jitter seed
// makes scoring reproducible; seed zero draws from the clock.
func New(cfg *config.Config) *Engine {
	seed := cfg.JitterSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Engine{
		genreWeight:     cfg.GenreWeight,
		popWeight:       cfg.PopularityWeight,
		exploreBonus:    cfg.ExploreBonus,
		jitterMagnitude: cfg.JitterMagnitude,
		rng:             rand.New(rand.NewSource(seed)),
	}
}

// Score rates one track against a profile, returning the final score in
// [0,1] and its components.
func (e *Engine) Score(track models.Track, profile *models.ListenerProfile) (float64, models.ScoreBreakdown) {
	breakdown := models.ScoreBreakdown{
		Genre:      GenreSimilarity(track.Genres, profile.GenreAffinity),
		Popularity: track.Popularity,
	}
	if breakdown.Popularity <= 0 {
		breakdown.Popularity = models.DefaultPopularity
	}
	if track.SourceStrategy == models.StrategyWildcard {
		breakdown.Exploration = e.exploreBonus
	}
	breakdown.Jitter = e.jitter()

	score := e.genreWeight*breakdown.Genre +
		e.popWeight*breakdown.Popularity +
		breakdown.Exploration +
		breakdown.Jitter
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	return score, breakdown
}

// Select scores the candidates in order and returns the best one, skipping
// identity keys in alreadyPlayed. Ties keep the earlier candidate, so pool
// insertion order is the tie-break. Returns false when nothing is eligible.
func (e *Engine) Select(candidates []models.Track, profile *models.ListenerProfile, alreadyPlayed models.CooldownSet) (models.SelectionResult, bool) {
	var best models.SelectionResult
	found := false

	for _, track := range candidates {
		if alreadyPlayed.Contains(track.IdentityKey) {
			continue
		}

		score, breakdown := e.Score(track, profile)
		if !found || score > best.Score {
			best = models.SelectionResult{
				Track:          track,
				Score:          score,
				ScoreBreakdown: breakdown,
			}
			found = true
		}
	}

	return best, found
}

func (e *Engine) jitter() float64 {
	if e.jitterMagnitude <= 0 {
		return 0
	}

	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64() * e.jitterMagnitude
}

// GenreSimilarity measures genre overlap between a track and a profile:
// the intersection size over the larger of the two sets. Either side being
// empty yields NeutralSimilarity.
func GenreSimilarity(trackGenres []string, affinity map[string]float64) float64 {
	if len(trackGenres) == 0 || len(affinity) == 0 {
		return NeutralSimilarity
	}

	overlap := 0
	for _, genre := range trackGenres {
		if _, ok := affinity[genre]; ok {
			overlap++
		}
	}

	denom := len(trackGenres)
	if len(affinity) > denom {
		denom = len(affinity)
	}

	return float64(overlap) / float64(denom)
}
