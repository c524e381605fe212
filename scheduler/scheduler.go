// Package scheduler drives turn-taking for shared listening sessions. Each
// turn it rotates the acting listener, gathers a candidate pool, scores it
// against the acting listener's taste and commits one pick.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tuneturn/tuneturn/config"
	"github.com/tuneturn/tuneturn/database"
	"github.com/tuneturn/tuneturn/errors"
	"github.com/tuneturn/tuneturn/models"
	"github.com/tuneturn/tuneturn/pool"
	"github.com/tuneturn/tuneturn/profile"
	"github.com/tuneturn/tuneturn/scoring"
)

// State is one phase of a session's turn cycle.
type State string

const (
	StateIdle         State = "idle"
	StateBuildingPool State = "building_pool"
	StateSelecting    State = "selecting"
	StatePlayed       State = "played"
)

type session struct {
	mu            sync.Mutex
	listeners     []string
	index         int
	turnNumber    int
	alreadyPlayed models.CooldownSet
	state         State
}

type Scheduler struct {
	db       *database.DB
	profiles *profile.Builder
	pools    *pool.Builder
	scorer   *scoring.Engine
	logger   *logrus.Logger

	cooldownWindow  time.Duration
	libraryInterval int

	mu       sync.Mutex
	sessions map[string]*session
}

func New(db *database.DB, profiles *profile.Builder, pools *pool.Builder, scorer *scoring.Engine, cfg *config.Config, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		db:              db,
		profiles:        profiles,
		pools:           pools,
		scorer:          scorer,
		logger:          logger,
		cooldownWindow:  cfg.CooldownWindow,
		libraryInterval: cfg.LibraryTurnInterval(),
		sessions:        make(map[string]*session),
	}
}

// UpdateListeners replaces a session's roster. Existing members keep their
// relative rotation order; new members join at the end. A session whose
// roster empties is torn down.
func (s *Scheduler) UpdateListeners(sessionID string, memberIDs []string) error {
	if sessionID == "" {
		return errors.ErrValidationFailed.WithContext("field", "sessionID")
	}

	sess := s.getSession(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	wanted := make(map[string]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		wanted[id] = struct{}{}
	}

	merged := make([]string, 0, len(memberIDs))
	seen := make(map[string]struct{}, len(memberIDs))
	for _, id := range sess.listeners {
		if _, ok := wanted[id]; ok {
			merged = append(merged, id)
			seen[id] = struct{}{}
		}
	}
	for _, id := range memberIDs {
		if _, ok := seen[id]; !ok {
			merged = append(merged, id)
		}
	}

	sess.listeners = merged
	if sess.index >= len(merged) {
		sess.index = 0
	}

	if err := s.db.SetSessionListeners(sessionID, merged); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"sessionID": sessionID,
		"listeners": len(merged),
	}).Info("Session roster updated")

	return nil
}

// ActiveListeners returns the session's rotation order.
func (s *Scheduler) ActiveListeners(sessionID string) []string {
	sess := s.getSession(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	listeners := make([]string, len(sess.listeners))
	copy(listeners, sess.listeners)
	return listeners
}

// EndSession discards the session's in-memory state and cached pool.
func (s *Scheduler) EndSession(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	s.pools.Invalidate(sessionID)

	s.logger.WithField("sessionID", sessionID).Info("Session ended")
}

// NextPick runs one full turn: choose the acting listener, gather candidates,
// score and commit the winner. Turn advancement is strictly sequential per
// session. A turn that yields nothing is skipped, never retried in place.
func (s *Scheduler) NextPick(ctx context.Context, sessionID string) (*models.SelectionResult, error) {
	sess := s.getSession(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if len(sess.listeners) == 0 {
		return nil, errors.ErrNoActiveListeners.WithContext("sessionID", sessionID)
	}

	sess.turnNumber++
	acting := sess.listeners[sess.index]
	forced := s.libraryInterval > 0 && sess.turnNumber%s.libraryInterval == 0

	logger := s.logger.WithFields(logrus.Fields{
		"sessionID": sessionID,
		"turn":      sess.turnNumber,
		"acting":    acting,
		"forced":    forced,
	})

	sess.state = StateBuildingPool

	cooldown, err := s.db.RecentIdentityKeys(s.cooldownWindow)
	if err != nil {
		// Fail open: a repeat beats blocked playback.
		logger.WithError(err).Warn("Cooldown lookup failed, proceeding without cooldown")
		cooldown = models.NewCooldownSet(nil)
	}

	profiles, actingProfile := s.buildProfiles(ctx, sess.listeners, acting)

	if forced {
		if result, ok := s.pickFromLibrary(actingProfile, cooldown, sess.alreadyPlayed); ok {
			s.commit(sessionID, sess, result, logger)
			return result, nil
		}
		logger.Debug("No eligible library track, falling back to discovery pool")
	}

	candidatePool, err := s.pools.Build(ctx, sessionID, profiles, cooldown)
	if errors.IsCode(err, "EMPTY_POOL") {
		// One retry with cooldown filtering relaxed before giving up.
		logger.Warn("Empty pool, retrying with cooldown disabled")
		s.pools.Invalidate(sessionID)
		candidatePool, err = s.pools.Build(ctx, sessionID, profiles, models.NewCooldownSet(nil))
	}
	if err != nil {
		s.skipTurn(sess, logger)
		return nil, errors.Wrap(err, errors.CategoryDiscovery, "TURN_SKIPPED", "turn skipped, no candidates gathered").
			WithContext("sessionID", sessionID).
			WithContext("acting", acting)
	}

	sess.state = StateSelecting

	result, found := s.scorer.Select(candidatePool.Tracks(), actingProfile, sess.alreadyPlayed)
	if !found {
		s.skipTurn(sess, logger)
		return nil, errors.ErrNothingToPlay.
			WithContext("sessionID", sessionID).
			WithContext("acting", acting)
	}

	result.ActingListenerID = acting
	result.Reason = discoveryReason(result.Track)
	resultCopy := result
	s.commit(sessionID, sess, &resultCopy, logger)

	return &resultCopy, nil
}

// Pool returns the session's current candidate pool, building one when no
// fresh pool is cached.
func (s *Scheduler) Pool(ctx context.Context, sessionID string) (*models.CandidatePool, error) {
	sess := s.getSession(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	cooldown, err := s.db.RecentIdentityKeys(s.cooldownWindow)
	if err != nil {
		s.logger.WithError(err).Warn("Cooldown lookup failed, proceeding without cooldown")
		cooldown = models.NewCooldownSet(nil)
	}

	profiles, _ := s.buildProfiles(ctx, sess.listeners, "")
	return s.pools.Build(ctx, sessionID, profiles, cooldown)
}

// Profile returns the listener's current taste snapshot.
func (s *Scheduler) Profile(ctx context.Context, listenerID string) (*models.ListenerProfile, error) {
	library, err := s.db.GetLibraryTracks(listenerID)
	if err != nil {
		return nil, err
	}
	return s.profiles.Build(ctx, listenerID, library)
}

// StoreLibrary upserts a listener's library contributions and invalidates
// the stale profile snapshot.
func (s *Scheduler) StoreLibrary(listenerID string, tracks []models.Track) error {
	if err := s.db.StoreLibraryTracks(listenerID, tracks); err != nil {
		return err
	}
	s.profiles.Invalidate(listenerID)
	return nil
}

// History returns the session's most recent plays, newest first.
func (s *Scheduler) History(sessionID string, limit int) ([]models.PlayRecord, error) {
	return s.db.GetPlayHistory(sessionID, limit)
}

// pickFromLibrary selects from the acting listener's own contributions.
func (s *Scheduler) pickFromLibrary(actingProfile *models.ListenerProfile, cooldown, alreadyPlayed models.CooldownSet) (*models.SelectionResult, bool) {
	candidates := make([]models.Track, 0, len(actingProfile.LibraryTrackKeys))
	for _, key := range sortedKeys(actingProfile.LibraryTrackKeys) {
		track := actingProfile.LibraryTrackKeys[key]
		if cooldown.Contains(track.IdentityKey) {
			continue
		}
		candidates = append(candidates, track)
	}

	result, found := s.scorer.Select(candidates, actingProfile, alreadyPlayed)
	if !found {
		return nil, false
	}

	result.ActingListenerID = actingProfile.ListenerID
	result.ForcedLibraryPick = true
	result.Reason = fmt.Sprintf("From %s's library", actingProfile.ListenerID)
	return &result, true
}

func (s *Scheduler) buildProfiles(ctx context.Context, listeners []string, acting string) ([]*models.ListenerProfile, *models.ListenerProfile) {
	profiles := make([]*models.ListenerProfile, 0, len(listeners))
	var actingProfile *models.ListenerProfile

	for _, listenerID := range listeners {
		library, err := s.db.GetLibraryTracks(listenerID)
		if err != nil {
			s.logger.WithError(err).WithField("listenerID", listenerID).Warn("Library lookup failed, using empty library")
			library = nil
		}

		p, err := s.profiles.Build(ctx, listenerID, library)
		if err != nil {
			s.logger.WithError(err).WithField("listenerID", listenerID).Warn("Profile build failed, using empty profile")
			p = &models.ListenerProfile{
				ListenerID:       listenerID,
				GenreAffinity:    map[string]float64{},
				AvgTempoBPM:      models.DefaultTempoBPM,
				LibraryTrackKeys: map[string]models.Track{},
				BuiltAt:          time.Now(),
			}
		}

		profiles = append(profiles, p)
		if listenerID == acting {
			actingProfile = p
		}
	}

	return profiles, actingProfile
}

// commit finalizes a successful turn: record the play, mark the track as
// played for this session and advance the rotation.
func (s *Scheduler) commit(sessionID string, sess *session, result *models.SelectionResult, logger *logrus.Entry) {
	sess.state = StatePlayed
	sess.alreadyPlayed[result.Track.IdentityKey] = struct{}{}
	s.advance(sess)

	record := models.PlayRecord{
		SessionID:   sessionID,
		ListenerID:  result.ActingListenerID,
		IdentityKey: result.Track.IdentityKey,
		Title:       result.Track.Title,
		Artist:      result.Track.Artist,
		Strategy:    result.Track.SourceStrategy,
		Reason:      result.Reason,
		ForcedPick:  result.ForcedLibraryPick,
		PlayedAt:    time.Now(),
	}
	if err := s.db.RecordSelection(record); err != nil {
		logger.WithError(err).Error("Failed to persist selection")
	}

	logger.WithFields(logrus.Fields{
		"identity_key": result.Track.IdentityKey,
		"strategy":     string(result.Track.SourceStrategy),
		"score":        result.Score,
		"reason":       result.Reason,
	}).Info("Track selected")
}

func (s *Scheduler) skipTurn(sess *session, logger *logrus.Entry) {
	sess.state = StateIdle
	s.advance(sess)
	logger.Warn("Turn skipped, advancing to next listener")
}

func (s *Scheduler) advance(sess *session) {
	if len(sess.listeners) == 0 {
		return
	}
	sess.index = (sess.index + 1) % len(sess.listeners)
}

func (s *Scheduler) getSession(sessionID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		listeners, err := s.db.GetSessionListeners(sessionID)
		if err != nil {
			s.logger.WithError(err).WithField("sessionID", sessionID).Warn("Failed to load session roster")
		}
		sess = &session{
			listeners:     listeners,
			alreadyPlayed: models.NewCooldownSet(nil),
			state:         StateIdle,
		}
		s.sessions[sessionID] = sess
	}
	return sess
}

// discoveryReason renders the human-readable attribution shown next to a
// pick.
func discoveryReason(track models.Track) string {
	switch track.SourceStrategy {
	case models.StrategyLibrary:
		return "From your library"
	case models.StrategyRelatedArtist:
		return fmt.Sprintf("Similar to artists you love: %s", track.Artist)
	case models.StrategyArtistRadio:
		return fmt.Sprintf("Artist radio featuring %s", track.Artist)
	case models.StrategyChart:
		return "Trending right now"
	case models.StrategyGenreExplore:
		if len(track.Genres) > 0 {
			return fmt.Sprintf("Because the room listens to %s", track.Genres[0])
		}
		return "Exploring the room's favorite genres"
	case models.StrategyCuratedRadio:
		return "From a curated station"
	case models.StrategyEra:
		return "A blast from another decade"
	case models.StrategyWildcard:
		return "Wildcard pick, something completely different"
	}
	return "Discovered for you"
}

func sortedKeys(tracks map[string]models.Track) []string {
	keys := make([]string, 0, len(tracks))
	for key := range tracks {
		keys = append(keys, key)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
