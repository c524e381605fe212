package database

import (
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/tuneturn/tuneturn/errors"
	"github.com/tuneturn/tuneturn/models"
)

// Database connection pool constants
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 30 * time.Minute
	DefaultConnMaxIdleTime = 5 * time.Minute
	DefaultHealthCheck     = true
	HealthCheckInterval    = 30 * time.Second
)

const genreSeparator = ","

type DB struct {
	conn         *sql.DB
	logger       *logrus.Logger
	mu           sync.RWMutex
	pool         *ConnectionPool
	shutdownChan chan struct{}
}

// ConnectionPool manages database connection pool settings
type ConnectionPool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	HealthCheck     bool
	mu              sync.RWMutex
	stats           ConnectionStats
}

// ConnectionStats tracks connection pool statistics
type ConnectionStats struct {
	OpenConnections   int
	IdleConnections   int
	ConnectionsInUse  int
	TotalConnections  int
	FailedConnections int
	HealthChecks      int
	LastHealthCheck   time.Time
}

func New(dbPath string, logger *logrus.Logger) (*DB, error) {
	return NewWithPool(dbPath, logger, DefaultPoolConfig())
}

// NewWithPool creates a new database connection with custom pool configuration
func NewWithPool(dbPath string, logger *logrus.Logger, poolConfig *ConnectionPool) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "CONNECTION_FAILED", "failed to open database").
			WithContext("path", dbPath)
	}

	conn.SetMaxOpenConns(poolConfig.MaxOpenConns)
	conn.SetMaxIdleConns(poolConfig.MaxIdleConns)
	conn.SetConnMaxLifetime(poolConfig.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(poolConfig.ConnMaxIdleTime)

	if err := conn.Ping(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "CONNECTION_FAILED", "failed to ping database").
			WithContext("path", dbPath)
	}

	db := &DB{
		conn:         conn,
		logger:       logger,
		pool:         poolConfig,
		shutdownChan: make(chan struct{}),
	}

	if err := db.createTables(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "MIGRATION_FAILED", "failed to create database tables").
			WithContext("path", dbPath)
	}

	if poolConfig.HealthCheck {
		go db.healthCheckLoop()
	}

	return db, nil
}

// DefaultPoolConfig returns default connection pool configuration
func DefaultPoolConfig() *ConnectionPool {
	return &ConnectionPool{
		MaxOpenConns:    DefaultMaxOpenConns,
		MaxIdleConns:    DefaultMaxIdleConns,
		ConnMaxLifetime: DefaultConnMaxLifetime,
		ConnMaxIdleTime: DefaultConnMaxIdleTime,
		HealthCheck:     DefaultHealthCheck,
	}
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	select {
	case <-db.shutdownChan:
		// Already closed
	default:
		close(db.shutdownChan)
	}

	if err := db.conn.Close(); err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "CLOSE_FAILED", "failed to close database connection")
	}
	return nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS play_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			listener_id TEXT NOT NULL,
			identity_key TEXT NOT NULL,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			strategy TEXT NOT NULL,
			reason TEXT,
			forced_pick INTEGER DEFAULT 0,
			played_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS library_tracks (
			identity_key TEXT NOT NULL,
			listener_id TEXT NOT NULL,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			catalog_id TEXT,
			popularity REAL DEFAULT 0.5,
			genres TEXT,
			tempo_bpm REAL DEFAULT 0,
			added_at DATETIME NOT NULL,
			PRIMARY KEY (identity_key, listener_id)
		)`,
		`CREATE TABLE IF NOT EXISTS session_listeners (
			session_id TEXT NOT NULL,
			listener_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			joined_at DATETIME NOT NULL,
			PRIMARY KEY (session_id, listener_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_session ON play_history(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_played_at ON play_history(played_at)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_identity ON play_history(identity_key)`,
		`CREATE INDEX IF NOT EXISTS idx_library_tracks_listener ON library_tracks(listener_id)`,
		`CREATE INDEX IF NOT EXISTS idx_session_listeners_session ON session_listeners(session_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return errors.Wrap(err, errors.CategoryDatabase, "MIGRATION_FAILED", "failed to execute table creation query").
				WithContext("query", query)
		}
	}

	return nil
}

// RecordSelection persists one playback history entry.
func (db *DB) RecordSelection(record models.PlayRecord) error {
	if record.SessionID == "" {
		return errors.ErrValidationFailed.WithContext("field", "sessionID")
	}
	if record.IdentityKey == "" {
		return errors.ErrValidationFailed.WithContext("field", "identityKey")
	}

	playedAt := record.PlayedAt
	if playedAt.IsZero() {
		playedAt = time.Now()
	}

	_, err := db.conn.Exec(`INSERT INTO play_history (session_id, listener_id, identity_key, title, artist, strategy, reason, forced_pick, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SessionID, record.ListenerID, record.IdentityKey, record.Title, record.Artist,
		string(record.Strategy), record.Reason, record.ForcedPick, playedAt)
	if err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to record selection").
			WithContext("sessionID", record.SessionID).
			WithContext("identity_key", record.IdentityKey)
	}

	return nil
}

// RecentIdentityKeys returns the identity keys of every track played within
// the window, across all sessions. The result feeds the replay cooldown.
func (db *DB) RecentIdentityKeys(window time.Duration) (models.CooldownSet, error) {
	cutoff := time.Now().Add(-window)

	rows, err := db.conn.Query(`SELECT DISTINCT identity_key FROM play_history WHERE played_at >= ?`, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to query recent plays").
			WithContext("window", window.String())
	}
	defer rows.Close()

	keys := models.NewCooldownSet(nil)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			db.logger.WithError(err).Error("Failed to scan recent identity key")
			continue
		}
		keys[key] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "error occurred during recent play iteration").
			WithContext("window", window.String())
	}

	return keys, nil
}

// GetPlayHistory returns the most recent plays for a session, newest first.
func (db *DB) GetPlayHistory(sessionID string, limit int) ([]models.PlayRecord, error) {
	if sessionID == "" {
		return nil, errors.ErrValidationFailed.WithContext("field", "sessionID")
	}
	if limit <= 0 {
		return nil, errors.ErrValidationFailed.WithContext("field", "limit")
	}

	rows, err := db.conn.Query(`SELECT id, session_id, listener_id, identity_key, title, artist, strategy,
		COALESCE(reason, '') as reason, forced_pick, played_at
		FROM play_history WHERE session_id = ?
		ORDER BY played_at DESC, id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to query play history").
			WithContext("sessionID", sessionID)
	}
	defer rows.Close()

	var records []models.PlayRecord
	for rows.Next() {
		var record models.PlayRecord
		var strategy string
		err := rows.Scan(&record.ID, &record.SessionID, &record.ListenerID, &record.IdentityKey,
			&record.Title, &record.Artist, &strategy, &record.Reason, &record.ForcedPick, &record.PlayedAt)
		if err != nil {
			db.logger.WithError(err).WithField("sessionID", sessionID).Error("Failed to scan play record")
			continue
		}
		record.Strategy = models.SourceStrategy(strategy)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "error occurred during play history iteration").
			WithContext("sessionID", sessionID)
	}

	return records, nil
}

// StoreLibraryTracks upserts a listener's library tracks.
func (db *DB) StoreLibraryTracks(listenerID string, tracks []models.Track) error {
	if listenerID == "" {
		return errors.ErrValidationFailed.WithContext("field", "listenerID")
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "TRANSACTION_FAILED", "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO library_tracks (identity_key, listener_id, title, artist, catalog_id, popularity, genres, tempo_bpm, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT added_at FROM library_tracks WHERE identity_key = ? AND listener_id = ?), ?))`)
	if err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to prepare library track insert statement")
	}
	defer stmt.Close()

	now := time.Now()
	var failedTracks []string
	for _, track := range tracks {
		key := track.IdentityKey
		if key == "" {
			key = models.IdentityKey(track.Title, track.Artist)
		}
		_, err := stmt.Exec(key, listenerID, track.Title, track.Artist, track.CatalogID,
			track.Popularity, strings.Join(track.Genres, genreSeparator), track.TempoBPM,
			key, listenerID, now)
		if err != nil {
			db.logger.WithError(err).WithFields(logrus.Fields{
				"identity_key": key,
				"listenerID":   listenerID,
			}).Error("Failed to insert library track")
			failedTracks = append(failedTracks, key)
			continue
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "TRANSACTION_FAILED", "failed to commit transaction").
			WithContext("failed_tracks", failedTracks).
			WithContext("listenerID", listenerID)
	}

	return nil
}

// GetLibraryTracks returns every saved track for a listener.
func (db *DB) GetLibraryTracks(listenerID string) ([]models.Track, error) {
	if listenerID == "" {
		return nil, errors.ErrValidationFailed.WithContext("field", "listenerID")
	}

	rows, err := db.conn.Query(`SELECT identity_key, title, artist,
		COALESCE(catalog_id, '') as catalog_id,
		COALESCE(popularity, 0.5) as popularity,
		COALESCE(genres, '') as genres,
		COALESCE(tempo_bpm, 0) as tempo_bpm
		FROM library_tracks WHERE listener_id = ?
		ORDER BY identity_key`, listenerID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to query library tracks").
			WithContext("listenerID", listenerID)
	}
	defer rows.Close()

	var tracks []models.Track
	for rows.Next() {
		var track models.Track
		var genres string
		err := rows.Scan(&track.IdentityKey, &track.Title, &track.Artist,
			&track.CatalogID, &track.Popularity, &genres, &track.TempoBPM)
		if err != nil {
			db.logger.WithError(err).WithField("listenerID", listenerID).Error("Failed to scan library track")
			continue
		}
		if genres != "" {
			track.Genres = strings.Split(genres, genreSeparator)
		}
		track.SourceStrategy = models.StrategyLibrary
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "error occurred during library track iteration").
			WithContext("listenerID", listenerID)
	}

	return tracks, nil
}

// GetLibraryTrackCount returns the number of saved tracks for a listener
func (db *DB) GetLibraryTrackCount(listenerID string) (int, error) {
	if listenerID == "" {
		return 0, errors.ErrValidationFailed.WithContext("field", "listenerID")
	}

	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM library_tracks WHERE listener_id = ?`, listenerID).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to get library track count").
			WithContext("listenerID", listenerID)
	}

	return count, nil
}

// SetSessionListeners replaces a session's listener roster. Position in the
// slice is the rotation order.
func (db *DB) SetSessionListeners(sessionID string, listenerIDs []string) error {
	if sessionID == "" {
		return errors.ErrValidationFailed.WithContext("field", "sessionID")
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "TRANSACTION_FAILED", "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM session_listeners WHERE session_id = ?`, sessionID); err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to clear session listeners").
			WithContext("sessionID", sessionID)
	}

	stmt, err := tx.Prepare(`INSERT INTO session_listeners (session_id, listener_id, position, joined_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to prepare session listener insert statement")
	}
	defer stmt.Close()

	now := time.Now()
	for position, listenerID := range listenerIDs {
		if _, err := stmt.Exec(sessionID, listenerID, position, now); err != nil {
			return errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to insert session listener").
				WithContext("sessionID", sessionID).
				WithContext("listenerID", listenerID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "TRANSACTION_FAILED", "failed to commit transaction").
			WithContext("sessionID", sessionID)
	}

	return nil
}

// GetSessionListeners returns a session's listeners in rotation order.
func (db *DB) GetSessionListeners(sessionID string) ([]string, error) {
	if sessionID == "" {
		return nil, errors.ErrValidationFailed.WithContext("field", "sessionID")
	}

	rows, err := db.conn.Query(`SELECT listener_id FROM session_listeners WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to query session listeners").
			WithContext("sessionID", sessionID)
	}
	defer rows.Close()

	var listenerIDs []string
	for rows.Next() {
		var listenerID string
		if err := rows.Scan(&listenerID); err != nil {
			db.logger.WithError(err).WithField("sessionID", sessionID).Error("Failed to scan session listener")
			continue
		}
		listenerIDs = append(listenerIDs, listenerID)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "error occurred during session listener iteration").
			WithContext("sessionID", sessionID)
	}

	return listenerIDs, nil
}

func (db *DB) healthCheckLoop() {
	ticker := time.NewTicker(HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			db.performHealthCheck()
		case <-db.shutdownChan:
			db.logger.Debug("Database health check loop shutting down")
			return
		}
	}
}

// performHealthCheck checks database connection health and updates statistics
func (db *DB) performHealthCheck() {
	db.pool.mu.Lock()
	defer db.pool.mu.Unlock()

	db.pool.stats.HealthChecks++
	db.pool.stats.LastHealthCheck = time.Now()

	if err := db.conn.Ping(); err != nil {
		db.pool.stats.FailedConnections++
		db.logger.WithError(err).Error("Database health check failed")
		return
	}

	stats := db.conn.Stats()
	db.pool.stats.OpenConnections = stats.OpenConnections
	db.pool.stats.IdleConnections = stats.Idle
	db.pool.stats.ConnectionsInUse = stats.InUse
	db.pool.stats.TotalConnections = int(stats.MaxOpenConnections)

	db.logger.WithFields(logrus.Fields{
		"open_connections":     stats.OpenConnections,
		"idle_connections":     stats.Idle,
		"connections_in_use":   stats.InUse,
		"max_open_connections": stats.MaxOpenConnections,
	}).Debug("Database health check completed")
}

// GetConnectionStats returns current connection pool statistics
func (db *DB) GetConnectionStats() ConnectionStats {
	db.pool.mu.RLock()
	defer db.pool.mu.RUnlock()

	stats := db.conn.Stats()
	db.pool.stats.OpenConnections = stats.OpenConnections
	db.pool.stats.IdleConnections = stats.Idle
	db.pool.stats.ConnectionsInUse = stats.InUse

	return db.pool.stats
}
