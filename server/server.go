// Package server wires the engine together: config, database, catalog
// connectors, scheduler and the HTTP surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tuneturn/tuneturn/catalog"
	"github.com/tuneturn/tuneturn/config"
	"github.com/tuneturn/tuneturn/database"
	"github.com/tuneturn/tuneturn/deezer"
	"github.com/tuneturn/tuneturn/errors"
	"github.com/tuneturn/tuneturn/handlers"
	"github.com/tuneturn/tuneturn/middleware"
	"github.com/tuneturn/tuneturn/pool"
	"github.com/tuneturn/tuneturn/profile"
	"github.com/tuneturn/tuneturn/scheduler"
	"github.com/tuneturn/tuneturn/scoring"
	"github.com/tuneturn/tuneturn/spotify"
)

const (
	MaxEndpointLength   = 1000
	MaxRemoteAddrLength = 100
)

// ASCII control character constants
const (
	ASCIIControlCharMin = 32
	ASCIIControlCharMax = 127
)

type Server struct {
	config      *config.Config
	logger      *logrus.Logger
	db          *database.DB
	scheduler   *scheduler.Scheduler
	handlers    *handlers.Handler
	server      *http.Server
	rateLimiter *rate.Limiter
}

func New(cfg *config.Config) (*Server, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
		logger.WithError(err).Warn("Invalid log level, defaulting to info")
	}
	logger.SetLevel(level)

	db, err := database.New(cfg.DatabasePath, logger)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryServer, "INITIALIZATION_FAILED", "failed to initialize database").
			WithContext("database_path", cfg.DatabasePath)
	}

	deezerClient := deezer.New(cfg, logger)

	var spotifyClient catalog.Connector
	profileConnectors := []catalog.Connector{deezerClient}
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		client := spotify.New(cfg, logger)
		spotifyClient = client
		profileConnectors = []catalog.Connector{client, deezerClient}
		logger.Info("Spotify connector configured")
	} else {
		logger.Info("Spotify credentials not configured, running with Deezer only")
	}

	profiles := profile.New(profileConnectors, cfg.FetchWorkers, cfg.ProfileTTL, logger)
	pools := pool.New(spotifyClient, deezerClient, cfg, logger)
	scorer := scoring.New(cfg)
	sched := scheduler.New(db, profiles, pools, scorer, cfg, logger)
	handlersService := handlers.New(logger, sched)

	var rateLimiter *rate.Limiter
	if cfg.RateLimitEnabled {
		rateLimiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
		logger.WithFields(logrus.Fields{
			"rps":   cfg.RateLimitRPS,
			"burst": cfg.RateLimitBurst,
		}).Info("Rate limiting enabled")
	} else {
		logger.Info("Rate limiting disabled")
	}

	return &Server{
		config:      cfg,
		logger:      logger,
		db:          db,
		scheduler:   sched,
		handlers:    handlersService,
		rateLimiter: rateLimiter,
	}, nil
}

// sanitizeForLogging removes control characters and limits length to prevent log injection
func sanitizeForLogging(input string) string {
	sanitized := strings.Map(func(r rune) rune {
		if r < ASCIIControlCharMin || r == ASCIIControlCharMax {
			return -1
		}
		return r
	}, input)

	if len(sanitized) > MaxEndpointLength {
		sanitized = sanitized[:MaxEndpointLength] + "..."
	}

	return sanitized
}

// sanitizeRemoteAddr sanitizes remote address for logging
func sanitizeRemoteAddr(remoteAddr string) string {
	if len(remoteAddr) > MaxRemoteAddrLength {
		return remoteAddr[:MaxRemoteAddrLength] + "..."
	}
	return remoteAddr
}

// requestMiddleware logs every request and enforces the inbound rate limit.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sanitizedEndpoint := sanitizeForLogging(r.URL.Path)
		sanitizedRemoteAddr := sanitizeRemoteAddr(r.RemoteAddr)

		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"endpoint": sanitizedEndpoint,
			"remote":   sanitizedRemoteAddr,
		}).Info("Incoming request")

		if s.rateLimiter != nil && !s.rateLimiter.Allow() {
			s.logger.WithFields(logrus.Fields{
				"endpoint": sanitizedEndpoint,
				"remote":   sanitizedRemoteAddr,
			}).Warn("Rate limit exceeded")

			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	if s.config.SecurityHeadersEnabled {
		securityMiddleware := middleware.NewSecurityHeaders(s.config, s.logger)
		router.Use(securityMiddleware.Handler)
		s.logger.WithField("dev_mode", s.config.IsDevMode()).Info("Security headers middleware enabled")
	} else {
		s.logger.Info("Security headers middleware disabled")
	}
	router.Use(s.requestMiddleware)

	router.HandleFunc("/health", s.handlers.HandleHealth).Methods("GET")
	router.HandleFunc("/session/{id}/next", s.handlers.HandleNextPick).Methods("POST")
	router.HandleFunc("/session/{id}/pool", s.handlers.HandlePool).Methods("GET")
	router.HandleFunc("/session/{id}/history", s.handlers.HandleHistory).Methods("GET")
	router.HandleFunc("/session/{id}/listeners", s.handlers.HandleSetListeners).Methods("PUT")
	router.HandleFunc("/session/{id}", s.handlers.HandleEndSession).Methods("DELETE")
	router.HandleFunc("/listener/{id}/profile", s.handlers.HandleProfile).Methods("GET")
	router.HandleFunc("/listener/{id}/library", s.handlers.HandleImportLibrary).Methods("POST")

	return router
}

func (s *Server) Start() error {
	if s.server != nil {
		return errors.ErrServerStart.WithContext("reason", "server already started")
	}

	s.server = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.logger.WithFields(logrus.Fields{
		"port": s.config.Port,
		"url":  fmt.Sprintf("http://localhost:%s", s.config.Port),
	}).Info("Starting server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Error("Failed to shutdown HTTP server")
			return errors.Wrap(err, errors.CategoryServer, "SHUTDOWN_FAILED", "failed to shutdown HTTP server")
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close database connection")
		}
	}

	s.logger.Info("Server shut down successfully")
	return nil
}
