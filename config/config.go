package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/tuneturn/tuneturn/errors"
)

// Default discovery parameters
const (
	DefaultCooldownWindow   = 8 * time.Hour
	DefaultLibraryPlayRatio = 0.2
	DefaultGenreWeight      = 0.4
	DefaultPopularityWeight = 0.4
	DefaultExploreBonus     = 0.15
	DefaultJitterMagnitude  = 0.1
	DefaultPoolTTL          = 10 * time.Minute
	DefaultPoolBuildTimeout = 20 * time.Second
	DefaultCatalogTimeout   = 5 * time.Second
	DefaultProfileTTL       = 15 * time.Minute
	DefaultFetchWorkers     = 4
	DefaultMaxSeedArtists   = 3
	DefaultMaxTracksPerSeed = 5
	DefaultChartLimit       = 50
	DefaultGenreExploreTop  = 3
	DefaultRadioTrackLimit  = 25
)

type Config struct {
	Port         string
	LogLevel     string
	DatabasePath string

	// Catalog connectors
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyBaseURL      string
	SpotifyTokenURL     string
	DeezerBaseURL       string
	CatalogTimeout      time.Duration
	CatalogRPS          float64
	CatalogBurst        int

	// Discovery
	CooldownWindow   time.Duration
	LibraryPlayRatio float64
	GenreWeight      float64
	PopularityWeight float64
	ExploreBonus     float64
	JitterMagnitude  float64
	JitterSeed       int64 // 0 means non-deterministic
	PoolTTL          time.Duration
	PoolBuildTimeout time.Duration
	ProfileTTL       time.Duration
	FetchWorkers     int
	MaxSeedArtists   int
	MaxTracksPerSeed int
	ChartLimit       int
	GenreExploreTop  int
	RadioTrackLimit  int

	// Inbound rate limiting
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// Security headers
	SecurityHeadersEnabled  bool
	DevMode                 bool
	XContentTypeOptions     string
	XFrameOptions           string
	XXSSProtection          string
	ContentSecurityPolicy   string
	ReferrerPolicy          string
	StrictTransportSecurity string
}

func New() *Config {
	var (
		port     = flag.String("port", getEnvOrDefault("PORT", "8080"), "HTTP server port")
		logLevel = flag.String("log-level", getEnvOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
		dbPath   = flag.String("db-path", getEnvOrDefault("DB_PATH", "tuneturn.db"), "Database file path")

		spotifyClientID     = flag.String("spotify-client-id", getEnvOrDefault("SPOTIFY_CLIENT_ID", ""), "Spotify API client ID")
		spotifyClientSecret = flag.String("spotify-client-secret", getEnvOrDefault("SPOTIFY_CLIENT_SECRET", ""), "Spotify API client secret")
		spotifyBaseURL      = flag.String("spotify-base-url", getEnvOrDefault("SPOTIFY_BASE_URL", "https://api.spotify.com/v1"), "Spotify API base URL")
		spotifyTokenURL     = flag.String("spotify-token-url", getEnvOrDefault("SPOTIFY_TOKEN_URL", "https://accounts.spotify.com/api/token"), "Spotify token endpoint")
		deezerBaseURL       = flag.String("deezer-base-url", getEnvOrDefault("DEEZER_BASE_URL", "https://api.deezer.com"), "Deezer API base URL")
		catalogTimeout      = flag.Duration("catalog-timeout", getEnvDuration("CATALOG_TIMEOUT", DefaultCatalogTimeout), "Per-call catalog request timeout")
		catalogRPS          = flag.Float64("catalog-rps", getEnvFloat("CATALOG_RPS", 8), "Outbound catalog requests per second")
		catalogBurst        = flag.Int("catalog-burst", getEnvInt("CATALOG_BURST", 4), "Outbound catalog request burst")

		cooldownWindow   = flag.Duration("cooldown-window", getEnvDuration("COOLDOWN_WINDOW", DefaultCooldownWindow), "Replay cooldown window")
		libraryRatio     = flag.Float64("library-play-ratio", getEnvFloat("LIBRARY_PLAY_RATIO", DefaultLibraryPlayRatio), "Fraction of turns forced to library picks")
		genreWeight      = flag.Float64("genre-weight", getEnvFloat("GENRE_WEIGHT", DefaultGenreWeight), "Scoring weight for genre similarity")
		popularityWeight = flag.Float64("popularity-weight", getEnvFloat("POPULARITY_WEIGHT", DefaultPopularityWeight), "Scoring weight for popularity")
		exploreBonus     = flag.Float64("explore-bonus", getEnvFloat("EXPLORE_BONUS", DefaultExploreBonus), "Bonus applied to wildcard candidates")
		jitterMagnitude  = flag.Float64("jitter-magnitude", getEnvFloat("JITTER_MAGNITUDE", DefaultJitterMagnitude), "Upper bound of random score jitter")
		jitterSeed       = flag.Int64("jitter-seed", getEnvInt64("JITTER_SEED", 0), "Fixed jitter seed for deterministic scoring (0 = random)")
		poolTTL          = flag.Duration("pool-ttl", getEnvDuration("POOL_TTL", DefaultPoolTTL), "Candidate pool cache lifetime")
		poolBuildTimeout = flag.Duration("pool-build-timeout", getEnvDuration("POOL_BUILD_TIMEOUT", DefaultPoolBuildTimeout), "Overall deadline for one pool build")
		profileTTL       = flag.Duration("profile-ttl", getEnvDuration("PROFILE_TTL", DefaultProfileTTL), "Listener profile staleness budget")
		fetchWorkers     = flag.Int("fetch-workers", getEnvInt("FETCH_WORKERS", DefaultFetchWorkers), "Max concurrent catalog fetches per pool build")
		maxSeedArtists   = flag.Int("max-seed-artists", getEnvInt("MAX_SEED_ARTISTS", DefaultMaxSeedArtists), "Max seed artists per strategy")
		maxTracksPerSeed = flag.Int("max-tracks-per-seed", getEnvInt("MAX_TRACKS_PER_SEED", DefaultMaxTracksPerSeed), "Max tracks fetched per seed artist")
		chartLimit       = flag.Int("chart-limit", getEnvInt("CHART_LIMIT", DefaultChartLimit), "Tracks fetched from the global chart")
		genreExploreTop  = flag.Int("genre-explore-top", getEnvInt("GENRE_EXPLORE_TOP", DefaultGenreExploreTop), "Top genres explored per cycle")
		radioTrackLimit  = flag.Int("radio-track-limit", getEnvInt("RADIO_TRACK_LIMIT", DefaultRadioTrackLimit), "Tracks fetched per radio station")

		rateLimitEnabled = flag.Bool("rate-limit", getEnvBool("RATE_LIMIT_ENABLED", true), "Enable inbound rate limiting")
		rateLimitRPS     = flag.Float64("rate-limit-rps", getEnvFloat("RATE_LIMIT_RPS", 10), "Inbound requests per second")
		rateLimitBurst   = flag.Int("rate-limit-burst", getEnvInt("RATE_LIMIT_BURST", 20), "Inbound request burst")

		securityHeaders = flag.Bool("security-headers", getEnvBool("SECURITY_HEADERS_ENABLED", true), "Enable security headers")
		devMode         = flag.Bool("dev-mode", getEnvBool("DEV_MODE", false), "Relax security headers for development")
	)
	flag.Parse()

	return &Config{
		Port:         *port,
		LogLevel:     *logLevel,
		DatabasePath: *dbPath,

		SpotifyClientID:     *spotifyClientID,
		SpotifyClientSecret: *spotifyClientSecret,
		SpotifyBaseURL:      *spotifyBaseURL,
		SpotifyTokenURL:     *spotifyTokenURL,
		DeezerBaseURL:       *deezerBaseURL,
		CatalogTimeout:      *catalogTimeout,
		CatalogRPS:          *catalogRPS,
		CatalogBurst:        *catalogBurst,

		CooldownWindow:   *cooldownWindow,
		LibraryPlayRatio: *libraryRatio,
		GenreWeight:      *genreWeight,
		PopularityWeight: *popularityWeight,
		ExploreBonus:     *exploreBonus,
		JitterMagnitude:  *jitterMagnitude,
		JitterSeed:       *jitterSeed,
		PoolTTL:          *poolTTL,
		PoolBuildTimeout: *poolBuildTimeout,
		ProfileTTL:       *profileTTL,
		FetchWorkers:     *fetchWorkers,
		MaxSeedArtists:   *maxSeedArtists,
		MaxTracksPerSeed: *maxTracksPerSeed,
		ChartLimit:       *chartLimit,
		GenreExploreTop:  *genreExploreTop,
		RadioTrackLimit:  *radioTrackLimit,

		RateLimitEnabled: *rateLimitEnabled,
		RateLimitRPS:     *rateLimitRPS,
		RateLimitBurst:   *rateLimitBurst,

		SecurityHeadersEnabled:  *securityHeaders,
		DevMode:                 *devMode,
		XContentTypeOptions:     getEnvOrDefault("X_CONTENT_TYPE_OPTIONS", "nosniff"),
		XFrameOptions:           getEnvOrDefault("X_FRAME_OPTIONS", "DENY"),
		XXSSProtection:          getEnvOrDefault("X_XSS_PROTECTION", "1; mode=block"),
		ContentSecurityPolicy:   getEnvOrDefault("CONTENT_SECURITY_POLICY", "default-src 'self'"),
		ReferrerPolicy:          getEnvOrDefault("REFERRER_POLICY", "strict-origin-when-cross-origin"),
		StrictTransportSecurity: getEnvOrDefault("STRICT_TRANSPORT_SECURITY", "max-age=31536000; includeSubDomains"),
	}
}

// Validate checks configuration values for internal consistency.
func (c *Config) Validate() error {
	portNum, err := strconv.Atoi(c.Port)
	if err != nil || portNum < 1 || portNum > 65535 {
		return errors.ErrInvalidPort.WithContext("port", c.Port)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.ErrInvalidLogLevel.WithContext("log_level", c.LogLevel)
	}

	if c.DatabasePath == "" {
		return errors.ErrInvalidDatabasePath
	}

	if c.LibraryPlayRatio < 0 || c.LibraryPlayRatio > 1 {
		return errors.ErrInvalidRatio.WithContext("library_play_ratio", c.LibraryPlayRatio)
	}

	if c.GenreWeight < 0 || c.PopularityWeight < 0 || c.ExploreBonus < 0 {
		return errors.ErrInvalidWeights.
			WithContext("genre_weight", c.GenreWeight).
			WithContext("popularity_weight", c.PopularityWeight).
			WithContext("explore_bonus", c.ExploreBonus)
	}

	if c.JitterMagnitude < 0 {
		return errors.ErrInvalidWeights.WithContext("jitter_magnitude", c.JitterMagnitude)
	}

	if c.CooldownWindow < 0 {
		return errors.ErrValidationFailed.WithContext("field", "cooldown_window")
	}

	if c.FetchWorkers < 1 {
		return errors.ErrValidationFailed.WithContext("field", "fetch_workers")
	}

	if c.MaxSeedArtists < 1 || c.MaxTracksPerSeed < 1 {
		return errors.ErrValidationFailed.
			WithContext("max_seed_artists", c.MaxSeedArtists).
			WithContext("max_tracks_per_seed", c.MaxTracksPerSeed)
	}

	return nil
}

// IsDevMode reports whether relaxed development security headers apply.
func (c *Config) IsDevMode() bool {
	return c.DevMode
}

// LibraryTurnInterval converts the play ratio into a turn interval:
// a ratio of 0.2 means every 5th turn is a forced library turn.
// A ratio of 0 disables forced library turns.
func (c *Config) LibraryTurnInterval() int {
	if c.LibraryPlayRatio <= 0 {
		return 0
	}
	interval := int(1/c.LibraryPlayRatio + 0.5)
	if interval < 1 {
		interval = 1
	}
	return interval
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
