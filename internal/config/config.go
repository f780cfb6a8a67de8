// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep fields unexported where possible and use functional options.
// - Provide New(...) initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Scheduler policy.
	DebounceWindowMS   int     `koanf:"debounce_window_ms"`
	BatchSize          int     `koanf:"batch_size"`
	RetryCount         int     `koanf:"retry_count"`
	RetryDelayMS       int     `koanf:"retry_delay_ms"`
	RealTimeUpdates    bool    `koanf:"real_time_updates"`
	BatchUpdates       bool    `koanf:"batch_updates"`
	FullUpdateRatio    float64 `koanf:"full_update_ratio"`
	MaxProfileAgeHours int     `koanf:"max_profile_age_hours"`
	RecentRatingsLimit int     `koanf:"recent_ratings_limit"`

	// ClusterSeed seeds the clustering random source; 0 means a
	// time-based seed.
	ClusterSeed int64 `koanf:"cluster_seed"`

	// Store selects the backing stores: "memory" or "mongo".
	Store         string `koanf:"store"`
	MongoURI      string `koanf:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database"`

	// Redis cache for read paths; empty addr disables caching.
	RedisAddr       string `koanf:"redis_addr"`
	RedisPassword   string `koanf:"redis_password"`
	CacheTTLSeconds int    `koanf:"cache_ttl_seconds"`

	// MaxSimilarUsers caps GET /users/{id}/similar?limit.
	MaxSimilarUsers int `koanf:"max_similar_users"`
}

// New creates a Config populated with defaults.
func New() *Config {
	c := &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		DebounceWindowMS:   5000,
		BatchSize:          50,
		RetryCount:         0,
		RetryDelayMS:       1000,
		RealTimeUpdates:    true,
		BatchUpdates:       true,
		FullUpdateRatio:    0.2,
		MaxProfileAgeHours: 168,
		RecentRatingsLimit: 100,
		Store:              "memory",
		MongoDatabase:      "brewtaste",
		CacheTTLSeconds:    300,
		MaxSimilarUsers:    50,
	}
	return c
}
