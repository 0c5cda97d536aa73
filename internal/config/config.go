package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration loaded from environment variables.
// godotenv is loaded by main before this runs.
type Config struct {
	// Server
	Port     string
	LogLevel string
	LogFile  string

	// Redis (optional L2 for the pagination request cache)
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// Pagination option overrides; zero values mean "use library defaults"
	PostsPerPage        int
	MinResultsForFilter int
	MaxAutoFetchPosts   int
	FetchTimeout        time.Duration
	MaxMemoryPosts      int
	CacheSize           int
}

// Load reads configuration from the environment
func Load() *Config {
	return &Config{
		Port:     getEnvOrDefault("PORT", "8787"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:  getEnvOrDefault("LOG_FILE", "feed.log"),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     os.Getenv("REDIS_PORT"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		PostsPerPage:        getEnvInt("FEED_POSTS_PER_PAGE", 0),
		MinResultsForFilter: getEnvInt("FEED_MIN_RESULTS_FOR_FILTER", 0),
		MaxAutoFetchPosts:   getEnvInt("FEED_MAX_AUTO_FETCH_POSTS", 0),
		FetchTimeout:        getEnvDuration("FEED_FETCH_TIMEOUT", 0),
		MaxMemoryPosts:      getEnvInt("FEED_MAX_MEMORY_POSTS", 0),
		CacheSize:           getEnvInt("FEED_CACHE_SIZE", 0),
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
