package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	// Cache backing store. "file" keeps artifacts on the local filesystem,
	// "redis" talks to a Redis instance.
	StorageBackend string
	StoragePath    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Optional Postgres DSN for the analytics recorder. Leave empty to
	// disable analytics entirely.
	DatabaseURL string

	GeoIPDBPath   string
	DefaultLocale string

	// Generation providers.
	FluxAPIKey  string
	FluxBaseURL string
	FluxModel   string

	// Describe collaborator.
	DescriberAPIKey  string
	DescriberBaseURL string
	DescriberModel   string

	FetchTimeout    time.Duration
	GenerateTimeout time.Duration
	FetchMaxBytes   int64

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. A .env file is honored when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		StorageBackend:   getEnv("STORAGE_BACKEND", "file"),
		StoragePath:      getEnv("STORAGE_PATH", "data/artifacts"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:    getEnv("DEFAULT_LOCALE", "en"),
		FluxAPIKey:       os.Getenv("FLUX_API_KEY"),
		FluxBaseURL:      getEnv("FLUX_BASE_URL", "https://api.flux.example.com/v1"),
		FluxModel:        getEnv("FLUX_MODEL", "flux-schnell"),
		DescriberAPIKey:  os.Getenv("DESCRIBER_API_KEY"),
		DescriberBaseURL: getEnv("DESCRIBER_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		DescriberModel:   getEnv("DESCRIBER_MODEL", "gemini-2.5-flash"),
		FetchTimeout:     time.Second * time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 30)),
		GenerateTimeout:  time.Second * time.Duration(getEnvInt("GENERATE_TIMEOUT_SECONDS", 180)),
		FetchMaxBytes:    int64(getEnvInt("FETCH_MAX_BYTES", 4<<20)),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	switch cfg.StorageBackend {
	case "file", "redis":
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be file or redis, got %q", cfg.StorageBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
