package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	ServiceName string

	// backend API the portal talks to
	APIBaseURL string
	APITimeout time.Duration

	// client storage ("memory", "redis" or "postgres")
	StorageDriver string
	TokenTTL      time.Duration
	DBURL         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SweepInterval time.Duration

	// session restore
	RestoreWait    time.Duration
	RestoreTimeout time.Duration

	AnalyzeDebounce time.Duration
	SnapshotTTL     time.Duration

	LoginRatePerMinute int
	APIRatePerMinute   int
	AllowedOrigins     []string
	CookieSecure       bool

	OTLPEndpoint string

	// reference backend
	DevAPIPort      int
	DevAPIJWTSecret string
	DevAPIUsersFile string
}

func Load() Config {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "dev")

	return Config{
		Env:         env,
		Port:        getEnvInt("PORT", 8080),
		ServiceName: getEnv("SERVICE_NAME", "incidentdesk-portal"),

		APIBaseURL: strings.TrimRight(getEnv("API_BASE_URL", "http://127.0.0.1:8000/api"), "/"),
		APITimeout: getEnvMillis("API_TIMEOUT_MS", 10000),

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", "memory")),
		TokenTTL:      time.Duration(getEnvInt("TOKEN_TTL_HOURS", 24)) * time.Hour,
		DBURL:         buildDBURL(),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SweepInterval: time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 300)) * time.Second,

		RestoreWait:    getEnvMillis("RESTORE_WAIT_MS", 300),
		RestoreTimeout: getEnvMillis("RESTORE_TIMEOUT_MS", 5000),

		AnalyzeDebounce: getEnvMillis("ANALYZE_DEBOUNCE_MS", 1200),
		SnapshotTTL:     time.Duration(getEnvInt("SNAPSHOT_TTL_SECONDS", 10)) * time.Second,

		LoginRatePerMinute: getEnvInt("LOGIN_RATE_PER_MINUTE", 10),
		APIRatePerMinute:   getEnvInt("API_RATE_PER_MINUTE", 600),
		AllowedOrigins:     splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		CookieSecure:       env == "prod",

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		DevAPIPort:      getEnvInt("DEVAPI_PORT", 8000),
		DevAPIJWTSecret: getEnv("DEVAPI_JWT_SECRET", "dev-secret-change-me"),
		DevAPIUsersFile: getEnv("DEVAPI_USERS_FILE", ""),
	}
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.APIBaseURL == "" {
		return fmt.Errorf("config: API_BASE_URL is required")
	}

	if c.AnalyzeDebounce <= 0 {
		return fmt.Errorf("config: ANALYZE_DEBOUNCE_MS must be positive")
	}

	return nil
}

func buildDBURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "incidentdesk")
	pass := getEnv("DB_PASSWORD", "incidentdesk")
	name := getEnv("DB_NAME", "incidentdesk")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
