package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL    string
	ServerAddr     string
	MigrationsDir  string
	TuningPath     string
	LogLevel       string
	ShutdownGrace  time.Duration
	RequestTimeout time.Duration

	ExplorerURL      string
	ExplorerTimeout  time.Duration
	TreasuryAddress  string
	VerifyCallbackTx bool
	ScanLookback     int

	RequestTTL        time.Duration
	ScanInterval      time.Duration
	ScanBatch         int
	RaceSweepInterval time.Duration

	AdminTokenHash    string
	CallbackTokenHash string

	ArchiveBucket    string
	ArchivePrefix    string
	ArchiveEndpoint  string
	ArchiveRegion    string
	ArchiveAccessKey string
	ArchiveSecretKey string
}

// Load reads configuration from a .env file, when present, and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "derby")
		pass := getenv("POSTGRES_PASSWORD", "derby_pass")
		db := getenv("POSTGRES_DB", "derby")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	treasury := os.Getenv("TREASURY_ADDRESS")
	if treasury == "" {
		return nil, fmt.Errorf("TREASURY_ADDRESS is required")
	}

	return &Config{
		DatabaseURL:    dsn,
		ServerAddr:     getenv("SERVER_ADDR", "0.0.0.0:8080"),
		MigrationsDir:  getenv("MIGRATIONS_DIR", "internal/migrations"),
		TuningPath:     getenv("TUNING_PATH", "config/tuning.yaml"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		ShutdownGrace:  parseDuration(getenv("SHUTDOWN_GRACE", "15s"), 15*time.Second),
		RequestTimeout: parseDuration(getenv("HTTP_REQUEST_TIMEOUT", "30s"), 30*time.Second),

		ExplorerURL:      getenv("EXPLORER_URL", "https://api.ergoplatform.com"),
		ExplorerTimeout:  parseDuration(getenv("EXPLORER_TIMEOUT", "5s"), 5*time.Second),
		TreasuryAddress:  treasury,
		VerifyCallbackTx: parseBool(getenv("VERIFY_CALLBACK_TX", "false"), false),
		ScanLookback:     parseInt(getenv("SCAN_LOOKBACK", "20"), 20),

		RequestTTL:        parseDuration(getenv("REQUEST_TTL", "15m"), 15*time.Minute),
		ScanInterval:      parseDuration(getenv("SCAN_INTERVAL", "30s"), 30*time.Second),
		ScanBatch:         parseInt(getenv("SCAN_BATCH", "50"), 50),
		RaceSweepInterval: parseDuration(getenv("RACE_SWEEP_INTERVAL", "1m"), time.Minute),

		AdminTokenHash:    os.Getenv("ADMIN_TOKEN_HASH"),
		CallbackTokenHash: os.Getenv("CALLBACK_TOKEN_HASH"),

		ArchiveBucket:    os.Getenv("ARCHIVE_BUCKET"),
		ArchivePrefix:    getenv("ARCHIVE_PREFIX", "races"),
		ArchiveEndpoint:  os.Getenv("ARCHIVE_ENDPOINT"),
		ArchiveRegion:    getenv("ARCHIVE_REGION", "us-east-1"),
		ArchiveAccessKey: os.Getenv("ARCHIVE_ACCESS_KEY_ID"),
		ArchiveSecretKey: os.Getenv("ARCHIVE_SECRET_ACCESS_KEY"),
	}, nil
}

// ArchiveEnabled reports whether resolution records should be uploaded.
// Signing keys are loaded separately by the keystore.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveBucket != ""
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
