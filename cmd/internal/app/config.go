package app

import (
	"time"

	"nestwatch/cmd/internal/session"
	"nestwatch/cmd/internal/token"
	"nestwatch/cmd/internal/verify"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Snapshot backend selection: Redis wins over Postgres wins over file.
	SnapshotPath string
	DatabaseURL  string
	DBMaxConns   int32
	DBMinConns   int32
	RedisURL     string

	// If true, /readyz returns 503 unless the snapshot backend is reachable.
	ReadinessRequireStore bool

	TokenSecret string
	TokenIssuer string
	TokenTTL    time.Duration

	TickInterval time.Duration
	EventLogCap  int

	VerifyThreshold float64

	SendGridAPIKey    string
	EmergencyFromName string
	EmergencyFromAddr string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("NESTWATCH_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("NESTWATCH_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("NESTWATCH_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("NESTWATCH_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("NESTWATCH_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("NESTWATCH_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("NESTWATCH_HTTP_MAX_HEADER_BYTES", 1<<20),

		SnapshotPath: EnvString("NESTWATCH_SNAPSHOT_PATH", "data/snapshot.json"),
		DatabaseURL:  EnvString("NESTWATCH_DATABASE_URL", ""),
		DBMaxConns:   EnvInt32("NESTWATCH_DB_MAX_CONNS", 10),
		DBMinConns:   EnvInt32("NESTWATCH_DB_MIN_CONNS", 0),
		RedisURL:     EnvString("NESTWATCH_REDIS_URL", ""),

		ReadinessRequireStore: EnvBool("NESTWATCH_READINESS_REQUIRE_STORE", false),

		TokenSecret: EnvString("NESTWATCH_TOKEN_SECRET", ""),
		TokenIssuer: EnvString("NESTWATCH_TOKEN_ISSUER", token.DefaultIssuer),
		TokenTTL:    EnvDuration("NESTWATCH_TOKEN_TTL", token.DefaultTTL),

		TickInterval: EnvDuration("NESTWATCH_TICK_INTERVAL", session.DefaultTickInterval),
		EventLogCap:  EnvInt("NESTWATCH_EVENT_LOG_CAP", session.DefaultEventLogCap),

		VerifyThreshold: EnvFloat("NESTWATCH_VERIFY_THRESHOLD", verify.DefaultThreshold),

		SendGridAPIKey:    EnvString("SENDGRID_API_KEY", ""),
		EmergencyFromName: EnvString("NESTWATCH_EMERGENCY_FROM_NAME", "nestwatch alerts"),
		EmergencyFromAddr: EnvString("NESTWATCH_EMERGENCY_FROM_ADDR", "alerts@nestwatch.local"),
	}
}
