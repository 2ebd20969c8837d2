package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// StoreBackend selects where credentials and issuer profiles live.
type StoreBackend string

const (
	BackendMemory   StoreBackend = "memory"
	BackendPostgres StoreBackend = "postgres"
	BackendRedis    StoreBackend = "redis"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	ShutdownTimeout time.Duration

	Auth         AuthConfig
	Store        StoreBackend
	DatabaseURL  string
	Redis        RedisConfig
	Kafka        KafkaConfig
	Verification VerificationConfig
	Holder       HolderConfig
	RateLimit    RateLimitConfig

	// ImportPolicyFile overrides the built-in Rego import policy.
	ImportPolicyFile string
}

// AuthConfig configures bearer-token validation for the wallet API.
type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// RedisConfig configures the shared Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit event stream. Empty Brokers keeps audit
// events in memory.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// VerificationConfig bounds remote calls made while importing and verifying.
type VerificationConfig struct {
	LedgerGatewayURL string
	FetchTimeout     time.Duration
	CheckTimeout     time.Duration
	JSONLDCanonical  bool
}

// HolderConfig identifies the wallet holder to issuers. PrivateKey, when set,
// wins over Address.
type HolderConfig struct {
	Address    string
	PrivateKey string
}

// RateLimitConfig sets per-caller request budgets for the /v1 API. A zero
// budget disables limiting for that class; RATE_LIMIT_DISABLED zeroes both.
type RateLimitConfig struct {
	ReadsPerWindow  int
	WritesPerWindow int
	Window          time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	rateLimit := RateLimitConfig{
		ReadsPerWindow:  intOr("RATE_LIMIT_READS", 120),
		WritesPerWindow: intOr("RATE_LIMIT_WRITES", 30),
		Window:          durationOr("RATE_LIMIT_WINDOW", time.Minute),
	}
	if os.Getenv("RATE_LIMIT_DISABLED") == "true" {
		rateLimit.ReadsPerWindow, rateLimit.WritesPerWindow = 0, 0
	}

	return Server{
		Addr:            envOr("CERTWALLET_ADDR", ":8080"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		ShutdownTimeout: durationOr("SHUTDOWN_TIMEOUT", 10*time.Second),
		Auth: AuthConfig{
			JWTSigningKey: jwtSigningKey,
			Issuer:        envOr("JWT_ISSUER", "certwallet"),
			Audience:      envOr("JWT_AUDIENCE", "certwallet-api"),
		},
		Store:       StoreBackend(strings.ToLower(envOr("STORE_BACKEND", string(BackendMemory)))),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: intOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("AUDIT_TOPIC", "certwallet.audit"),
		},
		Verification: VerificationConfig{
			LedgerGatewayURL: strings.TrimRight(envOr("LEDGER_GATEWAY_URL", "https://arweave.net"), "/"),
			FetchTimeout:     durationOr("FETCH_TIMEOUT", 10*time.Second),
			CheckTimeout:     durationOr("CHECK_TIMEOUT", 15*time.Second),
			JSONLDCanonical:  os.Getenv("JSONLD_CANONICAL") == "true",
		},
		Holder: HolderConfig{
			Address:    os.Getenv("HOLDER_ADDRESS"),
			PrivateKey: os.Getenv("HOLDER_PRIVATE_KEY"),
		},
		RateLimit:        rateLimit,
		ImportPolicyFile: os.Getenv("IMPORT_POLICY_FILE"),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
