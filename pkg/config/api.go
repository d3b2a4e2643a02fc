package config

import "time"

// APIConfig holds runtime configuration for the identity service. It is
// built once in main and passed into components; nothing reads the
// environment after startup.
type APIConfig struct {
	Environment string
	Addr        string

	// Store selection and the single-key store contract knobs.
	StoreBackend    string
	KeyPrefix       string
	ConsistentReads bool

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisReplicaAddr string

	DatabaseURL   string
	MigrationsDir string

	// Trusted-caller (realtime gateway) integration.
	GatewayToken    string
	JWTSecret       string
	SessionTokenTTL time.Duration

	// Lifecycle policy.
	TakeoverStaleAfter time.Duration

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":4600"),
		StoreBackend:       GetString("STORE_BACKEND", "redis"),
		KeyPrefix:          GetString("STORE_KEY_PREFIX", "spectcast:"),
		ConsistentReads:    GetBool("STORE_CONSISTENT_READS", true),
		RedisAddr:          GetString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      GetString("REDIS_PASSWORD", ""),
		RedisDB:            GetInt("REDIS_DB", 0),
		RedisReplicaAddr:   GetString("REDIS_REPLICA_ADDR", ""),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://identity:identity@db:5432/identity?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		GatewayToken:       GetString("GATEWAY_AUTH_TOKEN", ""),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		SessionTokenTTL:    time.Duration(GetInt("SESSION_TOKEN_TTL_MIN", 60)) * time.Minute,
		TakeoverStaleAfter: time.Duration(GetInt("TAKEOVER_STALE_HOURS", 24)) * time.Hour,
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
