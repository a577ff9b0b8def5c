// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Invite store backends selectable with INVITE_STORE.
const (
	InviteStoreAuto     = "auto"
	InviteStoreMemory   = "memory"
	InviteStorePostgres = "postgres"
	InviteStoreMongo    = "mongo"
)

// maxInviteExpiryHours matches the invite service's ceiling of one year.
const maxInviteExpiryHours = 8760

// minMasterSecretLen is the minimum MASTER_SECRET length in bytes (256 bits).
const minMasterSecretLen = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint (e.g. :9090). Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment ("development", "production", ...).
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// DatabaseURL is the Postgres DSN for principals and invites. Empty selects in-memory stores.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the redis:// URL for revocations and login links. Empty selects in-memory stores.
	RedisURL string `mapstructure:"REDIS_URL"`
	// MongoURI is the MongoDB connection string; used when InviteStore is "mongo".
	MongoURI string `mapstructure:"MONGO_URI"`
	// MongoDatabase is the MongoDB database holding the invites collection.
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`
	// InviteStore selects the invite backend: auto, memory, postgres or mongo.
	InviteStore string `mapstructure:"INVITE_STORE"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; must pair with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim set on and required of every session token.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim set on and required of every session token.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "168h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "720h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`

	// LoginLinkTTL is the validity window of a passwordless login link (e.g. "15m").
	LoginLinkTTL string `mapstructure:"LOGIN_LINK_TTL"`
	// LoginLinkBaseURL is prefixed to the link token when a link is delivered.
	LoginLinkBaseURL string `mapstructure:"LOGIN_LINK_BASE_URL"`

	// MasterSecret is the root secret from which the invite HMAC key and message key are derived.
	MasterSecret string `mapstructure:"MASTER_SECRET"`
	// InviteOnly makes an invite mandatory for registration unless the email domain is exempt.
	InviteOnly bool `mapstructure:"INVITE_ONLY"`
	// InviteDefaultExpiryHours is used when an invite is created without an explicit expiry.
	InviteDefaultExpiryHours int `mapstructure:"INVITE_DEFAULT_EXPIRY_HOURS"`
	// InviteExemptDomains is a comma-separated list of email domains that may register without an invite.
	InviteExemptDomains string `mapstructure:"INVITE_EXEMPT_DOMAINS"`

	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// RevocationSweepInterval is how often in-memory stores drop expired entries.
	RevocationSweepInterval string `mapstructure:"REVOCATION_SWEEP_INTERVAL"`

	// KafkaBrokers is a comma-separated broker list for publishing auth events. Empty disables it.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaTopic is the topic auth events are published to.
	KafkaTopic string `mapstructure:"KAFKA_TOPIC"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DATABASE", "chat")
	v.SetDefault("INVITE_STORE", InviteStoreAuto)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "chat-auth")
	v.SetDefault("JWT_AUDIENCE", "chat-api")
	v.SetDefault("JWT_ACCESS_TTL", "168h")  // 7d
	v.SetDefault("JWT_REFRESH_TTL", "720h") // 30d
	v.SetDefault("LOGIN_LINK_TTL", "15m")
	v.SetDefault("LOGIN_LINK_BASE_URL", "")
	v.SetDefault("MASTER_SECRET", "")
	v.SetDefault("INVITE_ONLY", true)
	v.SetDefault("INVITE_DEFAULT_EXPIRY_HOURS", 24)
	v.SetDefault("INVITE_EXEMPT_DOMAINS", "")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("REVOCATION_SWEEP_INTERVAL", "1m")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "chat.auth-events")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "chat-credential-engine")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.InviteDefaultExpiryHours <= 0 || cfg.InviteDefaultExpiryHours > maxInviteExpiryHours {
		return nil, errors.New("config: INVITE_DEFAULT_EXPIRY_HOURS must be between 1 and 8760")
	}

	cfg.InviteStore = strings.ToLower(strings.TrimSpace(cfg.InviteStore))
	switch cfg.InviteStore {
	case "", InviteStoreAuto:
		cfg.InviteStore = InviteStoreAuto
	case InviteStoreMemory, InviteStorePostgres:
	case InviteStoreMongo:
		if cfg.MongoURI == "" {
			return nil, errors.New("config: MONGO_URI must be set when INVITE_STORE=mongo")
		}
	default:
		return nil, errors.New("config: INVITE_STORE must be one of auto, memory, postgres, mongo")
	}
	if cfg.InviteStore == InviteStorePostgres && cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL must be set when INVITE_STORE=postgres")
	}

	if cfg.MasterSecret != "" && len(cfg.MasterSecret) < minMasterSecretLen {
		return nil, errors.New("config: MASTER_SECRET must be at least 32 bytes")
	}
	if cfg.MasterSecret == "" && cfg.IsProduction() {
		return nil, errors.New("config: MASTER_SECRET must be set when APP_ENV=production")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 168*time.Hour)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 720*time.Hour)
}

// LinkTTL parses LoginLinkTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) LinkTTL() time.Duration {
	return parseDuration(c.LoginLinkTTL, 15*time.Minute)
}

// SweepInterval parses RevocationSweepInterval as a time.Duration. Returns 1m if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.RevocationSweepInterval, time.Minute)
}

// ResolvedInviteStore returns the concrete invite backend, resolving "auto" to postgres when
// DATABASE_URL is set and to memory otherwise.
func (c *Config) ResolvedInviteStore() string {
	if c.InviteStore != InviteStoreAuto && c.InviteStore != "" {
		return c.InviteStore
	}
	if c.DatabaseURL != "" {
		return InviteStorePostgres
	}
	return InviteStoreMemory
}

// InviteExemptDomainsList returns the exempt email domains, lower-cased and trimmed.
func (c *Config) InviteExemptDomainsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.InviteExemptDomains, strings.ToLower)
}

// KafkaBrokersList returns the configured brokers, trimmed.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers, nil)
}

func splitList(s string, normalize func(string) string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if normalize != nil {
			p = normalize(p)
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
