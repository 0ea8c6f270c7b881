package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pstrings "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
	// PublicURL is the externally reachable base URL, used to build the
	// versions and endpoint URLs we hand to counterparts.
	PublicURL  string
	AdminToken string
	LogFormat  string
	LogLevel   string
	// OpenData lets requests without a known token through as anonymous
	// callers instead of rejecting them.
	OpenData bool
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// Registration tunes the credentials handshake.
type Registration struct {
	// RotationGrace keeps a replaced token valid for in-flight calls.
	RotationGrace   time.Duration
	RequestTimeout  time.Duration
	HandshakeBudget time.Duration
	MaxRetries      uint64
	RetryBaseDelay  time.Duration
	// RequestsPerSecond limits outbound calls per counterpart.
	RequestsPerSecond float64
	LockTTL           time.Duration
}

// Pagination bounds list endpoints.
type Pagination struct {
	DefaultLimit int
	MaxLimit     int
}

// RedisConfig configures the optional Redis client used for cross-instance
// registration locks.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the optional Postgres party store.
type PostgresConfig struct {
	URL            string
	MaxConns       int32
	MigrateOnStart bool
}

// KafkaConfig configures the optional audit event stream.
type KafkaConfig struct {
	Brokers     []string
	AuditTopic  string
	CreateTopic bool
}

// Jobs configures background maintenance.
type Jobs struct {
	PruneInterval time.Duration
}

// Config is the full process configuration.
type Config struct {
	Server       Server
	Registration Registration
	Pagination   Pagination
	Redis        RedisConfig
	Postgres     PostgresConfig
	Kafka        KafkaConfig
	Jobs         Jobs
	// Platform is loaded from the optional YAML file: our own roles and any
	// statically configured counterparts.
	Platform PlatformFile
}

// PlatformFile is the YAML document referenced by OCPI_CONFIG_FILE.
type PlatformFile struct {
	Roles   []RoleEntry   `yaml:"roles"`
	Parties []StaticParty `yaml:"parties"`
}

// RoleEntry is one of our own identities.
type RoleEntry struct {
	CountryCode string `yaml:"country_code"`
	PartyID     string `yaml:"party_id"`
	Role        string `yaml:"role"`
	Name        string `yaml:"name"`
	Website     string `yaml:"website"`
}

// StaticParty is a counterpart configured by hand instead of registered
// through the handshake.
type StaticParty struct {
	CountryCode string       `yaml:"country_code"`
	PartyID     string       `yaml:"party_id"`
	Role        string       `yaml:"role"`
	Name        string       `yaml:"name"`
	Roles       []RoleEntry  `yaml:"roles"`
	Tokens      []TokenEntry `yaml:"tokens"`
	// Remote is set when we already hold a token for calling the party.
	Remote *RemoteEntry `yaml:"remote"`
}

// TokenEntry is a token we accept from a static party.
type TokenEntry struct {
	Token      string `yaml:"token"`
	Base64     bool   `yaml:"base64"`
	Status     string `yaml:"status"`
	TOTPSecret string `yaml:"totp_secret"`
}

// RemoteEntry is a token and versions URL we use to call a static party.
type RemoteEntry struct {
	Token       string `yaml:"token"`
	Base64      bool   `yaml:"base64"`
	VersionsURL string `yaml:"versions_url"`
}

// FromEnv builds a Config from environment variables so main stays lean.
// When OCPI_CONFIG_FILE is set the platform file is loaded as well.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:            getEnv("OCPI_ADDR", ":8080"),
			PublicURL:       strings.TrimRight(getEnv("OCPI_PUBLIC_URL", "http://localhost:8080"), "/"),
			AdminToken:      os.Getenv("OCPI_ADMIN_TOKEN"),
			LogFormat:       getEnv("LOG_FORMAT", "json"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			OpenData:        getBool("OCPI_OPEN_DATA", false),
			ShutdownTimeout: getDuration("OCPI_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Registration: Registration{
			RotationGrace:     getDuration("OCPI_ROTATION_GRACE", 15*time.Minute),
			RequestTimeout:    getDuration("OCPI_REGISTRATION_REQUEST_TIMEOUT", 10*time.Second),
			HandshakeBudget:   getDuration("OCPI_REGISTRATION_BUDGET", 2*time.Minute),
			MaxRetries:        uint64(getInt("OCPI_REGISTRATION_MAX_RETRIES", 3)),
			RetryBaseDelay:    getDuration("OCPI_REGISTRATION_RETRY_DELAY", 500*time.Millisecond),
			RequestsPerSecond: getFloat("OCPI_REGISTRATION_RPS", 5),
			LockTTL:           getDuration("OCPI_REGISTRATION_LOCK_TTL", 3*time.Minute),
		},
		Pagination: Pagination{
			DefaultLimit: getInt("OCPI_PAGE_DEFAULT_LIMIT", 50),
			MaxLimit:     getInt("OCPI_PAGE_MAX_LIMIT", 500),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL:            os.Getenv("DATABASE_URL"),
			MaxConns:       int32(getInt("DATABASE_MAX_CONNS", 10)),
			MigrateOnStart: getBool("DATABASE_MIGRATE_ON_START", true),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic:  getEnv("KAFKA_AUDIT_TOPIC", "ocpi.audit"),
			CreateTopic: getBool("KAFKA_CREATE_TOPIC", false),
		},
		Jobs: Jobs{
			PruneInterval: getDuration("OCPI_PRUNE_INTERVAL", time.Minute),
		},
	}

	if path := os.Getenv("OCPI_CONFIG_FILE"); path != "" {
		pf, err := LoadPlatformFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Platform = pf
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadPlatformFile reads our roles and static parties from YAML.
func LoadPlatformFile(path string) (PlatformFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PlatformFile{}, fmt.Errorf("read config file: %w", err)
	}
	var pf PlatformFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return PlatformFile{}, fmt.Errorf("parse config file: %w", err)
	}
	return pf, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Pagination.DefaultLimit <= 0 || c.Pagination.MaxLimit < c.Pagination.DefaultLimit {
		return fmt.Errorf("invalid pagination limits: default %d, max %d", c.Pagination.DefaultLimit, c.Pagination.MaxLimit)
	}
	if c.Registration.RotationGrace < 0 {
		return fmt.Errorf("rotation grace must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(v string) []string {
	return pstrings.SplitList(v)
}
