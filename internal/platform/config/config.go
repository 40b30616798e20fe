// Package config builds the immutable settings object consumed at startup.
// Everything is read once from the environment so main stays lean and the
// rest of the code never touches os.Getenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Registry captures connection settings for the EPP registry endpoint.
type Registry struct {
	Host            string
	Port            int
	ClientID        string
	Password        string
	CertBundlePath  string
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
}

// Pool captures connection pool sizing and recycling policy.
type Pool struct {
	MaxSessions    int
	MinIdle        int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
	SweepInterval  time.Duration
	KeepaliveAfter time.Duration
}

// Retry captures the facade's bounded retry policy for transient outcomes.
type Retry struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// RedisConfig captures cache connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures audit event streaming settings.
type Kafka struct {
	Brokers      []string
	Topic        string
	PollInterval time.Duration
}

// Config is the single immutable settings object for the process.
type Config struct {
	Addr                string
	DatabaseURL         string
	Registry            Registry
	Pool                Pool
	Retry               Retry
	Redis               RedisConfig
	Kafka               Kafka
	CheckCacheTTL       time.Duration
	ExpirySweepInterval time.Duration
	RedemptionWindow    time.Duration
}

// FromEnv builds a Config from environment variables with development
// defaults. Secret provisioning (cert bundles, passwords) is out of scope;
// paths and values arrive through the environment like everything else.
func FromEnv() Config {
	return Config{
		Addr:        envString("REGISTRAR_ADDR", ":8080"),
		DatabaseURL: envString("REGISTRAR_DATABASE_URL", ""),
		Registry: Registry{
			Host:            envString("REGISTRY_HOST", "localhost"),
			Port:            envInt("REGISTRY_PORT", 700),
			ClientID:        envString("REGISTRY_CLIENT_ID", "registrar-dev"),
			Password:        envString("REGISTRY_PASSWORD", ""),
			CertBundlePath:  envString("REGISTRY_CERT_BUNDLE", ""),
			ConnectTimeout:  envDuration("REGISTRY_CONNECT_TIMEOUT", 10*time.Second),
			ResponseTimeout: envDuration("REGISTRY_RESPONSE_TIMEOUT", 30*time.Second),
		},
		Pool: Pool{
			MaxSessions:    envInt("REGISTRY_POOL_MAX", 4),
			MinIdle:        envInt("REGISTRY_POOL_MIN_IDLE", 1),
			AcquireTimeout: envDuration("REGISTRY_POOL_ACQUIRE_TIMEOUT", 15*time.Second),
			IdleTimeout:    envDuration("REGISTRY_POOL_IDLE_TIMEOUT", 5*time.Minute),
			SweepInterval:  envDuration("REGISTRY_POOL_SWEEP_INTERVAL", time.Minute),
			KeepaliveAfter: envDuration("REGISTRY_POOL_KEEPALIVE_AFTER", 2*time.Minute),
		},
		Retry: Retry{
			MaxAttempts:    envInt("REGISTRY_RETRY_MAX_ATTEMPTS", 3),
			InitialBackoff: envDuration("REGISTRY_RETRY_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:     envDuration("REGISTRY_RETRY_MAX_BACKOFF", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:          envString("REGISTRAR_REDIS_URL", ""),
			PoolSize:     envInt("REGISTRAR_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REGISTRAR_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("REGISTRAR_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REGISTRAR_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REGISTRAR_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:      envList("REGISTRAR_KAFKA_BROKERS"),
			Topic:        envString("REGISTRAR_KAFKA_TOPIC", "registrar.audit"),
			PollInterval: envDuration("REGISTRAR_OUTBOX_POLL_INTERVAL", 2*time.Second),
		},
		CheckCacheTTL:       envDuration("REGISTRAR_CHECK_CACHE_TTL", 5*time.Minute),
		ExpirySweepInterval: envDuration("REGISTRAR_EXPIRY_SWEEP_INTERVAL", time.Hour),
		RedemptionWindow:    envDuration("REGISTRAR_REDEMPTION_WINDOW", 30*24*time.Hour),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// RegistryAddr renders the registry endpoint as host:port.
func (c Config) RegistryAddr() string {
	return fmt.Sprintf("%s:%d", c.Registry.Host, c.Registry.Port)
}
