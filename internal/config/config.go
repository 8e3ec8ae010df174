package config

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "MARKSYNC_"

// Backend and broadcast drivers.
const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverLocal    = "local"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Backend service
	BackendDriver          string        // "redis" | "postgres"
	PostgresDSN            string        // required when BackendDriver is postgres
	PostgresConnectTimeout time.Duration // total time to retry connecting

	// Local broadcast channel
	BroadcastDriver  string // "redis" (multi-process) | "local" (single process)
	BroadcastChannel string // channel shared by every tab

	// Sessions
	JWTSecret      string            // HS256 signing key
	SessionTTL     time.Duration     // lifetime of minted tokens
	OAuthProviders map[string]string // provider name -> authorize URL
	SignedOutURL   string            // where unauthenticated tabs are sent
	SignedInURL    string            // where an already signed-in user lands

	// Mutations
	MutationTimeout time.Duration // bound on each durable call
	RateLimitBurst  int           // mutation ops a tab may burst
	RateLimitRefill time.Duration // time to regain one token

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	AllowedOrigins []string // websocket Origin allow-list, empty = same host only
	AllowedCIDRS   []string // optional, restrict /metrics and /readyz to these networks
	TrustProxy     bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

// source resolves a key from the environment first, then from the
// optional YAML file.
type source struct {
	file map[string]string
}

// Load reads the configuration. Values come from MARKSYNC_* environment
// variables; MARKSYNC_CONFIG_FILE may name a flat YAML file whose keys are
// the variable names without prefix in lower case (listen_port, redis_addr).
// Missing required values panic.
func Load() *Config {
	src := source{}
	if path := os.Getenv(envPrefix + "CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			panic(fmt.Sprintf("❌ FATAL: %v", err))
		}
		src.file = file
	}
	return src.load()
}

func (s source) load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      s.getenv("MARKSYNC_LISTEN_PORT", ":8080"),
		ShutdownTimeout: s.mustDuration("MARKSYNC_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  s.getenv("MARKSYNC_LOG_LEVEL", "info"),
		PrettyLog: s.mustBool("MARKSYNC_PRETTY_LOG", false),

		// Backend
		BackendDriver:          strings.ToLower(s.getenv("MARKSYNC_BACKEND", DriverRedis)),
		PostgresDSN:            s.getenv("MARKSYNC_POSTGRES_DSN", ""),
		PostgresConnectTimeout: s.mustDuration("MARKSYNC_POSTGRES_CONNECT_TIMEOUT", 30*time.Second),

		// Broadcast
		BroadcastDriver:  strings.ToLower(s.getenv("MARKSYNC_BROADCAST", DriverRedis)),
		BroadcastChannel: s.getenv("MARKSYNC_BROADCAST_CHANNEL", "smart-bookmarks"),

		// Sessions
		JWTSecret:      s.requireEnv("MARKSYNC_JWT_SECRET"),
		SessionTTL:     s.mustDuration("MARKSYNC_SESSION_TTL", 7*24*time.Hour),
		OAuthProviders: parseProviders(s.getenv("MARKSYNC_OAUTH_PROVIDERS", "")),
		SignedOutURL:   s.getenv("MARKSYNC_SIGNED_OUT_URL", "/"),
		SignedInURL:    s.getenv("MARKSYNC_SIGNED_IN_URL", "/dashboard"),

		// Mutations
		MutationTimeout: s.mustDuration("MARKSYNC_MUTATION_TIMEOUT", 10*time.Second),
		RateLimitBurst:  s.getenvInt("MARKSYNC_RATE_LIMIT_BURST", 20),
		RateLimitRefill: s.mustDuration("MARKSYNC_RATE_LIMIT_REFILL", 500*time.Millisecond),

		// Redis settings
		RedisAddr:             s.requireEnv("MARKSYNC_REDIS_ADDR"),
		RedisUser:             s.getenv("MARKSYNC_REDIS_USERNAME", ""),
		RedisPasswordRequired: s.mustBool("MARKSYNC_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         s.getenv("MARKSYNC_REDIS_PASSWORD", ""),
		RedisDB:               s.getenvInt("MARKSYNC_REDIS_DB", 0),
		RedisDT:               s.mustDuration("MARKSYNC_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               s.mustDuration("MARKSYNC_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               s.mustDuration("MARKSYNC_REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          s.mustDuration("MARKSYNC_REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      s.mustDuration("MARKSYNC_REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         s.getenvInt("MARKSYNC_REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   s.mustDuration("MARKSYNC_REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    s.mustDuration("MARKSYNC_REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    s.getenvInt("MARKSYNC_REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedOrigins: splitAndTrim(s.getenv("MARKSYNC_ALLOWED_ORIGINS", "")),
		AllowedCIDRS:   splitAndTrim(s.getenv("MARKSYNC_ALLOWED_CIDRS", "")),
		TrustProxy:     s.mustBool("MARKSYNC_TRUST_PROXY", false),
	}

	cfg.validate()

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		cfgCopy.JWTSecret = "***REDACTED***"
		if cfg.PostgresDSN != "" {
			cfgCopy.PostgresDSN = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

func (c *Config) validate() {
	switch c.BackendDriver {
	case DriverRedis:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			panic("❌ FATAL: MARKSYNC_POSTGRES_DSN is required when MARKSYNC_BACKEND=postgres")
		}
	default:
		panic(fmt.Sprintf("❌ FATAL: unknown MARKSYNC_BACKEND %q (want redis or postgres)", c.BackendDriver))
	}

	switch c.BroadcastDriver {
	case DriverRedis, DriverLocal:
	default:
		panic(fmt.Sprintf("❌ FATAL: unknown MARKSYNC_BROADCAST %q (want redis or local)", c.BroadcastDriver))
	}

	if len(c.JWTSecret) < 16 {
		panic("❌ FATAL: MARKSYNC_JWT_SECRET must be at least 16 bytes")
	}
	if c.RedisPasswordRequired && c.RedisPassword == "" {
		panic("❌ FATAL: MARKSYNC_REDIS_PASSWORD is required when MARKSYNC_REDIS_PASSWORD_REQUIRED=true")
	}
	if c.RateLimitBurst <= 0 || c.RateLimitRefill <= 0 {
		panic("❌ FATAL: MARKSYNC_RATE_LIMIT_BURST and MARKSYNC_RATE_LIMIT_REFILL must be positive")
	}
}

// ProviderNames returns the configured OAuth providers in stable order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.OAuthProviders))
	for name := range c.OAuthProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// readFile loads a flat YAML map. Scalars are kept in their textual form
// and sequences are joined with commas, matching the env var syntax.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToLower(strings.TrimSpace(k))
		switch val := v.(type) {
		case nil:
			continue
		case []interface{}:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			values[key] = strings.Join(parts, ",")
		case map[string]interface{}:
			pairs := make([]string, 0, len(val))
			for name, target := range val {
				pairs = append(pairs, name+"="+fmt.Sprint(target))
			}
			sort.Strings(pairs)
			values[key] = strings.Join(pairs, ",")
		default:
			values[key] = fmt.Sprint(val)
		}
	}
	return values, nil
}

// helpers
func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[strings.ToLower(strings.TrimPrefix(key, envPrefix))]
}

func (s source) getenv(key, def string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return def
}

func (s source) requireEnv(key string) string {
	v := s.lookup(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func (s source) getenvInt(key string, def int) int {
	if v := s.lookup(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (s source) mustBool(key string, def bool) bool {
	if v := s.lookup(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func (s source) mustDuration(key string, def time.Duration) time.Duration {
	if v := s.lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parseProviders reads "github=https://...,google=https://...".
func parseProviders(raw string) map[string]string {
	providers := make(map[string]string)
	for _, pair := range splitAndTrim(raw) {
		name, target, ok := strings.Cut(pair, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		target = strings.TrimSpace(target)
		if !ok || name == "" || target == "" {
			panic(fmt.Sprintf("❌ FATAL: invalid OAuth provider entry %q (want name=url)", pair))
		}
		providers[name] = target
	}
	return providers
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
