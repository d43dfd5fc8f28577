// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/weblinq/gateway/internal/security"
)

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxBrowserPoolSize  = 20
	maxMaxSessions      = 10000
	maxMaxMemoryMB      = 16384
	maxTimeout          = 10 * time.Minute
	maxRateLimitRPM     = 10000
	minAPIKeyLength     = 16
	maxSearchResults    = 10
	minSearchResults    = 1
	defaultSearchResult = 5
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Server settings
	Host string
	Port int

	// Browser settings
	Headless    bool
	BrowserPath string

	// Pool settings - CRITICAL for memory efficiency
	BrowserPoolSize    int
	BrowserPoolTimeout time.Duration
	MaxMemoryMB        int

	// Session settings
	SessionTTL             time.Duration
	SessionCleanupInterval time.Duration
	MaxSessionsPerUser     int
	MaxSessionsTotal       int

	// Timeouts
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration

	// Proxy defaults
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string

	// Logging
	LogLevel string
	LogHTML  bool

	// Profiling
	PProfEnabled  bool
	PProfPort     int
	PProfBindAddr string

	// Security
	RateLimitEnabled   bool
	RateLimitRPM       int
	TrustProxy         bool
	IgnoreCertErrors   bool
	CORSAllowedOrigins []string
	AllowLocalProxies  bool

	// Bearer-token authentication. Each request is tied to a UserID
	// resolved from the bearer token (see internal/middleware.BearerAuth).
	AuthEnabled bool

	// Credits
	CreditsPerUserStart int
	CreditCostDefault   int

	// Search aggregator
	SearchMaxResults     int
	SearchDefaultResults int
	SearchRateLimitRPM   int
	SearchDDGMinGap      time.Duration

	// Per-user SQLite store (UserActor)
	UserDBDir string

	// ArtifactStore (S3-compatible object storage)
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3PublicURL string // base URL used to build public artifact links

	// JSON-extraction runner (Anthropic chat completion)
	AnthropicAPIKey string
	AnthropicModel  string

	// Selectors settings (SearchAggregator per-engine CSS selectors)
	SelectorsPath      string
	SelectorsHotReload bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", 8080),

		Headless:    getEnvBool("HEADLESS", true),
		BrowserPath: getEnvString("BROWSER_PATH", ""),

		BrowserPoolSize:    getEnvInt("BROWSER_POOL_SIZE", 3),
		BrowserPoolTimeout: getEnvDuration("BROWSER_POOL_TIMEOUT", 30*time.Second),
		MaxMemoryMB:        getEnvInt("MAX_MEMORY_MB", 2048),

		SessionTTL:             getEnvDuration("SESSION_TTL", 30*time.Minute),
		SessionCleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", 1*time.Minute),
		MaxSessionsPerUser:     getEnvInt("MAX_SESSIONS_PER_USER", 5),
		MaxSessionsTotal:       getEnvInt("MAX_SESSIONS_TOTAL", 100),

		DefaultTimeout: getEnvDuration("DEFAULT_TIMEOUT", 60*time.Second),
		MaxTimeout:     getEnvDuration("MAX_TIMEOUT", 300*time.Second),

		ProxyURL:      getEnvString("PROXY_URL", ""),
		ProxyUsername: getEnvString("PROXY_USERNAME", ""),
		ProxyPassword: getEnvString("PROXY_PASSWORD", ""),

		LogLevel: getEnvString("LOG_LEVEL", "info"),
		LogHTML:  getEnvBool("LOG_HTML", false),

		PProfEnabled:  getEnvBool("PPROF_ENABLED", false),
		PProfPort:     getEnvInt("PPROF_PORT", 6060),
		PProfBindAddr: getEnvString("PPROF_BIND_ADDR", "127.0.0.1"),

		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", 120),
		TrustProxy:         getEnvBool("TRUST_PROXY", false),
		IgnoreCertErrors:   getEnvBool("IGNORE_CERT_ERRORS", false),
		CORSAllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),
		AllowLocalProxies:  getEnvBool("ALLOW_LOCAL_PROXIES", false),

		AuthEnabled: getEnvBool("AUTH_ENABLED", true),

		CreditsPerUserStart: getEnvInt("CREDITS_PER_USER_START", 1000),
		CreditCostDefault:   getEnvInt("CREDIT_COST_DEFAULT", 1),

		SearchMaxResults:     getEnvInt("SEARCH_MAX_RESULTS", defaultSearchResult*2),
		SearchDefaultResults: getEnvInt("SEARCH_DEFAULT_RESULTS", defaultSearchResult),
		SearchRateLimitRPM:   getEnvInt("SEARCH_RATE_LIMIT_RPM", 20),
		SearchDDGMinGap:      getEnvDuration("SEARCH_DDG_MIN_GAP", 2*time.Second),

		UserDBDir: getEnvString("USER_DB_DIR", "./data/users"),

		S3Endpoint:  getEnvString("S3_ENDPOINT", ""),
		S3Bucket:    getEnvString("S3_BUCKET", "weblinq-artifacts"),
		S3AccessKey: getEnvString("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnvString("S3_SECRET_KEY", ""),
		S3UseSSL:    getEnvBool("S3_USE_SSL", true),
		S3PublicURL: getEnvString("S3_PUBLIC_URL", ""),

		AnthropicAPIKey: getEnvString("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnvString("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),

		SelectorsPath:      getEnvString("SELECTORS_PATH", ""),
		SelectorsHotReload: getEnvBool("SELECTORS_HOT_RELOAD", false),
	}
}

// HasDefaultProxy returns true if a default proxy is configured.
func (c *Config) HasDefaultProxy() bool {
	return c.ProxyURL != ""
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults rather than failing startup.
func (c *Config) Validate() {
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 8080")
		c.Port = 8080
	}

	if c.BrowserPath != "" {
		if strings.Contains(c.BrowserPath, "..") {
			log.Error().Str("path", c.BrowserPath).Msg("BrowserPath contains path traversal sequence (..), ignoring")
			c.BrowserPath = ""
		} else if !strings.HasPrefix(c.BrowserPath, "/") && !strings.HasPrefix(c.BrowserPath, "C:") && !strings.HasPrefix(c.BrowserPath, "c:") {
			log.Warn().Str("path", c.BrowserPath).Msg("BrowserPath should be an absolute path")
		}
	}

	if c.BrowserPoolSize < 1 {
		log.Warn().Int("size", c.BrowserPoolSize).Msg("Invalid pool size, using default 3")
		c.BrowserPoolSize = 3
	} else if c.BrowserPoolSize > maxBrowserPoolSize {
		log.Warn().Int("size", c.BrowserPoolSize).Int("max", maxBrowserPoolSize).Msg("Pool size too large, capping to maximum")
		c.BrowserPoolSize = maxBrowserPoolSize
	}

	if c.MaxMemoryMB < 256 {
		log.Warn().Int("mb", c.MaxMemoryMB).Msg("Memory limit too low, using default 2048")
		c.MaxMemoryMB = 2048
	} else if c.MaxMemoryMB > maxMaxMemoryMB {
		log.Warn().Int("mb", c.MaxMemoryMB).Int("max", maxMaxMemoryMB).Msg("Memory limit too high, capping to maximum")
		c.MaxMemoryMB = maxMaxMemoryMB
	}

	if c.MaxTimeout < time.Second {
		log.Warn().Dur("timeout", c.MaxTimeout).Msg("Max timeout too short, using 300s")
		c.MaxTimeout = 300 * time.Second
	}
	if c.MaxTimeout > maxTimeout {
		log.Warn().Dur("timeout", c.MaxTimeout).Dur("max", maxTimeout).Msg("Max timeout too high, capping to maximum")
		c.MaxTimeout = maxTimeout
	}
	if c.DefaultTimeout < time.Second {
		log.Warn().Dur("timeout", c.DefaultTimeout).Msg("Default timeout too short, using 60s")
		c.DefaultTimeout = 60 * time.Second
	}
	if c.DefaultTimeout > c.MaxTimeout {
		log.Warn().Dur("default", c.DefaultTimeout).Dur("max", c.MaxTimeout).Msg("Default timeout exceeds max timeout, adjusting to max")
		c.DefaultTimeout = c.MaxTimeout
	}

	if c.MaxSessionsTotal < 1 {
		log.Warn().Int("max", c.MaxSessionsTotal).Msg("Invalid max sessions, using 100")
		c.MaxSessionsTotal = 100
	} else if c.MaxSessionsTotal > maxMaxSessions {
		log.Warn().Int("sessions", c.MaxSessionsTotal).Int("max", maxMaxSessions).Msg("Max sessions too high, capping to maximum")
		c.MaxSessionsTotal = maxMaxSessions
	}
	if c.MaxSessionsPerUser < 1 {
		log.Warn().Int("max", c.MaxSessionsPerUser).Msg("Invalid max sessions per user, using 5")
		c.MaxSessionsPerUser = 5
	} else if c.MaxSessionsPerUser > c.MaxSessionsTotal {
		log.Warn().Int("per_user", c.MaxSessionsPerUser).Int("total", c.MaxSessionsTotal).Msg("MaxSessionsPerUser exceeds MaxSessionsTotal, capping")
		c.MaxSessionsPerUser = c.MaxSessionsTotal
	}

	const minSessionTTL = 1 * time.Minute
	const maxSessionTTL = 24 * time.Hour
	if c.SessionTTL < minSessionTTL {
		log.Warn().Dur("ttl", c.SessionTTL).Dur("min", minSessionTTL).Msg("Session TTL too short, using minimum")
		c.SessionTTL = minSessionTTL
	} else if c.SessionTTL > maxSessionTTL {
		log.Warn().Dur("ttl", c.SessionTTL).Dur("max", maxSessionTTL).Msg("Session TTL too long, using maximum")
		c.SessionTTL = maxSessionTTL
	}

	const minCleanupInterval = 10 * time.Second
	const maxCleanupInterval = 1 * time.Hour
	if c.SessionCleanupInterval < minCleanupInterval {
		log.Warn().Dur("interval", c.SessionCleanupInterval).Dur("min", minCleanupInterval).Msg("Session cleanup interval too short, using minimum")
		c.SessionCleanupInterval = minCleanupInterval
	} else if c.SessionCleanupInterval > maxCleanupInterval {
		log.Warn().Dur("interval", c.SessionCleanupInterval).Dur("max", maxCleanupInterval).Msg("Session cleanup interval too long, using maximum")
		c.SessionCleanupInterval = maxCleanupInterval
	}

	if c.SessionCleanupInterval >= c.SessionTTL {
		log.Warn().Dur("cleanup_interval", c.SessionCleanupInterval).Dur("ttl", c.SessionTTL).
			Msg("SESSION_CLEANUP_INTERVAL should be less than SESSION_TTL for timely cleanup")
	}

	const minPoolTimeout = 1 * time.Second
	const maxPoolTimeout = 5 * time.Minute
	if c.BrowserPoolTimeout < minPoolTimeout {
		log.Warn().Dur("timeout", c.BrowserPoolTimeout).Dur("min", minPoolTimeout).Msg("Browser pool timeout too short, using minimum")
		c.BrowserPoolTimeout = minPoolTimeout
	} else if c.BrowserPoolTimeout > maxPoolTimeout {
		log.Warn().Dur("timeout", c.BrowserPoolTimeout).Dur("max", maxPoolTimeout).Msg("Browser pool timeout too long, using maximum")
		c.BrowserPoolTimeout = maxPoolTimeout
	}

	if c.RateLimitEnabled {
		if c.RateLimitRPM < 1 {
			log.Warn().Int("rpm", c.RateLimitRPM).Msg("Invalid rate limit, using 120 RPM")
			c.RateLimitRPM = 120
		} else if c.RateLimitRPM > maxRateLimitRPM {
			log.Warn().Int("rpm", c.RateLimitRPM).Int("max", maxRateLimitRPM).Msg("Rate limit too high, capping to maximum")
			c.RateLimitRPM = maxRateLimitRPM
		}
	}

	validLogLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	if c.PProfEnabled && c.PProfBindAddr != "127.0.0.1" && c.PProfBindAddr != "localhost" {
		log.Warn().Str("addr", c.PProfBindAddr).Msg("WARNING: pprof exposed on non-localhost address - this is a security risk")
	}

	if len(c.CORSAllowedOrigins) == 0 {
		log.Warn().Msg("CORS_ALLOWED_ORIGINS not set - cross-origin requests will be rejected")
	}

	if c.IgnoreCertErrors {
		if c.ProxyURL == "" {
			log.Warn().Msg("WARNING: IGNORE_CERT_ERRORS enabled without a proxy - this exposes you to MITM attacks")
		} else {
			log.Info().Msg("IGNORE_CERT_ERRORS enabled for proxy compatibility")
		}
	}

	if c.ProxyURL != "" {
		if err := security.ValidateProxyURL(c.ProxyURL, c.AllowLocalProxies); err != nil {
			log.Error().Str("proxy_url", security.RedactProxyURL(c.ProxyURL)).Err(err).Msg("PROXY_URL failed validation")
		}
		if strings.Contains(c.ProxyURL, "@") {
			log.Warn().Msg("ProxyURL contains embedded credentials (@) - use PROXY_USERNAME and PROXY_PASSWORD instead")
		}
	}

	if c.ProxyUsername != "" && c.ProxyPassword == "" {
		log.Warn().Msg("PROXY_USERNAME set but PROXY_PASSWORD is empty - authentication may fail")
	}
	if c.ProxyPassword != "" && c.ProxyUsername == "" {
		log.Warn().Msg("PROXY_PASSWORD set but PROXY_USERNAME is empty - authentication may fail")
	}

	// Credits and search bounds (spec.md §9 Open Question 2: v2 contract is
	// [1,10] default 5, no legacy [1,50] default 10 path is exposed).
	if c.SearchDefaultResults < minSearchResults || c.SearchDefaultResults > maxSearchResults {
		log.Warn().Int("default", c.SearchDefaultResults).Msg("SEARCH_DEFAULT_RESULTS out of [1,10], using 5")
		c.SearchDefaultResults = defaultSearchResult
	}
	if c.SearchMaxResults < minSearchResults || c.SearchMaxResults > maxSearchResults {
		log.Warn().Int("max", c.SearchMaxResults).Msg("SEARCH_MAX_RESULTS out of [1,10], using 10")
		c.SearchMaxResults = maxSearchResults
	}
	if c.SearchDDGMinGap < time.Second {
		log.Warn().Dur("gap", c.SearchDDGMinGap).Msg("SEARCH_DDG_MIN_GAP too short, using 2s")
		c.SearchDDGMinGap = 2 * time.Second
	}

	if c.CreditsPerUserStart < 0 {
		log.Warn().Int("credits", c.CreditsPerUserStart).Msg("CREDITS_PER_USER_START negative, using 0")
		c.CreditsPerUserStart = 0
	}
	if c.CreditCostDefault < 1 {
		log.Warn().Int("cost", c.CreditCostDefault).Msg("CREDIT_COST_DEFAULT must be positive, using 1")
		c.CreditCostDefault = 1
	}

	if c.AuthEnabled == false {
		log.Warn().Msg("AUTH_ENABLED is false - every request will be treated as an anonymous user, for local development only")
	}

	if c.S3Endpoint == "" {
		log.Warn().Msg("S3_ENDPOINT not set - ArtifactStore writes (screenshot/pdf) will fail")
	}

	if c.AnthropicAPIKey == "" {
		log.Warn().Msg("ANTHROPIC_API_KEY not set - the json-extraction operation will fail")
	}

	if c.SelectorsPath != "" {
		if strings.Contains(c.SelectorsPath, "..") {
			log.Error().Str("path", c.SelectorsPath).Msg("SelectorsPath contains path traversal sequence (..), ignoring")
			c.SelectorsPath = ""
		} else if !strings.HasPrefix(c.SelectorsPath, "/") && !strings.HasPrefix(c.SelectorsPath, "C:") && !strings.HasPrefix(c.SelectorsPath, "c:") {
			log.Warn().Str("path", c.SelectorsPath).Msg("SelectorsPath should be an absolute path")
		}
		if c.SelectorsHotReload {
			if _, err := os.Stat(c.SelectorsPath); os.IsNotExist(err) {
				log.Warn().Str("path", c.SelectorsPath).Msg("SelectorsPath does not exist - hot-reload will watch for file creation")
			}
		}
	}
	if c.SelectorsHotReload && c.SelectorsPath == "" {
		log.Warn().Msg("SELECTORS_HOT_RELOAD enabled but SELECTORS_PATH not set - hot-reload disabled")
		c.SelectorsHotReload = false
	}

	// Port conflict validation
	usedPorts := make(map[int]string)
	if c.Port > 0 {
		usedPorts[c.Port] = "PORT"
	}
	if c.PProfEnabled {
		if existingName, exists := usedPorts[c.PProfPort]; exists {
			log.Error().Int("port", c.PProfPort).Str("conflicts_with", existingName).Msg("PPROF_PORT conflicts with another port, adjusting")
			c.PProfPort = 6060
			for usedPorts[c.PProfPort] != "" {
				c.PProfPort++
				if c.PProfPort > 65535 {
					log.Warn().Msg("Could not find available pprof port, disabling")
					c.PProfEnabled = false
					break
				}
			}
		}
	}
}

// Helper functions for environment variable parsing.

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			if intValue < -2147483648 || intValue > 2147483647 {
				log.Warn().Str("key", key).Str("value", value).Int("default", defaultValue).
					Msg("Integer value out of range in environment variable, using default")
				return defaultValue
			}
			return int(intValue)
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().Str("key", key).Str("value", value).Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
