package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	// Target site
	StartURL string
	BaseURL  string

	// Run limits
	MaxPages              int
	MaxTicketsPerRun      int
	MaxConcurrentRequests int

	// Fetch behavior
	RequestDelay    time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
	PageLoadTimeout time.Duration

	// Proxies
	UseProxies    bool
	ProxyList     []string
	ProxyUsername string
	ProxyPassword string
	ProxyCooldown time.Duration

	// Debug HTML dumps
	SaveDebugHTML bool
	DebugDir      string

	// Test mode: read local mock files instead of the live site
	TestMode        bool
	MockListingFile string
	MockDetailFile  string

	// Storage
	DatabasePath string
	DumpDir      string

	// Run store (optional Redis persistence of run summaries)
	RedisAddr      string
	RedisDB        int
	RedisKeyPrefix string

	// Scheduling, 24h wall-clock "HH:MM"
	ScrapeTime string
	DumpTime   string

	// Observability
	MetricsAddr string
	LogLevel    string
	LogPretty   bool

	Environment string
}

// ValidationError describes a rejected configuration value
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Load reads configuration from the environment, applying defaults. A .env
// file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StartURL: getEnv("AUTORIA_START_URL", "https://auto.ria.com/uk/car/used/"),
		BaseURL:  getEnv("AUTORIA_BASE_URL", "https://auto.ria.com"),

		MaxPages:              getEnvInt("MAX_PAGES", 5),
		MaxTicketsPerRun:      getEnvInt("MAX_TICKETS_PER_RUN", 50),
		MaxConcurrentRequests: getEnvInt("MAX_CONCURRENT_REQUESTS", 3),

		RequestDelay:    getEnvDuration("REQUEST_DELAY", 2*time.Second),
		RetryAttempts:   getEnvInt("RETRY_ATTEMPTS", 3),
		RetryDelay:      getEnvDuration("RETRY_DELAY", 2*time.Second),
		PageLoadTimeout: getEnvDuration("PAGE_LOAD_TIMEOUT", 60*time.Second),

		UseProxies:    getEnvBool("USE_PROXIES", false),
		ProxyList:     splitList(getEnv("PROXY_LIST", "")),
		ProxyUsername: getEnv("PROXY_USERNAME", ""),
		ProxyPassword: getEnv("PROXY_PASSWORD", ""),
		ProxyCooldown: getEnvDuration("PROXY_COOLDOWN", 5*time.Minute),

		SaveDebugHTML: getEnvBool("SAVE_DEBUG_HTML", false),
		DebugDir:      getEnv("DEBUG_DIR", "debug"),

		TestMode:        getEnvBool("TEST_MODE", false),
		MockListingFile: getEnv("MOCK_LISTING_FILE", "mock_data/listing_page.html"),
		MockDetailFile:  getEnv("MOCK_DETAIL_FILE", "mock_data/car_page.html"),

		DatabasePath: getEnv("DATABASE_PATH", "data/autoria.db"),
		DumpDir:      getEnv("DUMP_DIR", "dumps"),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "autoria"),

		ScrapeTime: getEnv("SCRAPE_TIME", "12:00"),
		DumpTime:   getEnv("DUMP_TIME", "12:30"),

		MetricsAddr: getEnv("METRICS_ADDR", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvBool("LOG_PRETTY", true),

		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks limits and required fields.
func (c *Config) Validate() error {
	if c.MaxPages <= 0 {
		return &ValidationError{Field: "MAX_PAGES", Message: "must be positive"}
	}
	if c.MaxTicketsPerRun <= 0 {
		return &ValidationError{Field: "MAX_TICKETS_PER_RUN", Message: "must be positive"}
	}
	if c.MaxConcurrentRequests <= 0 {
		return &ValidationError{Field: "MAX_CONCURRENT_REQUESTS", Message: "must be positive"}
	}
	if c.RequestDelay < 0 {
		return &ValidationError{Field: "REQUEST_DELAY", Message: "must not be negative"}
	}
	if c.RetryAttempts < 1 {
		return &ValidationError{Field: "RETRY_ATTEMPTS", Message: "must be at least 1"}
	}
	if !c.TestMode && c.StartURL == "" {
		return &ValidationError{Field: "AUTORIA_START_URL", Message: "required unless TEST_MODE is set"}
	}
	if c.UseProxies && len(c.ProxyList) == 0 {
		return &ValidationError{Field: "PROXY_LIST", Message: "required when USE_PROXIES is set"}
	}
	if c.ProxyPassword != "" && c.ProxyUsername == "" {
		return &ValidationError{Field: "PROXY_USERNAME", Message: "required when PROXY_PASSWORD is set"}
	}
	if c.DatabasePath == "" {
		return &ValidationError{Field: "DATABASE_PATH", Message: "must not be empty"}
	}
	if _, err := ParseClock(c.ScrapeTime); err != nil {
		return &ValidationError{Field: "SCRAPE_TIME", Message: err.Error()}
	}
	if _, err := ParseClock(c.DumpTime); err != nil {
		return &ValidationError{Field: "DUMP_TIME", Message: err.Error()}
	}
	return nil
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(s string) (Clock, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvDuration accepts Go duration strings ("2s") and bare seconds ("2").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
