package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/maltedev/glamify-scraper/internal/affiliate"
)

type Config struct {
	Server    ServerConfig
	Crawler   CrawlerConfig
	Browser   BrowserConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Feed      FeedConfig
	Logging   LoggingConfig
	Affiliate affiliate.Table
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	RequestsPerSec  float64
	Burst           int
}

type CrawlerConfig struct {
	StartURLs     []string
	Platform      string
	UserAgent     string
	DownloadDelay time.Duration
	RandomDelay   bool
	ObeyRobots    bool
	MaxPages      int
	Workers       int
	Timeout       time.Duration
	UseBrowser    bool
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	Locale         string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
}

type RedisConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	PollInterval time.Duration
	BatchSize    int
	Stream       string
	Group         string
	Consumer      string
	MinIdle       time.Duration
	MaxDeliveries int
}

type FeedConfig struct {
	Path   string
	Format string
}

type LoggingConfig struct {
	Level  string
	Format string
}

const DefaultUserAgent = "GlamifyAI/1.0 (+https://your-domain.com/bot)"

// Load reads configuration from the environment. Values from a .env file in
// the working directory are applied first when the file exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("PORT", 8084),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
			RequestsPerSec:  getFloatOrDefault("SERVER_RATE_LIMIT", 5),
			Burst:           getIntOrDefault("SERVER_RATE_BURST", 10),
		},
		Crawler: CrawlerConfig{
			StartURLs:     getStringSliceOrDefault("CRAWLER_START_URLS", []string{"https://example-beauty-site.com/products"}),
			Platform:      getEnvOrDefault("CRAWLER_PLATFORM", affiliate.PlatformSephora),
			UserAgent:     getEnvOrDefault("CRAWLER_USER_AGENT", DefaultUserAgent),
			DownloadDelay: getDurationOrDefault("CRAWLER_DOWNLOAD_DELAY", 1*time.Second),
			RandomDelay:   getBoolOrDefault("CRAWLER_RANDOMIZE_DELAY", true),
			ObeyRobots:    getBoolOrDefault("CRAWLER_OBEY_ROBOTS", true),
			MaxPages:      getIntOrDefault("CRAWLER_MAX_PAGES", 50),
			Workers:       getIntOrDefault("CRAWLER_WORKERS", 1),
			Timeout:       getDurationOrDefault("CRAWLER_TIMEOUT", 30*time.Second),
			UseBrowser:    getBoolOrDefault("CRAWLER_USE_BROWSER", false),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-AE"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "glamify"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Enabled:       getBoolOrDefault("REDIS_ENABLED", false),
			Addr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:      getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:            getIntOrDefault("REDIS_DB", 0),
			PollInterval:  getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:     getIntOrDefault("RELAY_BATCH_SIZE", 100),
			Stream:        getEnvOrDefault("REDIS_STREAM", "stream:affiliate_products"),
			Group:         getEnvOrDefault("REDIS_CONSUMER_GROUP", "availability-checker"),
			Consumer:      getEnvOrDefault("REDIS_CONSUMER_NAME", hostnameOrDefault("checker-1")),
			MinIdle:       getDurationOrDefault("REDIS_CLAIM_MIN_IDLE", 30*time.Second),
			MaxDeliveries: getIntOrDefault("REDIS_MAX_DELIVERIES", 5),
		},
		Feed: FeedConfig{
			Path:   getEnvOrDefault("FEED_PATH", "products.json"),
			Format: getEnvOrDefault("FEED_FORMAT", "json"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		Affiliate: AffiliateTableFromEnv(affiliate.DefaultTable()),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.RequestsPerSec <= 0 {
		return fmt.Errorf("SERVER_RATE_LIMIT must be positive")
	}

	if c.Server.Burst < 1 {
		return fmt.Errorf("SERVER_RATE_BURST must be at least 1")
	}

	if c.Crawler.MaxPages < 1 {
		return fmt.Errorf("CRAWLER_MAX_PAGES must be at least 1")
	}

	if c.Crawler.Workers < 1 {
		return fmt.Errorf("CRAWLER_WORKERS must be at least 1")
	}

	if c.Crawler.DownloadDelay < 0 {
		return fmt.Errorf("CRAWLER_DOWNLOAD_DELAY cannot be negative")
	}

	switch c.Feed.Format {
	case "json", "jsonl":
	default:
		return fmt.Errorf("unsupported FEED_FORMAT %q", c.Feed.Format)
	}

	if c.Database.Enabled && c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Redis.Enabled && !c.Database.Enabled {
		return fmt.Errorf("REDIS_ENABLED requires DB_ENABLED for the outbox relay")
	}

	if c.Redis.MaxDeliveries < 1 {
		return fmt.Errorf("REDIS_MAX_DELIVERIES must be at least 1")
	}

	return nil
}

// AffiliateTableFromEnv overrides ids in base with AFFILIATE_<PLATFORM>_ID
// variables. AFFILIATE_PLATFORMS adds platforms that are not in base.
func AffiliateTableFromEnv(base affiliate.Table) affiliate.Table {
	table := make(affiliate.Table, len(base))
	for platform, id := range base {
		table[platform] = id
	}

	for _, platform := range getStringSliceOrDefault("AFFILIATE_PLATFORMS", nil) {
		platform = strings.ToLower(strings.TrimSpace(platform))
		if platform != "" {
			if _, ok := table[platform]; !ok {
				table[platform] = ""
			}
		}
	}

	for platform := range table {
		key := "AFFILIATE_" + strings.ToUpper(platform) + "_ID"
		table[platform] = getEnvOrDefault(key, table[platform])
	}

	for platform, id := range table {
		if id == "" {
			delete(table, platform)
		}
	}

	return table
}

// Logger builds the process logger from the logging section.
func (c LoggingConfig) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func hostnameOrDefault(defaultValue string) string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return defaultValue
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
