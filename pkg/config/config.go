package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the photo grabber
type Config struct {
	// Classroom portal credentials and account scope
	Portal PortalConfig `yaml:"portal" json:"portal"`

	// Geographic hint and keywords embedded into photo metadata
	Location LocationConfig `yaml:"location" json:"location"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Cache settings
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Scheduling settings for cron mode
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`

	// Telegram notification and bot settings
	Telegram TelegramConfig `yaml:"telegram" json:"telegram"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PortalConfig holds portal credentials and the account scope
type PortalConfig struct {
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"password"`
	SchoolID int    `yaml:"school_id" json:"school_id"`
	ChildID  int    `yaml:"child_id" json:"child_id"`
}

// LocationConfig holds the school location used as the GPS fallback
type LocationConfig struct {
	Lat      float64 `yaml:"lat" json:"lat"`
	Lng      float64 `yaml:"lng" json:"lng"`
	Keywords string  `yaml:"keywords" json:"keywords"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	Directory string `yaml:"directory" json:"directory"`
}

// CacheConfig holds cache directory configuration
type CacheConfig struct {
	Directory string `yaml:"directory" json:"directory"`
	// PageTTL is how long cached feed pages stay valid
	PageTTL time.Duration `yaml:"page_ttl" json:"page_ttl"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries          int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay          time.Duration `yaml:"retry_delay" json:"retry_delay"`
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	RequestsPerMinute   int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// ScheduleConfig holds cron mode configuration
type ScheduleConfig struct {
	// Spec is a simple named schedule: hourly, daily, weekly,
	// "every 6 hours", "every 30 minutes", "every day at 10:30"
	Spec string `yaml:"spec" json:"spec"`
	// CronExpression takes precedence over Spec when both are set
	CronExpression string `yaml:"cron_expression" json:"cron_expression"`
	// Timezone is an IANA zone name, e.g. America/Chicago
	Timezone string `yaml:"timezone" json:"timezone"`
	// RunOnStart performs one run immediately before waiting for triggers
	RunOnStart bool `yaml:"run_on_start" json:"run_on_start"`
}

// TelegramConfig holds notification channel settings
type TelegramConfig struct {
	BotToken        string `yaml:"bot_token" json:"bot_token"`
	ChatID          int64  `yaml:"chat_id" json:"chat_id"`
	MaxPhotosPerRun int    `yaml:"max_photos_per_run" json:"max_photos_per_run"`
}

// Enabled reports whether the notification channel is configured
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Directory: "./photos",
		},
		Cache: CacheConfig{
			Directory: "./cache",
			PageTTL:   4 * time.Hour,
		},
		Download: DownloadConfig{
			Timeout:             30 * time.Second,
			MaxRetries:          3,
			RetryDelay:          5 * time.Second,
			ConcurrentDownloads: 3,
			RequestsPerMinute:   60,
		},
		Schedule: ScheduleConfig{
			Spec:     "daily",
			Timezone: "Local",
		},
		Telegram: TelegramConfig{
			MaxPhotosPerRun: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if email := os.Getenv("TC_EMAIL"); email != "" {
		c.Portal.Email = email
	}
	if password := os.Getenv("TC_PASSWORD"); password != "" {
		c.Portal.Password = password
	}
	if school := os.Getenv("TC_SCHOOL"); school != "" {
		if val, err := strconv.Atoi(school); err == nil {
			c.Portal.SchoolID = val
		}
	}
	if child := os.Getenv("TC_CHILD"); child != "" {
		if val, err := strconv.Atoi(child); err == nil {
			c.Portal.ChildID = val
		}
	}

	if lat := os.Getenv("TC_SCHOOL_LAT"); lat != "" {
		if val, err := strconv.ParseFloat(lat, 64); err == nil {
			c.Location.Lat = val
		}
	}
	if lng := os.Getenv("TC_SCHOOL_LNG"); lng != "" {
		if val, err := strconv.ParseFloat(lng, 64); err == nil {
			c.Location.Lng = val
		}
	}
	if keywords := os.Getenv("TC_SCHOOL_KEYWORDS"); keywords != "" {
		c.Location.Keywords = keywords
	}

	if outputDir := os.Getenv("TC_OUTPUT_DIR"); outputDir != "" {
		c.Output.Directory = outputDir
	}
	if cacheDir := os.Getenv("TC_CACHE_DIR"); cacheDir != "" {
		c.Cache.Directory = cacheDir
	}

	if expr := os.Getenv("TC_CRON_EXPRESSION"); expr != "" {
		c.Schedule.CronExpression = expr
	}
	if spec := os.Getenv("TC_SCHEDULE"); spec != "" {
		c.Schedule.Spec = spec
	}
	if tz := os.Getenv("TC_TIMEZONE"); tz != "" {
		c.Schedule.Timezone = tz
	}

	if token := os.Getenv("TC_TELEGRAM_BOT_TOKEN"); token != "" {
		c.Telegram.BotToken = token
	}
	if chat := os.Getenv("TC_TELEGRAM_CHAT_ID"); chat != "" {
		if val, err := strconv.ParseInt(chat, 10, 64); err == nil {
			c.Telegram.ChatID = val
		}
	}

	if logLevel := os.Getenv("TC_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".tcgrabber.yaml",
		".tcgrabber.yml",
		filepath.Join(xdg.ConfigHome, "tcgrabber", "config.yaml"),
		filepath.Join(xdg.ConfigHome, "tcgrabber", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Portal.Email == "" {
		errs = append(errs, errors.New("portal email is required"))
	}
	if c.Portal.Password == "" {
		errs = append(errs, errors.New("portal password is required"))
	}
	if c.Portal.SchoolID <= 0 {
		errs = append(errs, errors.New("school id must be positive"))
	}
	if c.Portal.ChildID <= 0 {
		errs = append(errs, errors.New("child id must be positive"))
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Cache.Directory == "" {
		errs = append(errs, errors.New("cache directory is required"))
	}

	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 10 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 10"))
	}

	if c.Schedule.Timezone != "" && c.Schedule.Timezone != "Local" {
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("invalid timezone %q", c.Schedule.Timezone))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Location returns the time.Location for the configured timezone
func (c *ScheduleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Redacted returns a copy with secrets masked, for display
func (c *Config) Redacted() *Config {
	out := *c
	if out.Portal.Password != "" {
		out.Portal.Password = "********"
	}
	if out.Telegram.BotToken != "" {
		out.Telegram.BotToken = "********"
	}
	return &out
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Environment variables > .env file > Config file > Defaults
func Load(configPath string) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".tcgrabber.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return config, nil
}
