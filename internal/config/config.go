package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/voreskerne/frivillig/pkg/core/series"
)

const envPrefix = "FRIVILLIG"

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string        `yaml:"addr"            envconfig:"ADDR"             validate:"required"`
	JWTSecret       string        `yaml:"jwtSecret"       envconfig:"JWT_SECRET"       validate:"required,min=16"`
	TokenTTL        time.Duration `yaml:"tokenTTL"        envconfig:"TOKEN_TTL"        validate:"gt=0"`
	CookieSecure    bool          `yaml:"cookieSecure"    envconfig:"COOKIE_SECURE"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	NotifyQueue     int           `yaml:"notifyQueue"     envconfig:"NOTIFY_QUEUE"     validate:"min=0"`
}

// DatabaseConfig selects and locates the store
type DatabaseConfig struct {
	Driver     string `yaml:"driver"     envconfig:"DRIVER"      validate:"oneof=postgres sqlite"`
	URL        string `yaml:"url"        envconfig:"URL"         validate:"required_if=Driver postgres"`
	SQLitePath string `yaml:"sqlitePath" envconfig:"SQLITE_PATH"`
}

// RedisConfig locates the token revocation store. An empty Addr keeps revocations in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"     envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db"       envconfig:"DB" validate:"min=0"`
}

// TemplateOverride replaces the subject and/or body of a built-in email template
type TemplateOverride struct {
	Subject string `yaml:"subject,omitempty"`
	Body    string `yaml:"body,omitempty"`
}

// MailConfig holds outgoing email settings
type MailConfig struct {
	Enabled     bool                        `yaml:"enabled"     envconfig:"ENABLED"`
	GmailUserID string                      `yaml:"gmailUserID" envconfig:"GMAIL_USER_ID" validate:"required_if=Enabled true"`
	Sender      string                      `yaml:"sender"      envconfig:"SENDER"`
	SiteName    string                      `yaml:"siteName"    envconfig:"SITE_NAME"`
	Templates   map[string]TemplateOverride `yaml:"templates,omitempty" ignored:"true"`
}

// PointsConfig controls point awards and the range admins may attach to a task
type PointsConfig struct {
	Enabled *bool `yaml:"enabled" envconfig:"ENABLED"`
	Min     int   `yaml:"min"     envconfig:"MIN" validate:"min=0"`
	Max     int   `yaml:"max"     envconfig:"MAX" validate:"gtefield=Min"`
}

// AwardEnabled reports whether completing a task credits points. Defaults to true.
func (p PointsConfig) AwardEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// RecurringShift is a shift template repeated on an RRULE schedule by seedShifts
type RecurringShift struct {
	RRule     string   `yaml:"rrule"     validate:"required"`
	Count     int      `yaml:"count"     validate:"omitempty,min=1,max=366"`
	Title     string   `yaml:"title,omitempty"`
	StartTime string   `yaml:"startTime,omitempty"`
	EndTime   string   `yaml:"endTime,omitempty"`
	Roles     []string `yaml:"roles" validate:"required,min=1,dive,required"`
}

// LoggingConfig controls the log sinks
type LoggingConfig struct {
	FileEnabled *bool `yaml:"fileEnabled" envconfig:"FILE_ENABLED"`
}

// FileSink reports whether logs are also written under logs/. Defaults to true.
func (l LoggingConfig) FileSink() bool {
	return l.FileEnabled == nil || *l.FileEnabled
}

// Config represents the application configuration
type Config struct {
	Server          ServerConfig     `yaml:"server"   envconfig:"SERVER"`
	Database        DatabaseConfig   `yaml:"database" envconfig:"DATABASE"`
	Redis           RedisConfig      `yaml:"redis"    envconfig:"REDIS"`
	Mail            MailConfig       `yaml:"mail"     envconfig:"MAIL"`
	Points          PointsConfig     `yaml:"points"   envconfig:"POINTS"`
	Logging         LoggingConfig    `yaml:"logging"  envconfig:"LOGGING"`
	RecurringShifts []RecurringShift `yaml:"recurringShifts,omitempty" ignored:"true" validate:"dive"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from frivillig_config.<env>.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func Load(env string) (*Config, error) {
	configPath, err := findConfigFile(env)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads the configuration from a specific path, applies .env and
// FRIVILLIG_* environment overrides, fills defaults and validates the result
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// A missing .env is normal outside local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.TokenTTL == 0 {
		cfg.Server.TokenTTL = 24 * time.Hour
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.NotifyQueue == 0 {
		cfg.Server.NotifyQueue = 256
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Points.Min == 0 && cfg.Points.Max == 0 {
		cfg.Points.Min = 1
		cfg.Points.Max = 1000
	}
	if cfg.Mail.SiteName == "" {
		cfg.Mail.SiteName = "Frivillig"
	}
}

// Validate validates the configuration struct and expands each recurring
// shift rule once so seedShifts cannot fail on it later
func Validate(cfg *Config) error {
	// Run struct validation
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	for i, shift := range cfg.RecurringShifts {
		if _, err := series.Expand(shift.RRule, today, shift.Count); err != nil {
			return fmt.Errorf("invalid rrule in recurringShifts[%d]: %w", i, err)
		}
	}

	return nil
}

// findConfigFile searches for frivillig_config.<env>.yaml in current directory and home directory
func findConfigFile(env string) (string, error) {
	configFileName := "frivillig_config.yaml"
	if env != "" {
		configFileName = "frivillig_config." + env + ".yaml"
	}

	// Check current directory
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file %s not found in current directory or home directory", configFileName)
}
