package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"bilancio/internal/currency"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Backend selection
	DataBackend  string
	SQLiteDBPath string

	// AMQP; an empty URL disables audit messaging
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Identity
	JWTSecret string
	JWTIssuer string

	// Ledger rules
	MaxRangeDays    int
	DefaultCurrency string

	// Audit worker
	AuditInterval    time.Duration
	AuditRepair      bool
	AuditConcurrency int

	// Google Sheets export; an empty spreadsheet id disables it
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Logging
	LogLevel  string
	LogFormat string
}

var (
	validBackends   = []string{"memory", "sqlite"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8081")
	v.SetDefault("rate_limit_per_minute", 120)
	v.SetDefault("data_backend", "sqlite")
	v.SetDefault("sqlite_db_path", "./data/bilancio.db")
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "bilancio")
	v.SetDefault("amqp_queue", "rollup_audit")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "")
	v.SetDefault("max_range_days", 1830)
	v.SetDefault("default_currency", currency.Default)
	v.SetDefault("audit_interval", time.Hour)
	v.SetDefault("audit_repair", false)
	v.SetDefault("audit_concurrency", 4)
	v.SetDefault("google_spreadsheet_id", "")
	v.SetDefault("google_sheet_name", "History")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads defaults, an optional config file named by BILANCIO_CONFIG, and
// environment variables (PORT, SQLITE_DB_PATH, ...), later sources winning.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("BILANCIO_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	v.AutomaticEnv()

	return &Config{
		Port:                v.GetString("port"),
		RateLimitPerMinute:  v.GetInt("rate_limit_per_minute"),
		DataBackend:         strings.ToLower(v.GetString("data_backend")),
		SQLiteDBPath:        v.GetString("sqlite_db_path"),
		AMQPURL:             v.GetString("amqp_url"),
		AMQPExchange:        v.GetString("amqp_exchange"),
		AMQPQueue:           v.GetString("amqp_queue"),
		JWTSecret:           v.GetString("jwt_secret"),
		JWTIssuer:           v.GetString("jwt_issuer"),
		MaxRangeDays:        v.GetInt("max_range_days"),
		DefaultCurrency:     strings.ToUpper(v.GetString("default_currency")),
		AuditInterval:       v.GetDuration("audit_interval"),
		AuditRepair:         v.GetBool("audit_repair"),
		AuditConcurrency:    v.GetInt("audit_concurrency"),
		GoogleSpreadsheetID: v.GetString("google_spreadsheet_id"),
		GoogleSheetName:     v.GetString("google_sheet_name"),
		LogLevel:            strings.ToLower(v.GetString("log_level")),
		LogFormat:           strings.ToLower(v.GetString("log_format")),
	}, nil
}

// MaxRangeSpan converts MaxRangeDays into a duration.
func (c *Config) MaxRangeSpan() time.Duration {
	return time.Duration(c.MaxRangeDays) * 24 * time.Hour
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.JWTSecret == "" {
		errors = append(errors, "JWT secret is required")
	} else if len(c.JWTSecret) < 16 {
		errors = append(errors, "JWT secret must be at least 16 characters")
	}

	if c.MaxRangeDays < 1 || c.MaxRangeDays > 36600 {
		errors = append(errors, fmt.Sprintf("invalid max range %d days: must be between 1 and 36600", c.MaxRangeDays))
	}

	if _, err := currency.Lookup(c.DefaultCurrency); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default currency '%s': %v", c.DefaultCurrency, err))
	}

	if c.AuditInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid audit interval %v: must be at least 1 second", c.AuditInterval))
	} else if c.AuditInterval > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid audit interval %v: must be at most 168 hours", c.AuditInterval))
	}

	if c.AuditConcurrency < 1 || c.AuditConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid audit concurrency %d: must be between 1 and 64", c.AuditConcurrency))
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}
