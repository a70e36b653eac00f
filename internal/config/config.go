package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"http"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Database struct {
		Driver     string `mapstructure:"driver"`
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"database"`
	Postgres struct {
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		DB       string `mapstructure:"db"`
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"postgres"`
	Auth struct {
		Header         string `mapstructure:"header"`
		TouchQueueSize int    `mapstructure:"touch_queue_size"`
	} `mapstructure:"auth"`
	Accounts struct {
		AllowBatchCreate bool `mapstructure:"allow_batch_create"`
		// CleanupSchedule is a six-field cron expression; empty disables the job.
		CleanupSchedule string `mapstructure:"inactive_cleanup_schedule"`
		InactiveDays    int    `mapstructure:"inactive_days"`
	} `mapstructure:"accounts"`
	Reports struct {
		PrecipitationWindowMonths int `mapstructure:"precipitation_window_months"`
	} `mapstructure:"reports"`
	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`
	RateLimit struct {
		Enabled bool `mapstructure:"enabled"`
		RPS     int  `mapstructure:"rps"`
		Burst   int  `mapstructure:"burst"`
	} `mapstructure:"ratelimit"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	OTel struct {
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"otel"`
	// Routes overrides the role ceiling of named endpoints, e.g.
	// routes.delete_readings: Teacher.
	Routes map[string]string `mapstructure:"routes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sqlite_path", "readings.db")
	v.SetDefault("postgres.user", "readings")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.db", "readings")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("auth.header", "ApiKey")
	v.SetDefault("auth.touch_queue_size", 256)
	v.SetDefault("accounts.allow_batch_create", false)
	v.SetDefault("accounts.inactive_cleanup_schedule", "")
	v.SetDefault("accounts.inactive_days", 30)
	v.SetDefault("reports.precipitation_window_months", 5)
	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.rps", 20)
	v.SetDefault("ratelimit.burst", 40)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("routes", map[string]string{})
}

// Load reads defaults, then the optional YAML file at path, then the
// environment (HTTP_PORT, DATABASE_DRIVER, POSTGRES_HOST, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	switch c.Log.Format {
	case "text", "json", "pretty":
	default:
		return fmt.Errorf("log.format must be text, json or pretty, got %q", c.Log.Format)
	}
	if c.Reports.PrecipitationWindowMonths <= 0 {
		return fmt.Errorf("reports.precipitation_window_months must be positive")
	}
	if c.Accounts.InactiveDays < 0 {
		return fmt.Errorf("accounts.inactive_days must not be negative")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("ratelimit.rps and ratelimit.burst must be positive when enabled")
	}
	return nil
}
