// Package config loads bolsaingest settings from defaults, an optional
// config.yaml, a .env file and BOLSA_* environment variables, in that order
// of increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	DB     DBConfig     `mapstructure:"db"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	Ingest IngestConfig `mapstructure:"ingest"`
	Log    LogConfig    `mapstructure:"log"`
}

// DBConfig selects the gorm dialector and its connection pool.
type DBConfig struct {
	Driver          string        `mapstructure:"driver"` // "postgres", "mysql", "sqlite"
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// IngestConfig holds the polling job settings.
type IngestConfig struct {
	URL           string            `mapstructure:"url"`
	Interval      time.Duration     `mapstructure:"interval"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	RetentionDays int               `mapstructure:"retention_days"`
	MarketOpen    string            `mapstructure:"market_open"`  // HH:MM, Caracas time
	MarketClose   string            `mapstructure:"market_close"` // HH:MM, Caracas time
	RunOnStart    bool              `mapstructure:"run_on_start"`
	Names         map[string]string `mapstructure:"names"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"` // "debug", "info", "warn", "error"
	File  string `mapstructure:"file"`  // empty disables file output
}

const envPrefix = "BOLSA"

// Load reads configuration. configFile may be empty, in which case
// ./config.yaml and ./config/config.yaml are tried and silently skipped
// when missing.
func Load(configFile string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "host=localhost port=5432 user=postgres password=password dbname=bolsa sslmode=disable")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 25)
	v.SetDefault("db.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("db.connect_timeout", 2*time.Minute)

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("ingest.url", "https://www.bolsadecaracas.com/wp-admin/admin-ajax.php?action=resumenMercadoRentaVariable")
	v.SetDefault("ingest.interval", time.Minute)
	v.SetDefault("ingest.timeout", 15*time.Second)
	v.SetDefault("ingest.retention_days", 30)
	v.SetDefault("ingest.market_open", "09:00")
	v.SetDefault("ingest.market_close", "13:00")
	v.SetDefault("ingest.run_on_start", true)
	v.SetDefault("ingest.names", map[string]string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/bolsa.log")
}

// Validate checks values that would otherwise fail late, at the first cycle.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported db.driver %q (postgres, mysql, sqlite)", c.DB.Driver)
	}
	if c.Ingest.Interval <= 0 {
		return fmt.Errorf("ingest.interval must be positive, got %s", c.Ingest.Interval)
	}
	if c.Ingest.RetentionDays < 1 {
		return fmt.Errorf("ingest.retention_days must be >= 1, got %d", c.Ingest.RetentionDays)
	}
	open, err := ParseClock(c.Ingest.MarketOpen)
	if err != nil {
		return fmt.Errorf("ingest.market_open: %w", err)
	}
	closing, err := ParseClock(c.Ingest.MarketClose)
	if err != nil {
		return fmt.Errorf("ingest.market_close: %w", err)
	}
	if closing <= open {
		return fmt.Errorf("ingest.market_close (%s) must be after ingest.market_open (%s)", c.Ingest.MarketClose, c.Ingest.MarketOpen)
	}
	return nil
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q, use HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
