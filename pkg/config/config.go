package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// ClickHouse target settings
	ClickHouse ClickHouseConfig

	// Metrics settings
	Metrics MetricsConfig

	// Logging settings
	Log LogConfig
}

// ClickHouseConfig represents the target server and protocol settings
type ClickHouseConfig struct {
	Hosts        []string
	Database     string
	User         string
	Password     string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DrainTimeout time.Duration
	MaxLength    uint64
	Settings     map[string]string
}

// MetricsConfig represents the metrics endpoint settings
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// LogConfig represents logging settings
type LogConfig struct {
	Level   string
	Format  string
	File    string
	Console bool
}

// DSN returns a clickhouse connection string for the first configured host
func (c ClickHouseConfig) DSN() string {
	host := "localhost:9000"
	if len(c.Hosts) > 0 {
		host = c.Hosts[0]
	}
	return fmt.Sprintf("clickhouse://%s:%s@%s/%s", c.User, c.Password, host, c.Database)
}

// Load loads the configuration from environment variables, config file, and command line flags
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Environment variable configuration
	v.SetEnvPrefix("CHC") // CHC = ClickHouse Client
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file support
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in default locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.clickhouse-async")
		v.AddConfigPath("/etc/clickhouse-async")
	}

	// Load config file if it exists
	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use only environment variables and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Create and populate the Config struct
	cfg := &Config{}

	cfg.ClickHouse = ClickHouseConfig{
		Hosts:        v.GetStringSlice("clickhouse.hosts"),
		Database:     v.GetString("clickhouse.database"),
		User:         v.GetString("clickhouse.user"),
		Password:     v.GetString("clickhouse.password"),
		DialTimeout:  v.GetDuration("clickhouse.dial_timeout"),
		ReadTimeout:  v.GetDuration("clickhouse.read_timeout"),
		WriteTimeout: v.GetDuration("clickhouse.write_timeout"),
		DrainTimeout: v.GetDuration("clickhouse.drain_timeout"),
		MaxLength:    v.GetUint64("clickhouse.max_length"),
		Settings:     v.GetStringMapString("clickhouse.settings"),
	}

	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("metrics.enabled"),
		Addr:    v.GetString("metrics.addr"),
	}

	cfg.Log = LogConfig{
		Level:   v.GetString("log.level"),
		Format:  v.GetString("log.format"),
		File:    v.GetString("log.file"),
		Console: v.GetBool("log.console"),
	}

	return cfg, nil
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// ClickHouse target settings
	v.SetDefault("clickhouse.hosts", []string{"localhost:9000"})
	v.SetDefault("clickhouse.database", "default")
	v.SetDefault("clickhouse.user", "default")
	v.SetDefault("clickhouse.password", "")
	v.SetDefault("clickhouse.dial_timeout", time.Second*5)
	v.SetDefault("clickhouse.read_timeout", time.Second*30)
	v.SetDefault("clickhouse.write_timeout", time.Second*5)
	v.SetDefault("clickhouse.drain_timeout", time.Second*10)
	v.SetDefault("clickhouse.max_length", uint64(64<<20))
	v.SetDefault("clickhouse.settings", map[string]string{})

	// Metrics settings
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "localhost:2112")

	// Logging settings
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.console", true)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{
		ClickHouse: ClickHouseConfig{
			Hosts:        []string{"localhost:9000"},
			Database:     "default",
			User:         "default",
			Password:     "",
			DialTimeout:  time.Second * 5,
			ReadTimeout:  time.Second * 30,
			WriteTimeout: time.Second * 5,
			DrainTimeout: time.Second * 10,
			MaxLength:    64 << 20,
			Settings:     map[string]string{},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "localhost:2112",
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "json",
			File:    "",
			Console: true,
		},
	}
	return cfg
}
