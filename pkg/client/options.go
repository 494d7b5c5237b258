package client

import (
	"time"

	"github.com/IAL32/clickhouse-async/pkg/config"
	"github.com/IAL32/clickhouse-async/pkg/metrics"
)

// Options configures a Client.
type Options struct {
	// Hosts are tried in order until one accepts the connection.
	Hosts []string

	Database string
	User     string
	Password string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DrainTimeout time.Duration

	// RetryCount is how many times the full host list is retried when
	// no host accepts a connection.
	RetryCount int

	// RetryTimeout is the pause between passes over the host list.
	// Zero retries immediately.
	RetryTimeout time.Duration

	// MaxLength caps any single length-prefixed field read off the
	// wire.
	MaxLength uint64

	// Settings are sent with every query.
	Settings map[string]string

	Metrics *metrics.Metrics
}

const (
	defaultPort        = "9000"
	defaultUser        = "default"
	defaultDatabase    = "default"
	defaultDialTimeout = 5 * time.Second
	defaultRetryCount  = 3
)

func (o *Options) withDefaults() Options {
	out := *o
	if len(out.Hosts) == 0 {
		out.Hosts = []string{"localhost:" + defaultPort}
	}
	if out.User == "" {
		out.User = defaultUser
	}
	if out.Database == "" {
		out.Database = defaultDatabase
	}
	if out.DialTimeout == 0 {
		out.DialTimeout = defaultDialTimeout
	}
	if out.RetryCount == 0 {
		out.RetryCount = defaultRetryCount
	}
	return out
}

// OptionsFromConfig builds client options from the application
// configuration.
func OptionsFromConfig(cfg *config.ClickHouseConfig, m *metrics.Metrics) Options {
	return Options{
		Hosts:        cfg.Hosts,
		Database:     cfg.Database,
		User:         cfg.User,
		Password:     cfg.Password,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		DrainTimeout: cfg.DrainTimeout,
		MaxLength:    cfg.MaxLength,
		Settings:     cfg.Settings,
		Metrics:      m,
	}
}
