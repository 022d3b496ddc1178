package config

import (
	"fmt"
	"time"

	"github.com/vrischmann/envconfig"
)

// EnvPrefix prefixes every daemon environment variable
const EnvPrefix = "ROLEKEEPER"

// Daemon is the process configuration, read from ROLEKEEPER_* variables
type Daemon struct {
	LogLevel string `envconfig:"default=info"`
	LogJSON  bool   `envconfig:"default=false"`
	DataDir  string `envconfig:"default=./rolekeeper-data"`

	ScheduleInterval time.Duration `envconfig:"default=1s"`
	UpdateInterval   time.Duration `envconfig:"default=3s"`
	CycleTimeout     time.Duration `envconfig:"default=10s"`
	Workers          int           `envconfig:"default=8"`

	MetricsAddr string `envconfig:"default=127.0.0.1:9090"`

	// APIAddr serves the role status API; writes are refused unless APIWritable
	APIAddr     string `envconfig:"default=127.0.0.1:7950"`
	APIWritable bool   `envconfig:"default=false"`

	// DNSAddr enables the DNS server when set
	DNSAddr     string   `envconfig:"optional"`
	DNSDomain   string   `envconfig:"default=rolekeeper"`
	DNSUpstream []string `envconfig:"optional"`
}

// LoadDaemon reads the daemon configuration from the environment
func LoadDaemon() (*Daemon, error) {
	var cfg Daemon
	if err := envconfig.InitWithPrefix(&cfg, EnvPrefix); err != nil {
		return nil, fmt.Errorf("failed to read daemon config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the daemon configuration
func (d *Daemon) Validate() error {
	if d.DataDir == "" {
		return fmt.Errorf("data dir must not be empty")
	}
	if d.ScheduleInterval <= 0 || d.UpdateInterval <= 0 {
		return fmt.Errorf("intervals must be positive, got schedule %s update %s", d.ScheduleInterval, d.UpdateInterval)
	}
	if d.CycleTimeout <= 0 {
		return fmt.Errorf("cycle timeout must be positive, got %s", d.CycleTimeout)
	}
	if d.APIAddr == "" {
		return fmt.Errorf("api addr must not be empty")
	}
	if d.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", d.Workers)
	}
	return nil
}
