package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/portkeeper/internal/controlloop"
	"github.com/loykin/portkeeper/internal/logger"
	"github.com/loykin/portkeeper/internal/supervisor"
)

// Config is the top-level TOML structure.
//
//	[service]
//	name = "novel-server"
//	command = "/opt/novel/.venv/bin/python"
//	args = ["-u", "server.py"]
//	work_dir = "/opt/novel"
//	port = 5000
//	family = "python"
//
//	[service.log]
//	dir = "/var/log/portkeeper"
//
//	[daemon]
//	api_addr = "127.0.0.1:8127"
//	lock_port = 59123
//
//	[journal]
//	dsn = "sqlite:///var/lib/portkeeper/journal.db"
type Config struct {
	Service ServiceConfig `toml:"service" mapstructure:"service"`
	Daemon  DaemonConfig  `toml:"daemon" mapstructure:"daemon"`
	Journal JournalConfig `toml:"journal" mapstructure:"journal"`
}

type ServiceConfig struct {
	Name      string        `toml:"name" mapstructure:"name"`
	Command   string        `toml:"command" mapstructure:"command"`
	Args      []string      `toml:"args" mapstructure:"args"`
	WorkDir   string        `toml:"work_dir" mapstructure:"work_dir"`
	Env       []string      `toml:"env" mapstructure:"env"`
	Port      int           `toml:"port" mapstructure:"port"`
	HealthURL string        `toml:"health_url" mapstructure:"health_url"`
	Family    string        `toml:"family" mapstructure:"family"`
	PIDFile   string        `toml:"pidfile" mapstructure:"pidfile"`
	Log       *LogConfig    `toml:"log" mapstructure:"log"`
	Timeouts  TimeoutConfig `toml:"timeouts" mapstructure:"timeouts"`
}

type TimeoutConfig struct {
	Startup          time.Duration `toml:"startup" mapstructure:"startup"`
	ProbeInterval    time.Duration `toml:"probe_interval" mapstructure:"probe_interval"`
	StopGrace        time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`
	KillConfirm      time.Duration `toml:"kill_confirm" mapstructure:"kill_confirm"`
	PortFreeRetries  int           `toml:"port_free_retries" mapstructure:"port_free_retries"`
	PortFreeInterval time.Duration `toml:"port_free_interval" mapstructure:"port_free_interval"`
	RestartWait      time.Duration `toml:"restart_wait" mapstructure:"restart_wait"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Path       string `toml:"path" mapstructure:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type DaemonConfig struct {
	APIAddr      string        `toml:"api_addr" mapstructure:"api_addr"`
	MetricsAddr  string        `toml:"metrics_addr" mapstructure:"metrics_addr"`
	LockPort     int           `toml:"lock_port" mapstructure:"lock_port"`
	TickInterval time.Duration `toml:"tick_interval" mapstructure:"tick_interval"`
	Debug        bool          `toml:"debug" mapstructure:"debug"`
}

type JournalConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// Defaults for daemon settings.
const (
	DefaultAPIAddr  = "127.0.0.1:8127"
	DefaultLockPort = 59123
)

// Load parses a TOML config file and applies defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Daemon.APIAddr == "" {
		c.Daemon.APIAddr = DefaultAPIAddr
	}
	if c.Daemon.LockPort <= 0 {
		c.Daemon.LockPort = DefaultLockPort
	}
	if c.Daemon.TickInterval <= 0 {
		c.Daemon.TickInterval = controlloop.DefaultTickInterval
	}
}

func (c *Config) validate() error {
	if c.Service.Command == "" {
		return fmt.Errorf("config: service.command required")
	}
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return fmt.Errorf("config: service.port %d out of range", c.Service.Port)
	}
	if c.Service.Port == c.Daemon.LockPort {
		return fmt.Errorf("config: service.port and daemon.lock_port collide (%d)", c.Service.Port)
	}
	return nil
}

// Spec converts the service section into a supervisor spec.
func (c *Config) Spec() supervisor.Spec {
	s := supervisor.Spec{
		Name:             c.Service.Name,
		Command:          c.Service.Command,
		Args:             c.Service.Args,
		WorkDir:          c.Service.WorkDir,
		Env:              c.Service.Env,
		Port:             c.Service.Port,
		HealthURL:        c.Service.HealthURL,
		Family:           c.Service.Family,
		PIDFile:          c.Service.PIDFile,
		StartupTimeout:   c.Service.Timeouts.Startup,
		ProbeInterval:    c.Service.Timeouts.ProbeInterval,
		StopGrace:        c.Service.Timeouts.StopGrace,
		KillConfirm:      c.Service.Timeouts.KillConfirm,
		PortFreeRetries:  c.Service.Timeouts.PortFreeRetries,
		PortFreeInterval: c.Service.Timeouts.PortFreeInterval,
		RestartWait:      c.Service.Timeouts.RestartWait,
	}
	if c.Service.Log != nil {
		s.Log = logger.Config{
			Dir:        c.Service.Log.Dir,
			Path:       c.Service.Log.Path,
			MaxSizeMB:  c.Service.Log.MaxSizeMB,
			MaxBackups: c.Service.Log.MaxBackups,
			MaxAgeDays: c.Service.Log.MaxAgeDays,
			Compress:   c.Service.Log.Compress,
		}
	}
	return s
}
