package supervisor

import (
	"fmt"
	"time"

	"github.com/loykin/portkeeper/internal/logger"
)

// Default operation bounds. Every interval and timeout is explicit; no
// operation blocks indefinitely.
const (
	DefaultStartupTimeout   = 30 * time.Second
	DefaultProbeInterval    = 500 * time.Millisecond
	DefaultStopGrace        = 5 * time.Second
	DefaultKillConfirm      = 3 * time.Second
	DefaultPortFreeRetries  = 6
	DefaultPortFreeInterval = 500 * time.Millisecond
	DefaultRestartWait      = 10 * time.Second
)

// Spec describes the one service this supervisor manages: a single
// executable with fixed arguments in a fixed working directory, which
// must bind Port and answer HTTP 200 on HealthURL once ready.
type Spec struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`  // path to the service executable
	Args    []string `json:"args"`     // fixed arguments
	WorkDir string   `json:"work_dir"` // fixed working directory
	Env     []string `json:"env"`      // extra environment, KEY=VALUE

	Port      int    `json:"port"`       // well-known TCP port the service binds
	HealthURL string `json:"health_url"` // defaults to http://127.0.0.1:<port>/

	// Family is a substring of the executable name shared by every member
	// of the service's process tree (e.g. "python" for a uvicorn stack).
	// It guards liveness checks against PID reuse and steers the upward
	// tree-root walk during port conflict resolution.
	Family string `json:"family"`

	PIDFile string `json:"pid_file"` // persisted PID record path

	StartupTimeout   time.Duration `json:"startup_timeout"`
	ProbeInterval    time.Duration `json:"probe_interval"`
	StopGrace        time.Duration `json:"stop_grace"`
	KillConfirm      time.Duration `json:"kill_confirm"`
	PortFreeRetries  int           `json:"port_free_retries"`
	PortFreeInterval time.Duration `json:"port_free_interval"`
	RestartWait      time.Duration `json:"restart_wait"`

	Log logger.Config `json:"log"` // captured service output
}

// Normalized returns a copy with defaults applied.
func (s Spec) Normalized() Spec {
	if s.Name == "" {
		s.Name = "service"
	}
	if s.HealthURL == "" && s.Port > 0 {
		s.HealthURL = fmt.Sprintf("http://127.0.0.1:%d/", s.Port)
	}
	if s.StartupTimeout <= 0 {
		s.StartupTimeout = DefaultStartupTimeout
	}
	if s.ProbeInterval <= 0 {
		s.ProbeInterval = DefaultProbeInterval
	}
	if s.StopGrace <= 0 {
		s.StopGrace = DefaultStopGrace
	}
	if s.KillConfirm <= 0 {
		s.KillConfirm = DefaultKillConfirm
	}
	if s.PortFreeRetries <= 0 {
		s.PortFreeRetries = DefaultPortFreeRetries
	}
	if s.PortFreeInterval <= 0 {
		s.PortFreeInterval = DefaultPortFreeInterval
	}
	if s.RestartWait <= 0 {
		s.RestartWait = DefaultRestartWait
	}
	return s
}

// Validate rejects specs that cannot possibly start.
func (s Spec) Validate() error {
	if s.Command == "" {
		return fmt.Errorf("spec: command required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("spec: port %d out of range", s.Port)
	}
	return nil
}
