package osprobe

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	gopsnet "github.com/shirou/gopsutil/v4/net"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Probe answers read-only questions about the local process table and TCP
// ports. Every call is bounded so a hung OS query cannot stall a caller.
type Probe interface {
	// ProcessAlive reports whether pid exists, is not a zombie and, when
	// matchName is non-empty, whether the executable name contains it.
	// The name check defends against PID reuse.
	ProcessAlive(pid int, matchName string) bool
	// PortListening reports whether something accepts TCP connections on
	// the loopback interface at port.
	PortListening(port int) bool
	// PortOwner returns the PID owning the listening socket for port.
	PortOwner(port int) (int, bool)
	// StartUnix returns the process start time as Unix seconds, 0 when
	// unavailable.
	StartUnix(pid int) int64
}

const (
	connectTimeout = 500 * time.Millisecond
	queryTimeout   = 900 * time.Millisecond
)

// OS is the gopsutil-backed Probe implementation.
type OS struct{}

var _ Probe = OS{}

func (OS) ProcessAlive(pid int, matchName string) bool {
	if pid <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false
	}
	running, err := p.IsRunningWithContext(ctx)
	if err != nil || !running {
		return false
	}
	if sts, err := p.StatusWithContext(ctx); err == nil {
		for _, st := range sts {
			if st == gopsproc.Zombie {
				return false
			}
		}
	}
	if matchName == "" {
		return true
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		// Name can be unreadable for foreign processes; existence already
		// confirmed, do not fail the identity check on EPERM.
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(matchName))
}

func (OS) PortListening(port int) bool {
	addr := net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", port))
	c, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

func (OS) PortOwner(port int) (int, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	conns, err := gopsnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return 0, false
	}
	for _, c := range conns {
		if c.Status == "LISTEN" && int(c.Laddr.Port) == port && c.Pid > 0 {
			return int(c.Pid), true
		}
	}
	return 0, false
}

func (OS) StartUnix(pid int) int64 { return procStartUnix(pid) }

// ProcessName returns the executable name for pid, empty when unknown.
func ProcessName(pid int) string {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return ""
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return ""
	}
	return name
}
