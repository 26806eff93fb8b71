package osprobe

import (
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sleep on Unix-like systems")
	}
}

func TestProcessAliveSelf(t *testing.T) {
	p := OS{}
	if !p.ProcessAlive(os.Getpid(), "") {
		t.Fatalf("own PID reported dead")
	}
}

func TestProcessAliveNameMatch(t *testing.T) {
	requireUnix(t)
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill(); _, _ = cmd.Process.Wait() })

	p := OS{}
	pid := cmd.Process.Pid
	if !p.ProcessAlive(pid, "sleep") {
		t.Fatalf("sleep process not alive with matching family")
	}
	if p.ProcessAlive(pid, "definitely-not-this-name") {
		t.Fatalf("family mismatch not detected")
	}
}

func TestProcessAliveInvalidAndExited(t *testing.T) {
	requireUnix(t)
	p := OS{}
	if p.ProcessAlive(0, "") || p.ProcessAlive(-1, "") {
		t.Fatalf("non-positive PID reported alive")
	}

	cmd := exec.Command("sleep", "0.05")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Wait()
	// The PID is reaped; give the table a moment on slow systems.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && p.ProcessAlive(pid, "sleep") {
		time.Sleep(50 * time.Millisecond)
	}
	if p.ProcessAlive(pid, "sleep") {
		t.Fatalf("exited process still reported alive")
	}
}

func TestPortListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	p := OS{}
	if !p.PortListening(port) {
		t.Fatalf("bound port %d reported closed", port)
	}
	_ = ln.Close()
	if p.PortListening(port) {
		t.Fatalf("closed port %d reported open", port)
	}
}

func TestPortOwnerIsSelf(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	p := OS{}
	owner, ok := p.PortOwner(port)
	if !ok {
		// Connection tables can be unreadable in restricted environments.
		t.Skip("port owner lookup unavailable")
	}
	if owner != os.Getpid() {
		t.Fatalf("owner = %d, want self %d", owner, os.Getpid())
	}
}

func TestStartUnixSelf(t *testing.T) {
	p := OS{}
	start := p.StartUnix(os.Getpid())
	if start <= 0 {
		t.Skip("process start time unavailable")
	}
	if now := time.Now().Unix(); start > now {
		t.Fatalf("start time %d is in the future (now %d)", start, now)
	}
}

func TestProcessNameSelf(t *testing.T) {
	name := ProcessName(os.Getpid())
	if name == "" {
		t.Skip("process name unavailable")
	}
	// Test binaries are named after their package with a .test suffix.
	if !strings.Contains(name, "test") && !strings.Contains(name, "osprobe") {
		t.Logf("unexpected but tolerated self name: %q", name)
	}
	if ProcessName(-1) != "" {
		t.Fatalf("invalid PID produced a name")
	}
}
