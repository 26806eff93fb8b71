package portkeeper

import (
	"net"
	"path/filepath"
	"testing"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func TestNewValidatesSpec(t *testing.T) {
	if _, err := New(Spec{Port: 5000}); err == nil {
		t.Fatalf("spec without command accepted")
	}
	if _, err := New(Spec{Command: "sleep"}); err == nil {
		t.Fatalf("spec without port accepted")
	}
}

func TestFacadeStatusAndLoop(t *testing.T) {
	spec := Spec{
		Name:    "svc",
		Command: "sleep",
		Args:    []string{"30"},
		Port:    freePort(t),
		PIDFile: filepath.Join(t.TempDir(), "svc.pid"),
	}
	s, err := New(spec)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	snap := s.Status()
	if snap.Status != "stopped" || snap.PID != 0 {
		t.Fatalf("fresh supervisor snapshot: %+v", snap)
	}

	l := NewLoop(s)
	l.Tick()
	if l.Displayed().String() != "stopped" {
		t.Fatalf("displayed = %v", l.Displayed())
	}
	if l.PortBlocked() {
		t.Fatalf("free port reported blocked")
	}
	if evs := l.Events(); len(evs) != 0 {
		t.Logf("startup events: %d", len(evs))
	}
}

func TestNewJournalSinkSQLite(t *testing.T) {
	sink, err := NewJournalSink(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("sqlite journal: %v", err)
	}
	_ = sink.Close()
}

func TestRegisterMetricsDefault(t *testing.T) {
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("register metrics: %v", err)
	}
	// Idempotent.
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("second register: %v", err)
	}
}
