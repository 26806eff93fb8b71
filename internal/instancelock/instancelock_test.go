package instancelock

import (
	"net"
	"testing"
)

// freePort asks the kernel for an unused port.
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

func TestAcquireExcludesSecondInstance(t *testing.T) {
	port := freePort(t)

	first, err := Acquire(port)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer first.Release()

	if second, err := Acquire(port); err == nil {
		second.Release()
		t.Fatalf("second acquire succeeded, lock not exclusive")
	}
}

func TestReleaseFreesThePort(t *testing.T) {
	port := freePort(t)

	l, err := Acquire(port)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	l.Release()

	again, err := Acquire(port)
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	again.Release()
}

func TestReleaseNilSafe(t *testing.T) {
	var l *Lock
	l.Release() // must not panic
}
