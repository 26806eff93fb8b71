package factory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/portkeeper/internal/journal"
)

func TestSQLiteSchemeDSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := NewSinkFromDSN("sqlite://" + path)
	if err != nil {
		t.Fatalf("sqlite DSN: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	e := journal.Entry{Kind: "ready", State: "running", OccurredAt: time.Now().UTC()}
	if err := s.Record(context.Background(), e); err != nil {
		t.Fatalf("record through factory sink: %v", err)
	}
}

func TestBarePathDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := NewSinkFromDSN(path)
	if err != nil {
		t.Fatalf("bare path DSN: %v", err)
	}
	_ = s.Close()
}

func TestEmptyDSNRejected(t *testing.T) {
	if _, err := NewSinkFromDSN("   "); err == nil {
		t.Fatalf("blank DSN accepted")
	}
}

func TestUnsupportedSchemeRejected(t *testing.T) {
	_, err := NewSinkFromDSN("redis://localhost:6379")
	if err == nil {
		t.Fatalf("unsupported scheme accepted")
	}
	if !strings.Contains(err.Error(), "unsupported DSN") {
		t.Fatalf("unexpected error: %v", err)
	}
}
