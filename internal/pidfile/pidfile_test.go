package pidfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteThenRead(t *testing.T) {
	s := Store{Path: filepath.Join(t.TempDir(), "svc.pid")}
	if err := s.Write(4321); err != nil {
		t.Fatalf("write: %v", err)
	}
	pid, ok := s.Read()
	if !ok || pid != 4321 {
		t.Fatalf("read: got (%d, %v), want (4321, true)", pid, ok)
	}
	b, err := os.ReadFile(s.Path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(b) != `{"pid":4321}` {
		t.Fatalf("unexpected record content: %s", b)
	}
}

func TestWriteCreatesParentDir(t *testing.T) {
	s := Store{Path: filepath.Join(t.TempDir(), "nested", "dir", "svc.pid")}
	if err := s.Write(7); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := s.Read(); !ok {
		t.Fatalf("record not readable after write")
	}
}

func TestReadMissingFile(t *testing.T) {
	s := Store{Path: filepath.Join(t.TempDir(), "absent.pid")}
	if pid, ok := s.Read(); ok || pid != 0 {
		t.Fatalf("missing file: got (%d, %v), want (0, false)", pid, ok)
	}
}

func TestReadMalformedContent(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"garbage.pid":  "not json at all",
		"negative.pid": `{"pid":-5}`,
		"zero.pid":     `{"pid":0}`,
		"empty.pid":    "",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("setup %s: %v", name, err)
		}
		if pid, ok := (Store{Path: path}).Read(); ok {
			t.Fatalf("%s: got (%d, true), want ok=false", name, pid)
		}
	}
}

func TestClearIsIdempotent(t *testing.T) {
	s := Store{Path: filepath.Join(t.TempDir(), "svc.pid")}
	if err := s.Write(99); err != nil {
		t.Fatalf("write: %v", err)
	}
	s.Clear()
	if _, ok := s.Read(); ok {
		t.Fatalf("record still readable after clear")
	}
	s.Clear() // clearing again must not panic or fail
}
