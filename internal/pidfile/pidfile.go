package pidfile

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Store persists the managed process PID as a single JSON object
// {"pid": N}. The record is advisory: readers must re-validate it against
// live OS state before trusting it. Any read failure — missing file,
// corrupt content, non-positive pid — behaves as "no record", which is
// always safe because it just means "treat as stopped".
type Store struct {
	Path string
}

type record struct {
	PID int `json:"pid"`
}

func (s Store) Write(pid int) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o750); err != nil {
		return err
	}
	b, err := json.Marshal(record{PID: pid})
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, b, 0o600)
}

func (s Store) Read() (int, bool) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, false
	}
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return 0, false
	}
	if r.PID <= 0 {
		return 0, false
	}
	return r.PID, true
}

func (s Store) Clear() {
	_ = os.Remove(s.Path)
}
