package journal

import (
	"context"
	"time"
)

// Entry is one supervisor lifecycle fact: a state transition or a control
// sentinel, with the PID it concerned at the time.
type Entry struct {
	Kind       string    `json:"kind"`   // event kind or "transition"
	Detail     string    `json:"detail"` // log text, or "from->to" for transitions
	State      string    `json:"state"`  // supervisor state after the entry
	PID        int       `json:"pid"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for journal entries. Implementations must be safe
// for concurrent use.
type Sink interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
func (Nop) Close() error                        { return nil }
