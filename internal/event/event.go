package event

import (
	"encoding/json"
	"time"
)

// Kind tags an Event. Everything that is not KindLog is a control
// sentinel the control loop matches on; KindLog carries free text only.
type Kind int

const (
	KindLog Kind = iota
	KindReady
	KindTimeout
	KindStopped
	KindPortBlocked
	KindPortFree
	KindRestartNow
)

func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindReady:
		return "ready"
	case KindTimeout:
		return "timeout"
	case KindStopped:
		return "stopped"
	case KindPortBlocked:
		return "port_blocked"
	case KindPortFree:
		return "port_free"
	case KindRestartNow:
		return "restart_now"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the kind as its string form on the wire.
func (k Kind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

// UnmarshalJSON accepts the string form; unknown strings decode to KindLog.
func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for _, cand := range []Kind{KindLog, KindReady, KindTimeout, KindStopped, KindPortBlocked, KindPortFree, KindRestartNow} {
		if cand.String() == s {
			*k = cand
			return nil
		}
	}
	*k = KindLog
	return nil
}

// Event is an immutable message produced by background workers and
// consumed exactly once, in emission order, by the control loop.
type Event struct {
	Kind Kind      `json:"kind"`
	Text string    `json:"text,omitempty"`
	At   time.Time `json:"at"`
}

func Log(text string) Event { return Event{Kind: KindLog, Text: text, At: time.Now()} }

func Sentinel(k Kind) Event { return Event{Kind: k, At: time.Now()} }
