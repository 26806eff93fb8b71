package instancelock

import (
	"fmt"
	"net"
)

// Lock is a mutual-exclusion guard for the supervisor itself: an
// exclusively bound loopback listener. A failed bind means another
// supervisor instance is already active on this host.
type Lock struct {
	ln net.Listener
}

// Acquire binds 127.0.0.1:port. The listener accepts nothing; holding the
// socket is the whole point.
func Acquire(port int) (*Lock, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, fmt.Errorf("another instance appears to be running (lock port %d): %w", port, err)
	}
	return &Lock{ln: ln}, nil
}

func (l *Lock) Release() {
	if l != nil && l.ln != nil {
		_ = l.ln.Close()
		l.ln = nil
	}
}
