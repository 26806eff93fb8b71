package supervisor

import (
	"fmt"
	"time"

	"github.com/loykin/portkeeper/internal/event"
	"github.com/loykin/portkeeper/internal/osprobe"
)

// ResolvePortConflict kills the entire process tree occupying the
// well-known port. Socket teardown is not instantaneous, so the port is
// re-checked with bounded retries before declaring success.
func (s *Supervisor) ResolvePortConflict() {
	s.goWorker("port-resolve", func() {
		owner, ok := s.probe.PortOwner(s.spec.Port)
		if !ok {
			s.emit(event.Log("port is already free"))
			s.emit(event.Sentinel(event.KindPortFree))
			return
		}

		s.mu.Lock()
		ourPID := s.pid
		s.mu.Unlock()
		if owner == ourPID && ourPID != 0 {
			s.emit(event.Log(fmt.Sprintf("port %d is held by the managed service (PID %d), use stop instead", s.spec.Port, owner)))
			return
		}

		// Kill from the true tree root: the socket owner may be a worker
		// child of a supervising parent that would otherwise respawn it.
		root := s.killer.TreeRoot(owner, s.spec.Family)
		name := osprobe.ProcessName(root)
		if name == "" {
			name = "unknown"
		}
		s.emit(event.Log(fmt.Sprintf("found process tree root: %s (PID %d)", name, root)))

		res, err := s.killer.Kill(root)
		if err != nil {
			s.emit(event.Log(fmt.Sprintf("error killing blocker: %v", err)))
		} else {
			s.emit(event.Log(fmt.Sprintf("blocker tree: %d exited gracefully, %d force-killed, %d still alive",
				res.Graceful, res.Forced, res.Residual)))
		}

		for i := 0; i < s.spec.PortFreeRetries; i++ {
			time.Sleep(s.spec.PortFreeInterval)
			if !s.probe.PortListening(s.spec.Port) {
				s.emit(event.Log("port is now free"))
				s.emit(event.Sentinel(event.KindPortFree))
				return
			}
		}

		s.emit(event.Log(fmt.Sprintf("port %d still in use after blocker kill", s.spec.Port)))
		s.emit(event.Sentinel(event.KindPortBlocked))
	})
}
