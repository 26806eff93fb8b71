package supervisor

import (
	"fmt"
	"os/exec"
	"time"

	"github.com/loykin/portkeeper/internal/event"
	"github.com/loykin/portkeeper/internal/metrics"
)

// Stop begins the terminate-wait-kill escalation. Idempotent: stopping a
// stopped service logs and returns, and every stop path converges to
// Stopped.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	switch s.state {
	case StateRunning, StateStarting:
		// proceed
	case StateStopping:
		s.mu.Unlock()
		s.emit(event.Log("stop already in progress"))
		return
	default:
		s.mu.Unlock()
		s.emit(event.Log("service is not running"))
		return
	}
	// Take the state machine in the same critical section as the gate;
	// bumping gen invalidates any start attempt still in flight so it
	// aborts instead of spawning under our feet.
	prev := s.state
	s.state = StateStopping
	s.gen++
	pid := s.pid
	start := s.pidStart
	cmd := s.cmd
	waitDone := s.waitDone
	s.mu.Unlock()

	s.noteTransition(prev, StateStopping, pid)
	s.emit(event.Log("stopping service..."))
	s.goWorker("stop", func() {
		s.doStop(pid, start, cmd, waitDone)
		s.pids.Clear()
		s.mu.Lock()
		s.pid = 0
		s.pidStart = 0
		s.cmd = nil
		s.waitDone = nil
		s.mu.Unlock()
		metrics.IncStop()
		s.setState(StateStopped)
		s.emit(event.Sentinel(event.KindStopped))
	})
}

func (s *Supervisor) doStop(pid int, start int64, cmd *exec.Cmd, waitDone <-chan struct{}) {
	if cmd != nil && cmd.Process != nil && waitDone != nil {
		s.stopOwned(pid, waitDone)
		return
	}
	if pid != 0 && s.pidMatches(pid, start) {
		s.stopAdopted(pid)
		return
	}
	s.emit(event.Log("process already exited"))
}

// stopOwned escalates through the spawned handle: SIGTERM the process
// group, wait for the reaper, then SIGKILL. Liveness is re-validated
// before the kill so a reused PID is never force-killed.
func (s *Supervisor) stopOwned(pid int, waitDone <-chan struct{}) {
	_ = terminateGroup(pid)
	select {
	case <-waitDone:
		s.emit(event.Log("service stopped gracefully"))
		return
	case <-time.After(s.spec.StopGrace):
	}

	if !s.probe.ProcessAlive(pid, s.spec.Family) {
		s.emit(event.Log("process already exited"))
		return
	}
	s.emit(event.Log("graceful stop timed out, force killing..."))
	_ = killGroup(pid)
	select {
	case <-waitDone:
	case <-time.After(s.spec.KillConfirm):
		s.emit(event.Log(fmt.Sprintf("process (PID %d) did not confirm exit after kill", pid)))
	}
}

// stopAdopted performs the same escalation by PID for a process we
// discovered via the PID record and hold no handle on.
func (s *Supervisor) stopAdopted(pid int) {
	s.emit(event.Log(fmt.Sprintf("terminating adopted process PID %d...", pid)))
	_ = terminateGroup(pid)
	if s.waitGone(pid, s.spec.StopGrace) {
		s.emit(event.Log("adopted process stopped"))
		return
	}
	if !s.probe.ProcessAlive(pid, s.spec.Family) {
		return
	}
	_ = killGroup(pid)
	if s.waitGone(pid, s.spec.KillConfirm) {
		s.emit(event.Log("adopted process force-killed"))
		return
	}
	s.emit(event.Log(fmt.Sprintf("adopted process (PID %d) still alive after kill", pid)))
}

// waitGone polls the process table until pid disappears or the window
// closes.
func (s *Supervisor) waitGone(pid int, window time.Duration) bool {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if !s.probe.ProcessAlive(pid, s.spec.Family) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !s.probe.ProcessAlive(pid, s.spec.Family)
}

// Restart composes Stop then Start. The fresh Start is not called from
// this worker: a RestartNow sentinel is emitted and the control loop,
// the context Start normally runs from, issues it. A stop that leaves
// the process alive aborts the restart instead of risking two live
// instances.
func (s *Supervisor) Restart() {
	s.emit(event.Log("restarting service..."))
	metrics.IncRestart()
	s.goWorker("restart", func() {
		s.mu.Lock()
		pid := s.pid
		start := s.pidStart
		running := s.state == StateRunning || s.state == StateStarting
		s.mu.Unlock()

		if running {
			s.Stop()
			deadline := time.Now().Add(s.spec.RestartWait)
			for time.Now().Before(deadline) && s.State() == StateStopping {
				time.Sleep(500 * time.Millisecond)
			}
			if s.State() == StateStopping {
				s.emit(event.Log("stop did not resolve in time, aborting restart"))
				s.setError("restart aborted: stop timed out")
				return
			}
			if pid != 0 && s.pidMatches(pid, start) {
				s.emit(event.Log(fmt.Sprintf("process (PID %d) survived stop, aborting restart", pid)))
				s.setError("restart aborted: process still alive")
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
		s.emit(event.Sentinel(event.KindRestartNow))
	})
}
