package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"time"

	"github.com/loykin/portkeeper/internal/event"
	"github.com/loykin/portkeeper/internal/metrics"
)

// Start begins the spawn sequence. It no-ops with a logged reason when a
// start cannot proceed; all progress is reported via the event stream.
func (s *Supervisor) Start() {
	s.mu.Lock()
	switch s.state {
	case StateRunning:
		s.mu.Unlock()
		s.emit(event.Log("service is already running"))
		return
	case StateStarting:
		s.mu.Unlock()
		s.emit(event.Log("start already in progress"))
		return
	case StateStopping:
		s.mu.Unlock()
		s.emit(event.Log("cannot start while stopping"))
		return
	}
	// Claim the state machine in the same critical section as the gate
	// above; a Stop racing in after the unlock bumps gen and the worker
	// below aborts instead of spawning into a stopped supervisor.
	prev := s.state
	s.state = StateStarting
	s.gen++
	gen := s.gen
	pid := s.pid
	s.mu.Unlock()

	s.noteTransition(prev, StateStarting, pid)
	s.goWorker("start", func() { s.doStart(gen) })
}

func (s *Supervisor) doStart(gen uint64) {
	// Never compete with a foreign process for the port.
	if s.probe.PortListening(s.spec.Port) {
		if !s.stillStarting(gen) {
			s.emit(event.Log("start superseded, aborting"))
			return
		}
		owner, _ := s.probe.PortOwner(s.spec.Port)
		s.emit(event.Log(fmt.Sprintf("port %d is already in use (PID %d), cannot start", s.spec.Port, owner)))
		s.emit(event.Sentinel(event.KindPortBlocked))
		metrics.IncPortConflict()
		s.failIfStarting(gen, fmt.Sprintf("port %d occupied by PID %d", s.spec.Port, owner))
		return
	}

	// The port check above blocks on a dial timeout; a Stop may have won
	// the state machine in the meantime. Re-confirm before spawning.
	if !s.stillStarting(gen) {
		s.emit(event.Log("start superseded, aborting"))
		return
	}

	s.emit(event.Log(fmt.Sprintf("starting %s...", s.spec.Name)))

	// #nosec G204 -- the command comes from operator configuration
	cmd := exec.Command(s.spec.Command, s.spec.Args...)
	if s.spec.WorkDir != "" {
		cmd.Dir = s.spec.WorkDir
	}
	if len(s.spec.Env) > 0 {
		cmd.Env = append(os.Environ(), s.spec.Env...)
	}
	configureSysProcAttr(cmd)

	// One combined stdout/stderr pipe, per the spawn contract.
	pr, pw, err := os.Pipe()
	if err != nil {
		s.emit(event.Log(fmt.Sprintf("failed to allocate output pipe: %v", err)))
		s.failIfStarting(gen, err.Error())
		return
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		switch {
		case errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist):
			s.emit(event.Log(fmt.Sprintf("executable not found: %s", s.spec.Command)))
		case errors.Is(err, fs.ErrPermission):
			s.emit(event.Log(fmt.Sprintf("permission denied launching %s", s.spec.Command)))
		default:
			s.emit(event.Log(fmt.Sprintf("failed to start: %v", err)))
		}
		s.failIfStarting(gen, err.Error())
		return
	}
	// Parent must not hold the write end or the reader never sees EOF.
	_ = pw.Close()

	pid := cmd.Process.Pid
	waitDone := make(chan struct{})
	startUnix := s.probe.StartUnix(pid)

	s.mu.Lock()
	if s.state != StateStarting || s.gen != gen {
		s.mu.Unlock()
		// A Stop won the state machine between the pre-spawn check and
		// here; the fresh child must not outlive it.
		_ = terminateGroup(pid)
		_ = killGroup(pid)
		_ = pr.Close()
		s.goWorker("reaper", func() { _ = cmd.Wait() })
		s.emit(event.Log(fmt.Sprintf("start superseded, terminated fresh process (PID %d)", pid)))
		return
	}
	s.pid = pid
	s.pidStart = startUnix
	s.cmd = cmd
	s.waitDone = waitDone
	s.lastErr = ""
	s.mu.Unlock()

	// Persist immediately so a supervisor crash right after spawn does
	// not orphan-and-lose the child.
	if err := s.pids.Write(pid); err != nil {
		s.emit(event.Log(fmt.Sprintf("warning: could not persist PID record: %v", err)))
	}
	metrics.IncStart()
	s.emit(event.Log(fmt.Sprintf("process spawned (PID %d), waiting for HTTP 200...", pid)))

	// Reaper: the only goroutine that calls Wait on this handle.
	s.goWorker("reaper", func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.waitErr = err
		s.mu.Unlock()
		close(waitDone)
	})

	s.goWorker("output-reader", func() { s.readOutput(pr) })
	s.goWorker("readiness", func() { s.waitForReady(gen, waitDone) })
}

// readOutput drains the child's combined output line-by-line into the
// event stream until the pipe closes, teeing into the capture file when
// configured.
func (s *Supervisor) readOutput(pr *os.File) {
	defer func() { _ = pr.Close() }()
	capture := s.spec.Log.CaptureWriter(s.spec.Name)
	if capture != nil {
		defer func() { _ = capture.Close() }()
	}
	sc := bufio.NewScanner(pr)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		s.emit(event.Log(line))
		if capture != nil {
			_, _ = capture.Write([]byte(line + "\n"))
		}
	}
}

// waitForReady polls the health endpoint until 200, early exit or the
// startup timeout. Early exit is a distinct failure from a timeout while
// the process is still up.
func (s *Supervisor) waitForReady(gen uint64, waitDone <-chan struct{}) {
	deadline := time.Now().Add(s.spec.StartupTimeout)
	ticker := time.NewTicker(s.spec.ProbeInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-waitDone:
			// A Stop in flight reaps the child too; only report an early
			// exit when this attempt still owns the state machine.
			if !s.failIfStarting(gen, "process exited before ready") {
				return
			}
			s.emit(event.Log("service process exited before becoming ready"))
			s.emit(event.Event{Kind: event.KindTimeout, Text: "early exit", At: time.Now()})
			return
		case <-ticker.C:
		}

		begin := time.Now()
		ok := s.prober.Check(context.Background(), s.spec.HealthURL)
		metrics.ObserveProbeDuration(time.Since(begin).Seconds())
		if ok {
			if !s.advanceIfStarting(gen, StateRunning) {
				return
			}
			s.emit(event.Log(fmt.Sprintf("service ready at %s", s.spec.HealthURL)))
			s.emit(event.Sentinel(event.KindReady))
			return
		}
	}

	if !s.failIfStarting(gen, fmt.Sprintf("not ready within %s", s.spec.StartupTimeout)) {
		return
	}
	s.emit(event.Log(fmt.Sprintf("service did not respond within %s, check logs", s.spec.StartupTimeout)))
	s.emit(event.Event{Kind: event.KindTimeout, Text: "startup timeout", At: time.Now()})
}
