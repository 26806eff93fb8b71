package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/portkeeper/internal/event"
	"github.com/loykin/portkeeper/internal/health"
	"github.com/loykin/portkeeper/internal/journal"
	"github.com/loykin/portkeeper/internal/killtree"
	"github.com/loykin/portkeeper/internal/metrics"
	"github.com/loykin/portkeeper/internal/osprobe"
	"github.com/loykin/portkeeper/internal/pidfile"
)

// Supervisor owns the lifecycle of the single managed service. All
// blocking work (spawn, waits, probes, kills) runs on background workers
// that report back through the event queue; the exported methods are
// cheap and safe to call from the control loop or HTTP handlers.
//
// Lock hierarchy: mu protects state, pid, cmd and waitDone; it is never
// held across a blocking OS or network call.
type Supervisor struct {
	spec   Spec
	probe  osprobe.Probe
	killer killtree.Killer
	prober health.Prober
	pids   pidfile.Store
	queue  *event.Queue
	sink   journal.Sink
	log    *slog.Logger

	mu       sync.Mutex
	state    State
	gen      uint64 // bumped whenever Start or Stop takes the state machine
	pid      int
	pidStart int64         // recorded process start time, 0 when unknown
	cmd      *exec.Cmd     // owned handle; nil for an adopted process
	waitDone chan struct{} // closed when the owned child is reaped
	waitErr  error
	lastErr  string
}

// Options carries the injected collaborators. Zero-value fields get
// production defaults.
type Options struct {
	Probe   osprobe.Probe
	Killer  killtree.Killer
	Prober  health.Prober
	Queue   *event.Queue
	Journal journal.Sink
	Logger  *slog.Logger
}

// New constructs a Supervisor and runs adoption detection, so the initial
// state reflects the host, not a hardcoded Stopped.
func New(spec Spec, opts Options) (*Supervisor, error) {
	spec = spec.Normalized()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if opts.Probe == nil {
		opts.Probe = osprobe.OS{}
	}
	if opts.Killer == nil {
		opts.Killer = killtree.Tree{}
	}
	if opts.Prober == nil {
		opts.Prober = health.HTTPProber{}
	}
	if opts.Queue == nil {
		opts.Queue = event.NewQueue(event.DefaultQueueDepth)
	}
	if opts.Journal == nil {
		opts.Journal = journal.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Supervisor{
		spec:   spec,
		probe:  opts.Probe,
		killer: opts.Killer,
		prober: opts.Prober,
		pids:   pidfile.Store{Path: spec.PIDFile},
		queue:  opts.Queue,
		sink:   opts.Journal,
		log:    opts.Logger,
	}
	s.queue.SetDropHook(metrics.IncDroppedEvent)
	s.detectExisting()
	return s, nil
}

// Queue exposes the event queue for the control loop consumer.
func (s *Supervisor) Queue() *event.Queue { return s.queue }

// Spec returns a copy of the normalized spec.
func (s *Supervisor) Spec() Spec { return s.spec }

// Snapshot is the externally visible status.
type Snapshot struct {
	State   State  `json:"-"`
	Status  string `json:"status"`
	PID     int    `json:"pid,omitempty"`
	Adopted bool   `json:"adopted,omitempty"`
	LastErr string `json:"last_error,omitempty"`
	URL     string `json:"url"`
}

func (s *Supervisor) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:   s.state,
		Status:  s.state.String(),
		PID:     s.pid,
		Adopted: s.pid != 0 && s.cmd == nil,
		LastErr: s.lastErr,
		URL:     s.spec.HealthURL,
	}
}

// State returns the current state only.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// detectExisting re-adopts a service left running by a previous
// supervisor instance, or cleans up after one that died. Runs at
// construction and on Refresh.
func (s *Supervisor) detectExisting() {
	pid, ok := s.pids.Read()
	if ok && s.probe.ProcessAlive(pid, s.spec.Family) {
		// PID valid; confirm with the port before trusting it, to catch a
		// stale-but-coincidentally-alive PID of an unrelated process.
		if s.probe.PortListening(s.spec.Port) {
			start := s.probe.StartUnix(pid)
			s.mu.Lock()
			s.pid = pid
			s.pidStart = start
			s.cmd = nil
			s.waitDone = nil
			s.mu.Unlock()
			s.emit(event.Log(fmt.Sprintf("detected existing service (PID %d) on port %d", pid, s.spec.Port)))
			s.setState(StateRunning)
			return
		}
		s.emit(event.Log(fmt.Sprintf("PID %d alive but port %d not open, treating as stale", pid, s.spec.Port)))
	}

	if ok {
		s.emit(event.Log(fmt.Sprintf("cleaning up stale PID record (PID %d)", pid)))
		s.pids.Clear()
	}

	s.mu.Lock()
	s.pid = 0
	s.pidStart = 0
	s.cmd = nil
	s.waitDone = nil
	s.mu.Unlock()

	// Something else squatting on the port is actionable, not fatal.
	if s.probe.PortListening(s.spec.Port) {
		owner, _ := s.probe.PortOwner(s.spec.Port)
		s.emit(event.Log(fmt.Sprintf("port %d is in use by another process (PID %d)", s.spec.Port, owner)))
		s.emit(event.Sentinel(event.KindPortBlocked))
		metrics.IncPortConflict()
	}
	s.setState(StateStopped)
}

// Refresh re-runs adoption detection on a background worker.
func (s *Supervisor) Refresh() {
	s.goWorker("refresh", func() {
		s.emit(event.Log("refreshing state"))
		s.mu.Lock()
		pid := s.pid
		start := s.pidStart
		s.mu.Unlock()
		if pid != 0 && !s.pidMatches(pid, start) {
			s.emit(event.Log(fmt.Sprintf("managed PID %d is gone, cleaning up", pid)))
			s.pids.Clear()
		}
		s.detectExisting()
		if !s.probe.PortListening(s.spec.Port) {
			s.emit(event.Sentinel(event.KindPortFree))
		}
	})
}

// CheckPassive re-derives status from the process table without network
// calls. Called by the control loop each tick; must stay cheap. Detects
// the service dying externally and converges Running to Stopped.
func (s *Supervisor) CheckPassive() State {
	s.mu.Lock()
	st := s.state
	pid := s.pid
	start := s.pidStart
	s.mu.Unlock()

	if st != StateRunning || pid == 0 {
		return st
	}
	if s.probe.ProcessAlive(pid, s.spec.Family) {
		if start == 0 {
			return st
		}
		if got := s.probe.StartUnix(pid); got == 0 || got == start {
			return st
		}
		// Same PID, different start time: the kernel recycled it.
		s.emit(event.Log(fmt.Sprintf("PID %d was reused by another process", pid)))
	} else {
		// Invariant violated: Running implies a live PID.
		s.emit(event.Log(fmt.Sprintf("service (PID %d) exited on its own", pid)))
	}
	s.pids.Clear()
	s.mu.Lock()
	s.pid = 0
	s.pidStart = 0
	s.cmd = nil
	s.mu.Unlock()
	s.setState(StateStopped)
	return StateStopped
}

// setState records a transition in metrics and the journal.
func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	pid := s.pid
	s.mu.Unlock()
	s.noteTransition(prev, next, pid)
}

// noteTransition publishes a completed state change to metrics and the
// journal. Callers must have already applied the change under mu.
func (s *Supervisor) noteTransition(prev, next State, pid int) {
	if prev == next {
		return
	}
	metrics.RecordStateTransition(prev.String(), next.String())
	metrics.SetCurrentState(prev.String(), false)
	metrics.SetCurrentState(next.String(), true)
	s.record(journal.Entry{
		Kind:       "transition",
		Detail:     prev.String() + "->" + next.String(),
		State:      next.String(),
		PID:        pid,
		OccurredAt: time.Now(),
	})
	s.log.Debug("state transition", "from", prev.String(), "to", next.String())
}

// stillStarting reports whether the start attempt identified by gen still
// owns the state machine.
func (s *Supervisor) stillStarting(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateStarting && s.gen == gen
}

// advanceIfStarting transitions Starting->next, but only when the start
// attempt gen has not been superseded by a newer Start or Stop.
func (s *Supervisor) advanceIfStarting(gen uint64, next State) bool {
	s.mu.Lock()
	if s.state != StateStarting || s.gen != gen {
		s.mu.Unlock()
		return false
	}
	prev := s.state
	s.state = next
	pid := s.pid
	s.mu.Unlock()
	s.noteTransition(prev, next, pid)
	return true
}

// failIfStarting moves the start attempt gen to Error. A superseded attempt
// stays quiet; whatever superseded it owns the state machine now.
func (s *Supervisor) failIfStarting(gen uint64, msg string) bool {
	s.mu.Lock()
	if s.state != StateStarting || s.gen != gen {
		s.mu.Unlock()
		return false
	}
	prev := s.state
	s.state = StateError
	s.lastErr = msg
	pid := s.pid
	s.mu.Unlock()
	s.noteTransition(prev, StateError, pid)
	return true
}

func (s *Supervisor) setError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
	s.setState(StateError)
}

// pidMatches reports whether pid is alive and, when a start time was
// recorded for it, that the start time still matches. A zero recorded or
// probed start time means no evidence either way and falls back to the
// name check inside ProcessAlive.
func (s *Supervisor) pidMatches(pid int, startUnix int64) bool {
	if !s.probe.ProcessAlive(pid, s.spec.Family) {
		return false
	}
	if startUnix == 0 {
		return true
	}
	if got := s.probe.StartUnix(pid); got != 0 && got != startUnix {
		return false
	}
	return true
}

func (s *Supervisor) emit(e event.Event) {
	s.queue.Publish(e)
	if e.Kind != event.KindLog {
		s.mu.Lock()
		pid := s.pid
		st := s.state
		s.mu.Unlock()
		s.record(journal.Entry{
			Kind:       e.Kind.String(),
			Detail:     e.Text,
			State:      st.String(),
			PID:        pid,
			OccurredAt: e.At,
		})
	}
}

func (s *Supervisor) record(e journal.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.sink.Record(ctx, e); err != nil {
		s.log.Warn("journal record failed", "err", err)
	}
}

// goWorker runs fn on a background goroutine with the panic boundary the
// control thread relies on: a crashed worker becomes a log event, never a
// crashed supervisor.
func (s *Supervisor) goWorker(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("worker panic", "worker", name, "panic", r)
				s.emit(event.Log(fmt.Sprintf("%s worker failed: %v", name, r)))
			}
		}()
		fn()
	}()
}
