package controlloop

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/portkeeper/internal/event"
	"github.com/loykin/portkeeper/internal/supervisor"
)

// DefaultTickInterval is the reconcile period. Polling, not interrupts:
// the OS offers no portable notification for process or port changes.
const DefaultTickInterval = 2 * time.Second

// Loop is the single consumer of the supervisor's event queue. Each tick
// drains pending events in order, applies their side effects, then runs
// the passive health re-check and re-renders the displayed status only
// when it changed.
type Loop struct {
	sup      *supervisor.Supervisor
	ring     *event.Ring
	interval time.Duration
	log      *slog.Logger
	render   func(supervisor.State)

	mu          sync.Mutex
	displayed   supervisor.State
	rendered    bool
	portBlocked bool
}

type Options struct {
	Interval time.Duration
	Ring     *event.Ring
	Logger   *slog.Logger
	// Render is invoked with the new displayed status whenever it
	// changes. Optional.
	Render func(supervisor.State)
}

func New(sup *supervisor.Supervisor, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultTickInterval
	}
	if opts.Ring == nil {
		opts.Ring = event.NewRing(256)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loop{
		sup:      sup,
		ring:     opts.Ring,
		interval: opts.Interval,
		log:      opts.Logger,
		render:   opts.Render,
	}
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	l.Tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick is one reconcile pass. Exported so tests can drive the loop
// without real time.
func (l *Loop) Tick() {
	for _, e := range l.sup.Queue().Drain() {
		l.ring.Add(e)
		l.apply(e)
	}
	// Passive re-check: no network, converges Running to Stopped when the
	// process died externally.
	l.setDisplayed(l.sup.CheckPassive())
}

func (l *Loop) apply(e event.Event) {
	switch e.Kind {
	case event.KindLog:
		l.log.Info(e.Text)
	case event.KindReady:
		l.setDisplayed(supervisor.StateRunning)
		l.setPortBlocked(false)
	case event.KindTimeout:
		l.setDisplayed(supervisor.StateError)
	case event.KindStopped:
		l.setDisplayed(supervisor.StateStopped)
	case event.KindRestartNow:
		// Start must run from this context, never from the restart
		// worker, so only one start sequence is ever in flight.
		l.sup.Start()
	case event.KindPortBlocked:
		l.setPortBlocked(true)
	case event.KindPortFree:
		l.setPortBlocked(false)
	}
}

func (l *Loop) setDisplayed(st supervisor.State) {
	l.mu.Lock()
	changed := !l.rendered || l.displayed != st
	l.displayed = st
	l.rendered = true
	l.mu.Unlock()
	if changed {
		l.log.Debug("status", "state", st.String())
		if l.render != nil {
			l.render(st)
		}
	}
}

func (l *Loop) setPortBlocked(v bool) {
	l.mu.Lock()
	l.portBlocked = v
	l.mu.Unlock()
}

// Displayed returns the operator-facing status label source.
func (l *Loop) Displayed() supervisor.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.displayed
}

// PortBlocked reports whether the last port check found a foreign owner;
// the operator surface uses it to offer conflict resolution.
func (l *Loop) PortBlocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.portBlocked
}

// Events returns the recent event window, oldest first.
func (l *Loop) Events() []event.Event { return l.ring.Recent() }
