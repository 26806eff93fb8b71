package portkeeper

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/portkeeper/internal/config"
	"github.com/loykin/portkeeper/internal/controlloop"
	"github.com/loykin/portkeeper/internal/event"
	"github.com/loykin/portkeeper/internal/journal"
	"github.com/loykin/portkeeper/internal/journal/factory"
	"github.com/loykin/portkeeper/internal/metrics"
	iapi "github.com/loykin/portkeeper/internal/server"
	"github.com/loykin/portkeeper/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = supervisor.Spec

type State = supervisor.State

type Snapshot = supervisor.Snapshot

type Event = event.Event

type JournalSink = journal.Sink

// Supervisor is a thin facade over internal/supervisor.Supervisor.
// It provides a stable public API for embedding.

type Supervisor struct{ inner *supervisor.Supervisor }

func New(spec Spec) (*Supervisor, error) {
	inner, err := supervisor.New(spec, supervisor.Options{})
	if err != nil {
		return nil, err
	}
	return &Supervisor{inner: inner}, nil
}

// NewWithJournal constructs a supervisor that records lifecycle events to
// the given journal sink.
func NewWithJournal(spec Spec, sink JournalSink) (*Supervisor, error) {
	inner, err := supervisor.New(spec, supervisor.Options{Journal: sink})
	if err != nil {
		return nil, err
	}
	return &Supervisor{inner: inner}, nil
}

func (s *Supervisor) Start()               { s.inner.Start() }
func (s *Supervisor) Stop()                { s.inner.Stop() }
func (s *Supervisor) Restart()             { s.inner.Restart() }
func (s *Supervisor) Refresh()             { s.inner.Refresh() }
func (s *Supervisor) ResolvePortConflict() { s.inner.ResolvePortConflict() }
func (s *Supervisor) Status() Snapshot     { return s.inner.Status() }
func (s *Supervisor) State() State         { return s.inner.State() }

// Loop facade. The loop is the sole consumer of the supervisor's event
// queue; exactly one must run per supervisor.

type Loop struct{ inner *controlloop.Loop }

func NewLoop(s *Supervisor) *Loop {
	return &Loop{inner: controlloop.New(s.inner, controlloop.Options{})}
}

func (l *Loop) Run(ctx context.Context) { l.inner.Run(ctx) }
func (l *Loop) Tick()                   { l.inner.Tick() }
func (l *Loop) Displayed() State        { return l.inner.Displayed() }
func (l *Loop) PortBlocked() bool       { return l.inner.PortBlocked() }
func (l *Loop) Events() []Event         { return l.inner.Events() }

func LoadConfig(path string) (*cfg.Config, error) {
	return cfg.Load(path)
}

// NewJournalSink builds a journal sink from a DSN (sqlite, postgres or
// clickhouse).
func NewJournalSink(dsn string) (JournalSink, error) {
	return factory.NewSinkFromDSN(dsn)
}

// NewHTTPServer starts an HTTP server exposing the operator API using the
// given supervisor and loop.
func NewHTTPServer(addr, basePath string, s *Supervisor, l *Loop) *http.Server {
	return iapi.NewServer(addr, basePath, s.inner, l.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
