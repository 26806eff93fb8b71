package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/loykin/portkeeper/internal/controlloop"
	"github.com/loykin/portkeeper/internal/event"
	"github.com/loykin/portkeeper/internal/supervisor"
)

type fakeProbe struct{}

func (fakeProbe) ProcessAlive(int, string) bool { return false }
func (fakeProbe) PortListening(int) bool        { return false }
func (fakeProbe) PortOwner(int) (int, bool)     { return 0, false }
func (fakeProbe) StartUnix(int) int64           { return 0 }

func newFixture(t *testing.T) (*supervisor.Supervisor, *controlloop.Loop, http.Handler) {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	spec := supervisor.Spec{
		Name:    "svc",
		Command: "sleep",
		Port:    5000,
		PIDFile: filepath.Join(t.TempDir(), "svc.pid"),
	}
	sup, err := supervisor.New(spec, supervisor.Options{Probe: fakeProbe{}, Logger: quiet})
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	loop := controlloop.New(sup, controlloop.Options{Logger: quiet})
	r := NewRouter(sup, loop, "/api")
	return sup, loop, r.Handler()
}

func TestStatusEndpoint(t *testing.T) {
	_, loop, h := newFixture(t)
	loop.Tick()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	var resp struct {
		Status      string `json:"status"`
		Displayed   string `json:"displayed"`
		PortBlocked bool   `json:"port_blocked"`
		URL         string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "stopped" || resp.Displayed != "stopped" {
		t.Fatalf("unexpected status payload: %+v", resp)
	}
	if resp.URL != "http://127.0.0.1:5000/" {
		t.Fatalf("url = %q", resp.URL)
	}
}

func TestCommandEndpointsAccepted(t *testing.T) {
	_, _, h := newFixture(t)
	for _, path := range []string{"/api/start", "/api/stop", "/api/restart", "/api/refresh", "/api/resolve-port"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("%s returned %d, want 202", path, rec.Code)
		}
		var ok okResp
		if err := json.Unmarshal(rec.Body.Bytes(), &ok); err != nil || !ok.OK {
			t.Fatalf("%s body: %s (err %v)", path, rec.Body.String(), err)
		}
	}
}

func TestEventsEndpointReflectsRing(t *testing.T) {
	sup, loop, h := newFixture(t)
	sup.Queue().Drain()
	sup.Queue().Publish(event.Log("hello"))
	sup.Queue().Publish(event.Sentinel(event.KindReady))
	loop.Tick()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	var evs []struct {
		Kind string    `json:"kind"`
		Text string    `json:"text"`
		At   time.Time `json:"at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &evs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(evs) != 2 || evs[0].Text != "hello" || evs[1].Kind != "ready" {
		t.Fatalf("unexpected events payload: %+v", evs)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	_, _, h := newFixture(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route returned %d", rec.Code)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"/api":  "/api",
		"api":   "/api",
		"/api/": "/api",
		"  ":    "",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEchoMountServesSameSurface(t *testing.T) {
	sup, loop, _ := newFixture(t)
	r := NewRouter(sup, loop, "/api")
	e := echo.New()
	r.RegisterEcho(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("echo status code %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stop", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("echo stop returned %d", rec.Code)
	}
}
