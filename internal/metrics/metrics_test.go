package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndHelpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	// Second call is a no-op.
	require.NoError(t, Register(reg))

	IncStart()
	IncStop()
	IncRestart()
	IncPortConflict()
	IncDroppedEvent()
	ObserveProbeDuration(0.05)
	RecordStateTransition("stopped", "starting")
	SetCurrentState("starting", true)
	SetCurrentState("stopped", false)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(mfs))
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"portkeeper_service_starts_total",
		"portkeeper_service_stops_total",
		"portkeeper_service_restarts_total",
		"portkeeper_service_port_conflicts_total",
		"portkeeper_events_dropped_total",
		"portkeeper_service_state_transitions_total",
		"portkeeper_service_current_state",
		"portkeeper_health_probe_duration_seconds",
	} {
		require.True(t, names[want], "metric %s not gathered", want)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	require.NoError(t, Register(prometheus.DefaultRegisterer))
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.String())
}
