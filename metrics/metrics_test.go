package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordCapabilityCall("fs/read_text_file", OutcomeOK)
		r.RecordHookResult("before", "fs_write", "blocked")
		r.TerminalStarted()
		r.TerminalReleased()
	})
	assert.Nil(t, r.Registry())

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestRecorder(t *testing.T) {
	r := New()

	r.RecordCapabilityCall("fs/write_text_file", OutcomeBlocked)
	r.RecordCapabilityCall("fs/write_text_file", OutcomeBlocked)
	r.RecordCapabilityCall("fs/read_text_file", OutcomeOK)
	r.RecordHookResult("after", "fs_write", "feedback")
	r.TerminalStarted()
	r.TerminalStarted()
	r.TerminalReleased()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.CapabilityCalls.WithLabelValues("fs/write_text_file", OutcomeBlocked)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CapabilityCalls.WithLabelValues("fs/read_text_file", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.HookResults.WithLabelValues("after", "fs_write", "feedback")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.TerminalsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.TerminalsActive))
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.TerminalStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.TerminalsCreated))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.TerminalsCreated))
}

func TestHandler(t *testing.T) {
	r := New()
	r.RecordCapabilityCall("terminal/create", OutcomeError)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `cyril_capability_calls_total{method="terminal/create",outcome="error"} 1`)
	assert.Contains(t, string(body), "cyril_terminals_active 0")
}
