package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := metrics.NewRegistry()

	r.RecordAck("sub")
	r.RecordAck("sub")
	r.RecordNack("sub", metrics.NackDecode)
	r.RecordAccepted("sub", 2)
	r.RecordAccepted("sub", 0)
	r.RecordRun("sub", "max_results", 3*time.Second)
	r.RecordSinkSave("memory", time.Millisecond, nil)
	r.RecordSinkSave("memory", time.Millisecond, errors.New("boom"))

	expected := `
# HELP alertstream_messages_total Messages settled by the streaming pull
# TYPE alertstream_messages_total counter
alertstream_messages_total{outcome="ack",subscription="sub"} 2
alertstream_messages_total{outcome="nack",subscription="sub"} 1
# HELP alertstream_nack_total Negative acknowledgments by reason
# TYPE alertstream_nack_total counter
alertstream_nack_total{reason="decode",subscription="sub"} 1
# HELP alertstream_records_accepted_total Records counted towards a run's result limit
# TYPE alertstream_records_accepted_total counter
alertstream_records_accepted_total{subscription="sub"} 2
# HELP alertstream_runs_total Completed streaming pull runs by termination reason
# TYPE alertstream_runs_total counter
alertstream_runs_total{reason="max_results",subscription="sub"} 1
# HELP alertstream_sink_save_total Record saves by sink and status
# TYPE alertstream_sink_save_total counter
alertstream_sink_save_total{sink="memory",status="error"} 1
alertstream_sink_save_total{sink="memory",status="success"} 1
`
	err := testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected),
		"alertstream_messages_total",
		"alertstream_nack_total",
		"alertstream_records_accepted_total",
		"alertstream_runs_total",
		"alertstream_sink_save_total",
	)
	require.NoError(t, err)
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *metrics.Registry
	assert.NotPanics(t, func() {
		r.RecordAck("sub")
		r.RecordNack("sub", metrics.NackSink)
		r.RecordAccepted("sub", 1)
		r.RecordRun("sub", "idle_timeout", time.Second)
		r.RecordSinkSave("memory", time.Second, nil)
	})
}

func TestRegistry_Handler(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordAck("sub")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alertstream_messages_total")
	assert.Contains(t, rec.Body.String(), "alertstream_start_time_seconds")
}
