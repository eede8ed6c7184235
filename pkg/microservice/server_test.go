package microservice_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/metrics"
	"github.com/illmade-knight/go-alertstream/pkg/microservice"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseServer_Endpoints(t *testing.T) {
	// Arrange
	reg := metrics.NewRegistry()
	reg.RecordAck("ztf-loop")
	srv := microservice.NewBaseServer(zerolog.Nop(), ":0", reg)
	ready := false
	srv.SetReadiness(func() (bool, string) {
		if ready {
			return true, "running"
		}
		return false, "idle"
	})

	get := func(path string) (int, string) {
		rec := httptest.NewRecorder()
		srv.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code, rec.Body.String()
	}

	// Act & Assert
	code, body := get("/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, body = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "idle", body)

	ready = true
	code, body = get("/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "running", body)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `alertstream_messages_total{outcome="ack",subscription="ztf-loop"} 1`)
}

func TestBaseServer_StartAndShutdown(t *testing.T) {
	srv := microservice.NewBaseServer(zerolog.Nop(), "127.0.0.1:0", nil)
	require.NoError(t, srv.Start())

	port := srv.GetHTTPPort()
	require.NotEqual(t, ":0", port)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1%s/healthz", port))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(fmt.Sprintf("http://127.0.0.1%s/metrics", port))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}
