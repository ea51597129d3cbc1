package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passingCheck() CheckFunc {
	return func(context.Context) error { return nil }
}

func failingCheck(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func runChecks(s *Service) {
	s.runAll(context.Background())
}

func decodeReport(t *testing.T, w *httptest.ResponseRecorder) report {
	t.Helper()
	var rep report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rep))
	return rep
}

func TestLiveEndpoint_AllPassing(t *testing.T) {
	s := New()
	s.AddLivenessCheck("check1", time.Second, passingCheck())
	s.AddLivenessCheck("check2", time.Second, passingCheck())
	runChecks(s)

	w := httptest.NewRecorder()
	s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	rep := decodeReport(t, w)
	assert.Equal(t, "ok", rep.Status)
	assert.Equal(t, "ok", rep.Checks["check1"])
}

func TestLiveEndpoint_FailingCheck(t *testing.T) {
	s := New()
	s.AddLivenessCheck("backend", time.Second, failingCheck("connection refused"))
	runChecks(s)

	w := httptest.NewRecorder()
	s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	rep := decodeReport(t, w)
	assert.Equal(t, "unavailable", rep.Status)
	assert.Equal(t, "connection refused", rep.Checks["backend"])
}

func TestReadyEndpoint_GatedBySetReady(t *testing.T) {
	s := New()
	s.AddReadinessCheck("backend", time.Second, passingCheck())
	runChecks(s)

	// Not ready until SetReady(true), even with passing checks.
	w := httptest.NewRecorder()
	s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s.SetReady(true)
	w = httptest.NewRecorder()
	s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Draining flips it back.
	s.SetReady(false)
	w = httptest.NewRecorder()
	s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStart_RunsChecksImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := New()
	s.AddLivenessCheck("probe", time.Second, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	s.Start(context.Background(), time.Hour)
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("check did not run on Start")
	}
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many goroutines")
}
