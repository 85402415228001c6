package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sincerelyyyash/a8n-v2/core"
)

func TestReporterPostsUpdateWithSecret(t *testing.T) {
	var gotPath, gotSecret string
	var gotUpdate StatusUpdate

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSecret = r.Header.Get("X-Engine-Secret")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotUpdate))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reporter := NewHTTPStatusReporter(server.URL, "s3cret",
		WithReporterLogger(&core.NoOpLogger{}))

	err := reporter.Report(context.Background(), StatusUpdate{
		ExecutionID: "exec-1",
		Status:      StatusCompleted,
		Result:      map[string]interface{}{"ok": true},
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/execution/status/update", gotPath)
	assert.Equal(t, "s3cret", gotSecret)
	assert.Equal(t, "exec-1", gotUpdate.ExecutionID)
	assert.Equal(t, StatusCompleted, gotUpdate.Status)
}

func TestReporterRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reporter := NewHTTPStatusReporter(server.URL, "s3cret",
		WithReporterLogger(&core.NoOpLogger{}))

	err := reporter.Report(context.Background(), StatusUpdate{
		ExecutionID: "exec-2",
		Status:      StatusProcessing,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestReporterGivesUpAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	reporter := NewHTTPStatusReporter(server.URL, "s3cret",
		WithReporterLogger(&core.NoOpLogger{}))

	err := reporter.Report(context.Background(), StatusUpdate{
		ExecutionID: "exec-3",
		Status:      StatusFailed,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRequestFailed)
	assert.Equal(t, int32(3), calls.Load())
}

func TestReporterDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	reporter := NewHTTPStatusReporter(server.URL, "wrong-secret",
		WithReporterLogger(&core.NoOpLogger{}))

	err := reporter.Report(context.Background(), StatusUpdate{
		ExecutionID: "exec-5",
		Status:      StatusProcessing,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRequestFailed)
	// A rejection cannot change on retry; exactly one attempt is made.
	assert.Equal(t, int32(1), calls.Load())
}

func TestReporterHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	reporter := NewHTTPStatusReporter(server.URL, "s3cret",
		WithReporterLogger(&core.NoOpLogger{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := reporter.Report(ctx, StatusUpdate{ExecutionID: "exec-4", Status: StatusFailed})
	require.Error(t, err)
}
