package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/inanna/internal/companion"
	"github.com/jordanhubbard/inanna/internal/logging"
	"github.com/jordanhubbard/inanna/internal/scheduler"
)

type fakeStatus struct {
	ran []string
}

func (*fakeStatus) QueueLen() int { return 3 }
func (*fakeStatus) Jobs() []scheduler.JobInfo {
	return []scheduler.JobInfo{{Tag: "wellbeing_check"}, {Tag: "external_fact"}}
}
func (*fakeStatus) Snapshot() companion.Snapshot { return companion.Snapshot{IAEmotion: "serena"} }
func (f *fakeStatus) RunTask(_ context.Context, tag string) error {
	switch tag {
	case "external_fact":
		f.ran = append(f.ran, tag)
		return nil
	case "wellbeing_check":
		return errors.New("fact source returned 503")
	}
	return fmt.Errorf("%w: %s", scheduler.ErrNoTask, tag)
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(&fakeStatus{})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, healthResponse{Status: "ok", Queue: 3, Jobs: 2, IAEmotion: "serena"}, body)
}

func TestHealthHandlerChecks(t *testing.T) {
	checks := []healthCheck{
		{name: "nats", probe: func() error { return errors.New("NATS connection not established") }},
		{name: "redis", probe: func() error { return nil }},
	}
	rec := httptest.NewRecorder()
	healthHandler(&fakeStatus{}, checks...)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["redis"])
	assert.Contains(t, body.Checks["nats"], "not established")
}

func TestHealthHandlerRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(&fakeStatus{})(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecentLogsHandler(t *testing.T) {
	var buf bytes.Buffer
	mgr := logging.NewManager("debug", &buf)
	mgr.Info("Core", "started", nil)
	mgr.Warn("Scheduler", "late job", nil)

	rec := httptest.NewRecorder()
	recentLogsHandler(mgr)(rec, httptest.NewRequest(http.MethodGet, "/logs/recent?limit=10&source=Scheduler", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []logging.LogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "late job", entries[0].Message)

	rec = httptest.NewRecorder()
	recentLogsHandler(mgr)(rec, httptest.NewRequest(http.MethodGet, "/logs/recent?limit=many", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobsHandlers(t *testing.T) {
	core := &fakeStatus{}

	rec := httptest.NewRecorder()
	jobsHandler(core)(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	var jobs []scheduler.JobInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 2)
	assert.Equal(t, "external_fact", jobs[0].Tag, "sorted by tag")

	tests := []struct {
		method string
		target string
		want   int
	}{
		{http.MethodPost, "/jobs/run?tag=external_fact", http.StatusOK},
		{http.MethodPost, "/jobs/run?tag=wellbeing_check", http.StatusBadGateway},
		{http.MethodPost, "/jobs/run?tag=nope", http.StatusNotFound},
		{http.MethodPost, "/jobs/run", http.StatusBadRequest},
		{http.MethodGet, "/jobs/run?tag=external_fact", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			runJobHandler(core)(rec, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, []string{"external_fact"}, core.ran)
}

func TestHTTPServerRoutes(t *testing.T) {
	srv := httptest.NewServer(newHTTPServer(":0", &fakeStatus{}, nil).Handler)
	defer srv.Close()

	for _, path := range []string{"/metrics", "/healthz", "/logs/recent", "/jobs"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
