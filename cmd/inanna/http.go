package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jordanhubbard/inanna/internal/companion"
	"github.com/jordanhubbard/inanna/internal/logging"
	"github.com/jordanhubbard/inanna/internal/scheduler"
)

// statusSource is the part of the core the ops endpoints use
type statusSource interface {
	QueueLen() int
	Jobs() []scheduler.JobInfo
	Snapshot() companion.Snapshot
	RunTask(ctx context.Context, tag string) error
}

type logSource interface {
	GetRecent(limit int, levelFilter, sourceFilter string) []logging.LogEntry
}

// healthCheck is an optional dependency probe reported by /healthz
type healthCheck struct {
	name  string
	probe func() error
}

type healthResponse struct {
	Status    string            `json:"status"`
	Queue     int               `json:"queue"`
	Jobs      int               `json:"jobs"`
	IAEmotion string            `json:"ia_emotion"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func newHTTPServer(addr string, core statusSource, logs logSource, checks ...healthCheck) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthHandler(core, checks...))
	mux.HandleFunc("/logs/recent", recentLogsHandler(logs))
	mux.HandleFunc("/jobs", jobsHandler(core))
	mux.HandleFunc("/jobs/run", runJobHandler(core))

	return &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(mux, "inanna-http-server"),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func healthHandler(core statusSource, checks ...healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		resp := healthResponse{
			Status:    "ok",
			Queue:     core.QueueLen(),
			Jobs:      len(core.Jobs()),
			IAEmotion: core.Snapshot().IAEmotion,
		}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
			for _, c := range checks {
				if err := c.probe(); err != nil {
					resp.Checks[c.name] = err.Error()
					resp.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[c.name] = "ok"
			}
		}
		writeJSON(w, status, resp)
	}
}

// recentLogsHandler serves the log buffer, newest first.
// Query parameters: limit, level, source.
func recentLogsHandler(logs logSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		limit := 100
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		entries := []logging.LogEntry{}
		if logs != nil {
			entries = logs.GetRecent(limit, q.Get("level"), q.Get("source"))
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func jobsHandler(core statusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		jobs := core.Jobs()
		sort.Slice(jobs, func(i, j int) bool { return jobs[i].Tag < jobs[j].Tag })
		writeJSON(w, http.StatusOK, jobs)
	}
}

// runJobHandler runs the job named by the tag query parameter now
func runJobHandler(core statusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tag := r.URL.Query().Get("tag")
		if tag == "" {
			http.Error(w, "tag is required", http.StatusBadRequest)
			return
		}
		err := core.RunTask(r.Context(), tag)
		switch {
		case errors.Is(err, scheduler.ErrNoTask):
			http.Error(w, err.Error(), http.StatusNotFound)
		case err != nil:
			writeJSON(w, http.StatusBadGateway, map[string]string{"tag": tag, "error": err.Error()})
		default:
			writeJSON(w, http.StatusOK, map[string]string{"tag": tag, "status": "completed"})
		}
	}
}
