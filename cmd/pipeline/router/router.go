// Package router configures the pipeline's read-only HTTP API.
//
// Routes configured:
//   - GET /healthz - Health check (pings the store when it supports pinging)
//   - GET /metrics - Prometheus metrics endpoint
//   - GET /sessions?kind=<collection|analysis|scaling> - List sessions
//   - GET /analysis/records?session=<id> - Performance records of a session
//   - GET /analysis/recommendations?session=<id> - Ranked opportunities
//   - GET /scaling/operations?session=<id> - Scaling operations of a session
//   - GET /aggregates?window=<duration> - Per-metric aggregates over a window
//
// All responses are JSON. Errors use the {"error":"<msg>"} shape.
package router

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/metrial/pkg/collect"
	"github.com/HatiCode/metrial/pkg/httpx"
	"github.com/HatiCode/metrial/pkg/storage"
)

const requestTimeout = 2 * time.Second

var sessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,127}$`)

// SetupRoutes configures the HTTP endpoints of the pipeline API.
func SetupRoutes(store storage.Store, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/healthz", httpx.HealthHandler(healthCheck(store)))
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/sessions", handleSessions(store, logger))
	mux.HandleFunc("/analysis/records", handleRecords(store, logger))
	mux.HandleFunc("/analysis/recommendations", handleRecommendations(store, logger))
	mux.HandleFunc("/scaling/operations", handleOperations(store, logger))
	mux.HandleFunc("/aggregates", handleAggregates(store, logger))

	return mux
}

// healthCheck pings the store when the backend supports it. The memory
// backend has nothing to probe.
func healthCheck(store storage.Store) func() error {
	pinger, ok := store.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return pinger.Ping(ctx)
	}
}

func handleSessions(store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := storage.SessionKind(r.URL.Query().Get("kind"))
		switch kind {
		case "", storage.SessionCollection, storage.SessionAnalysis, storage.SessionScaling:
		default:
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid kind (must be collection, analysis, or scaling)")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		sessions, err := store.ListSessions(ctx, kind)
		if err != nil {
			logger.Error("failed to list sessions", "kind", kind, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if sessions == nil {
			sessions = []storage.Session{}
		}

		writeList(w, logger, sessions)
	}
}

func handleRecords(store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionParam(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		records, err := store.PerformanceRecords(ctx, sessionID)
		if err != nil {
			logger.Error("failed to load performance records", "session", sessionID, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if records == nil {
			records = []storage.PerformanceRecord{}
		}

		writeList(w, logger, records)
	}
}

func handleRecommendations(store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionParam(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		opportunities, err := store.Opportunities(ctx, sessionID)
		if err != nil {
			logger.Error("failed to load opportunities", "session", sessionID, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if opportunities == nil {
			opportunities = []storage.Opportunity{}
		}

		writeList(w, logger, opportunities)
	}
}

func handleOperations(store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionParam(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		operations, err := store.ScalingOperations(ctx, sessionID)
		if err != nil {
			logger.Error("failed to load scaling operations", "session", sessionID, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if operations == nil {
			operations = []storage.ScalingOperation{}
		}

		writeList(w, logger, operations)
	}
}

func handleAggregates(store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window := time.Hour
		if param := r.URL.Query().Get("window"); param != "" {
			parsed, err := time.ParseDuration(param)
			if err != nil || parsed <= 0 {
				httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid window (use a duration like 1h, 6h, or 24h)")
				return
			}
			window = parsed
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		aggregates, err := collect.Aggregates(ctx, store, window)
		if err != nil {
			logger.Error("failed to compute aggregates", "window", window, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if aggregates == nil {
			aggregates = []collect.Aggregate{}
		}

		writeList(w, logger, aggregates)
	}
}

// sessionParam extracts and validates the session query parameter, writing
// the error response itself when the parameter is missing or malformed.
func sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "session parameter required")
		return "", false
	}
	if !sessionIDRegex.MatchString(sessionID) {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid session id format")
		return "", false
	}
	return sessionID, true
}

func writeList(w http.ResponseWriter, logger *slog.Logger, v any) {
	if err := httpx.WriteJSON(w, http.StatusOK, v); err != nil {
		logger.Error("failed to write JSON response", "error", err)
	}
}
