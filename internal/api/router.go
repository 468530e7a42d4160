// Package api exposes the engine's response, model and alert state over
// HTTP, and a gRPC health service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"Go2NetGuard/internal/adaptive"
	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/query"
	"Go2NetGuard/internal/response"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServiceName is reported by /health and the gRPC health service.
const ServiceName = "Go2NetGuard"

// Responder is the part of the response controller the API drives.
type Responder interface {
	Block(ip string, threatType model.ThreatType, severity model.Severity, description string) response.Result
	Unblock(ip string) response.Result
	Blocked() []model.BlockedEntry
	Logs(limit int) []model.AuditEntry
}

// Trainer is the part of the adaptive manager the API drives.
type Trainer interface {
	Metrics() adaptive.Metrics
	Retrain(ctx context.Context) (adaptive.RetrainResult, error)
}

// Server holds the dependencies of the HTTP handlers. Any of them may be nil;
// the matching routes then answer with an empty "no data yet" payload.
type Server struct {
	Responder Responder
	Trainer   Trainer
	Alerts    query.Querier
	WebSocket http.Handler
	Gatherer  prometheus.Gatherer

	// Engine, when set, receives the response, stats and websocket routes
	// instead of the local handlers.
	Engine http.Handler

	// RetrainTimeout bounds a manual retrain.
	RetrainTimeout time.Duration
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	if s.Engine != nil {
		r.PathPrefix("/response/").Handler(s.Engine)
		r.PathPrefix("/stats/").Handler(s.Engine)
		r.Handle("/ws", s.Engine)
	} else {
		r.HandleFunc("/response/blocked", s.blocked).Methods(http.MethodGet)
		r.HandleFunc("/response/block/{ip}", s.block).Methods(http.MethodPost)
		r.HandleFunc("/response/unblock/{ip}", s.unblock).Methods(http.MethodDelete)
		r.HandleFunc("/response/logs", s.logs).Methods(http.MethodGet)

		r.HandleFunc("/stats/ml-metrics", s.mlMetrics).Methods(http.MethodGet)
		r.HandleFunc("/stats/retrain", s.retrain).Methods(http.MethodPost)
	}

	if s.Alerts != nil {
		r.HandleFunc("/alerts", s.alerts).Methods(http.MethodGet)
		r.HandleFunc("/alerts/", s.alerts).Methods(http.MethodGet)
		r.HandleFunc("/alerts/stats/summary", s.summary).Methods(http.MethodGet)
	}
	if s.WebSocket != nil && s.Engine == nil {
		r.Handle("/ws", s.WebSocket)
	}
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": ServiceName})
}
