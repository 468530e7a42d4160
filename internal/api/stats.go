package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"Go2NetGuard/internal/adaptive"
	"Go2NetGuard/internal/logger"
)

func (s *Server) mlMetrics(w http.ResponseWriter, r *http.Request) {
	if s.Trainer == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.Trainer.Metrics())
}

type retrainResponse struct {
	Retrained bool                    `json:"retrained"`
	Reason    string                  `json:"reason,omitempty"`
	Result    *adaptive.RetrainResult `json:"result,omitempty"`
}

func (s *Server) retrain(w http.ResponseWriter, r *http.Request) {
	if s.Trainer == nil {
		writeError(w, http.StatusServiceUnavailable, "adaptive training is disabled")
		return
	}
	timeout := s.RetrainTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	res, err := s.Trainer.Retrain(ctx)
	switch {
	case errors.Is(err, adaptive.ErrInsufficientSamples):
		writeJSON(w, http.StatusOK, retrainResponse{Reason: err.Error(), Result: &res})
	case err != nil:
		logger.Errorf("Manual retrain failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, retrainResponse{Retrained: true, Result: &res})
	}
}
