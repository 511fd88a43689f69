// Package api exposes the deduplication service over HTTP JSON. Routing,
// encoding and status mapping live here; authorization for the config
// endpoints is expected to be enforced by a gateway in front of this service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Godzillas/alarm-analysis-system-sub000/internal/models"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/service"
)

const (
	errCodeBadRequest    = "BAD_REQUEST"
	errCodeInternalError = "INTERNAL_ERROR"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type apiResponse struct {
	Data  interface{} `json:"data,omitempty"`
	Error *apiError   `json:"error,omitempty"`
}

// Handler serves the deduplication endpoints.
type Handler struct {
	svc    *service.DedupService
	logger *slog.Logger
}

// NewRouter wires all routes onto a chi router.
func NewRouter(svc *service.DedupService, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/alerts/process", h.ProcessAlert)
		r.Route("/dedup", func(r chi.Router) {
			r.Get("/stats", h.Statistics)
			r.Get("/config", h.GetConfig)
			r.Put("/config", h.UpdateConfig)
		})
	})
	return r
}

type processAlertRequest struct {
	// AlertID is the caller pre-allocated id for the alert row; generated
	// server-side when omitted.
	AlertID string `json:"alert_id,omitempty"`
	models.AlertEvent
}

type processAlertResponse struct {
	AlertID string `json:"alert_id"`
	models.DedupDecision
}

// ProcessAlert classifies one alert and returns the decision.
func (h *Handler) ProcessAlert(w http.ResponseWriter, r *http.Request) {
	var req processAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, apiError{Code: errCodeBadRequest, Message: "invalid request body"})
		return
	}

	decision, alertID, err := h.svc.ProcessAlert(r.Context(), req.AlertEvent, req.AlertID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	jsonOK(w, processAlertResponse{AlertID: alertID, DedupDecision: decision})
}

// Statistics returns the engine counter snapshot.
func (h *Handler) Statistics(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, h.svc.Statistics())
}

type configPayload struct {
	Strategy            string   `json:"strategy"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	TimeWindow          string   `json:"time_window"`
	Enabled             bool     `json:"enabled"`
	ImportantTagKeys    []string `json:"important_tag_keys,omitempty"`
}

// GetConfig returns the active deduplication configuration.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := h.svc.Config()
	jsonOK(w, configPayload{
		Strategy:            string(cfg.Strategy),
		SimilarityThreshold: cfg.SimilarityThreshold,
		TimeWindow:          cfg.TimeWindow.String(),
		Enabled:             cfg.Enabled,
		ImportantTagKeys:    cfg.ImportantTagKeys,
	})
}

// UpdateConfig replaces the active configuration as a whole. Invalid values
// leave the previous configuration in effect.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var payload configPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		jsonError(w, http.StatusBadRequest, apiError{Code: errCodeBadRequest, Message: "invalid request body"})
		return
	}

	window, err := time.ParseDuration(payload.TimeWindow)
	if err != nil {
		jsonError(w, http.StatusBadRequest, apiError{Code: errCodeBadRequest, Message: "invalid duration", Field: "time_window"})
		return
	}

	cfg := models.DedupConfig{
		Strategy:            models.Strategy(payload.Strategy),
		SimilarityThreshold: payload.SimilarityThreshold,
		TimeWindow:          window,
		Enabled:             payload.Enabled,
		ImportantTagKeys:    payload.ImportantTagKeys,
	}
	if err := h.svc.UpdateConfig(cfg); err != nil {
		h.writeDomainError(w, err)
		return
	}
	jsonOK(w, payload)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, map[string]string{"status": "ok"})
}

// writeDomainError maps engine errors onto HTTP status codes with field-level
// detail where available.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var invalidAlert *models.InvalidAlertError
	if errors.As(err, &invalidAlert) {
		jsonError(w, http.StatusBadRequest, apiError{Code: errCodeBadRequest, Message: err.Error(), Field: invalidAlert.Field})
		return
	}
	var configErr *models.ConfigurationError
	if errors.As(err, &configErr) {
		jsonError(w, http.StatusBadRequest, apiError{Code: errCodeBadRequest, Message: err.Error(), Field: configErr.Field})
		return
	}
	var strategyErr *models.InvalidStrategyError
	if errors.As(err, &strategyErr) {
		jsonError(w, http.StatusBadRequest, apiError{Code: errCodeBadRequest, Message: err.Error(), Field: "strategy"})
		return
	}
	h.logger.Error("request failed", slog.Any("error", err))
	jsonError(w, http.StatusInternalServerError, apiError{Code: errCodeInternalError, Message: "internal error"})
}

func jsonOK(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(apiResponse{Data: data})
}

func jsonError(w http.ResponseWriter, status int, apiErr apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Error: &apiErr})
}
