// Package service exposes the deduplication engine to the transport layer:
// input validation, alert id provenance, metrics and latency bookkeeping.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Godzillas/alarm-analysis-system-sub000/internal/engine"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/metrics"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/models"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/utils"
)

// DedupService is the facade the API layer calls into.
type DedupService struct {
	logger    *slog.Logger
	engine    *engine.Engine
	latencies *utils.LatencyTracker
	now       func() time.Time
}

// NewDedupService constructs the service facade.
func NewDedupService(logger *slog.Logger, eng *engine.Engine) *DedupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DedupService{
		logger:    logger,
		engine:    eng,
		latencies: utils.NewLatencyTracker(1024),
		now:       time.Now,
	}
}

// ProcessAlert validates and classifies one incoming alert. When the caller
// did not pre-allocate an alert id, one is generated here so the engine and
// the alert store agree on id provenance. The id the decision is anchored on
// is returned alongside it.
func (s *DedupService) ProcessAlert(ctx context.Context, alert models.AlertEvent, alertID string) (models.DedupDecision, string, error) {
	if alert.Title == "" {
		return models.DedupDecision{}, "", &models.InvalidAlertError{Field: "title"}
	}
	if alert.Severity == "" || !alert.Severity.Valid() {
		return models.DedupDecision{}, "", &models.InvalidAlertError{Field: "severity"}
	}
	if alert.OccurredAt.IsZero() {
		return models.DedupDecision{}, "", &models.InvalidAlertError{Field: "occurred_at"}
	}
	if alertID == "" {
		alertID = uuid.NewString()
	}

	start := s.now()
	decision, err := s.engine.Process(ctx, alert, alertID, start.UTC())
	duration := s.now().Sub(start)
	if err != nil {
		s.logger.Error("alert classification failed", slog.Any("error", err))
		return models.DedupDecision{}, "", err
	}

	metrics.ObserveProcess(duration, string(decision.Fingerprint.Strategy), decision.IsDuplicate)
	if decision.Degraded {
		metrics.RecordDegraded()
	}
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 100 && count%100 == 0 {
		s.logger.Info("dedup latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count),
		)
	}

	s.logger.Debug("alert classified",
		slog.String("alert_id", alertID),
		slog.String("digest", decision.Fingerprint.Digest),
		slog.Bool("duplicate", decision.IsDuplicate),
	)
	return decision, alertID, nil
}

// Statistics returns the engine's counter snapshot.
func (s *DedupService) Statistics() models.Statistics {
	return s.engine.Statistics()
}

// Config returns the active deduplication configuration.
func (s *DedupService) Config() models.DedupConfig {
	return s.engine.Config()
}

// UpdateConfig applies a validated configuration update. Authorization is the
// caller's concern; only the shape of the config is checked here.
func (s *DedupService) UpdateConfig(cfg models.DedupConfig) error {
	return s.engine.UpdateConfig(cfg)
}
