// Package engine implements the alarm deduplication core: field
// normalisation, content fingerprinting, similarity scoring and the
// window-scoped duplicate decision.
package engine

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Godzillas/alarm-analysis-system-sub000/internal/index"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/models"
)

// lockStripes bounds the per-digest mutual exclusion pool. Operations on
// different digests proceed in parallel; operations on one digest serialise.
const lockStripes = 64

// Engine classifies incoming alerts as new or duplicate-of-X. It mutates only
// its recency index and statistics; alert persistence and notification stay
// with the caller.
type Engine struct {
	logger      *slog.Logger
	config      *ConfigHandle
	scorer      *Scorer
	index       index.RecencyIndex
	stats       *Stats
	locks       [lockStripes]sync.Mutex
	degradedLog *rate.Limiter
}

// New constructs an Engine around the supplied config handle, scorer and
// recency index.
func New(logger *slog.Logger, config *ConfigHandle, scorer *Scorer, idx index.RecencyIndex) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:      logger,
		config:      config,
		scorer:      scorer,
		index:       idx,
		stats:       NewStats(),
		degradedLog: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Process classifies one alert. alertID is the caller-allocated id the alert
// will be stored under if it turns out to be new; now is the processing time
// the sliding window is evaluated against. The alert itself is never mutated.
func (e *Engine) Process(ctx context.Context, alert models.AlertEvent, alertID string, now time.Time) (models.DedupDecision, error) {
	if alert.Title == "" {
		return models.DedupDecision{}, &models.InvalidAlertError{Field: "title"}
	}

	cfg := e.config.Load()

	fp, err := ComputeFingerprint(alert, cfg.Strategy, cfg.ImportantTagKeys)
	if err != nil {
		return models.DedupDecision{}, err
	}

	if !cfg.Enabled {
		// Fingerprint is still reported for observability, but neither the
		// index nor the counters move.
		return models.DedupDecision{Fingerprint: fp}, nil
	}

	lock := e.digestLock(fp.Digest)
	lock.Lock()
	defer lock.Unlock()

	candidates, err := e.index.Lookup(ctx, fp.Digest, now, cfg.TimeWindow)
	if err != nil {
		return e.failOpen(fp, cfg.Strategy, err), nil
	}

	if len(candidates) == 0 {
		_, err := e.index.InsertNew(ctx, fp.Digest, alert, alertID, now, cfg.TimeWindow)
		if err == nil {
			e.stats.recordProcessed(cfg.Strategy, false)
			return models.DedupDecision{Fingerprint: fp}, nil
		}
		var conflict *index.ConflictError
		if !errors.As(err, &conflict) {
			return e.failOpen(fp, cfg.Strategy, err), nil
		}
		// Another process registered the digest between our lookup and
		// insert; classify against the winner's records instead.
		candidates = conflict.Records
	}

	anchor, score := e.bestCandidate(alert, candidates)

	duplicate := true
	if cfg.Strategy == models.StrategyLoose {
		// A loose digest collapses aggressively, so equality alone is not
		// enough: the candidate must also clear the similarity threshold
		// (inclusive boundary).
		duplicate = score >= cfg.SimilarityThreshold
	}

	if !duplicate {
		// Genuinely new alert behind a colliding loose digest: register a
		// fresh generation instead of merging or overwriting.
		if _, err := e.index.AppendGeneration(ctx, fp.Digest, alert, alertID, now, cfg.TimeWindow); err != nil {
			return e.failOpen(fp, cfg.Strategy, err), nil
		}
		e.stats.recordProcessed(cfg.Strategy, false)
		return models.DedupDecision{Fingerprint: fp, SimilarityScore: score, Scored: true}, nil
	}

	decision := models.DedupDecision{
		IsDuplicate:     true,
		OriginalAlertID: anchor.RepresentativeAlertID,
		SimilarityScore: score,
		Scored:          true,
		Fingerprint:     fp,
	}
	if _, err := e.index.MarkDuplicate(ctx, fp.Digest, anchor.RepresentativeAlertID, now, cfg.TimeWindow); err != nil {
		// The classification stands; only the occurrence bookkeeping is lost.
		e.noteDegraded(err)
		decision.Degraded = true
	}
	e.stats.recordProcessed(cfg.Strategy, true)
	return decision, nil
}

// UpdateConfig swaps in a new validated config; on error the previous config
// stays active.
func (e *Engine) UpdateConfig(cfg models.DedupConfig) error {
	if err := e.config.Update(cfg); err != nil {
		return err
	}
	e.logger.Info("dedup config updated",
		slog.String("strategy", string(cfg.Strategy)),
		slog.Float64("threshold", cfg.SimilarityThreshold),
		slog.Duration("window", cfg.TimeWindow),
		slog.Bool("enabled", cfg.Enabled),
	)
	return nil
}

// Config returns the active configuration.
func (e *Engine) Config() models.DedupConfig {
	return e.config.Load()
}

// Statistics returns a snapshot of the running counters.
func (e *Engine) Statistics() models.Statistics {
	return e.stats.Snapshot()
}

// bestCandidate scores the alert against every live generation and returns
// the closest one. Strict and normal digests hold a single generation, so
// this degenerates to scoring the window anchor.
func (e *Engine) bestCandidate(alert models.AlertEvent, candidates []models.FingerprintRecord) (models.FingerprintRecord, float64) {
	best := candidates[0]
	bestScore := e.scorer.Score(alert, best.Representative)
	for _, candidate := range candidates[1:] {
		if score := e.scorer.Score(alert, candidate.Representative); score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best, bestScore
}

// failOpen accepts the alert as new when the backing index is unreachable.
// Availability wins over precision here: ingestion must not block on the
// cache, and operators can watch the degraded counter for elevated rates.
func (e *Engine) failOpen(fp models.Fingerprint, strategy models.Strategy, err error) models.DedupDecision {
	e.noteDegraded(err)
	e.stats.recordProcessed(strategy, false)
	return models.DedupDecision{Fingerprint: fp, Degraded: true}
}

func (e *Engine) noteDegraded(err error) {
	e.stats.recordDegraded()
	if e.degradedLog.Allow() {
		e.logger.Warn("recency index unavailable, deduplication degraded", slog.Any("error", err))
	}
}

func (e *Engine) digestLock(digest string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(digest))
	return &e.locks[h.Sum32()%lockStripes]
}
