package models

import "time"

// AlertEvent is an incoming alert as delivered by the ingestion layer. The
// engine treats it as read-only; only Title, Severity and OccurredAt are
// mandatory.
type AlertEvent struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Severity    Severity          `json:"severity"`
	Source      string            `json:"source,omitempty"`
	Host        string            `json:"host,omitempty"`
	Service     string            `json:"service,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Severity captures alert impact levels.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Valid reports whether the severity is one of the recognised levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Strategy selects which alert fields feed the fingerprint and how strictly
// fingerprint equality implies duplication.
type Strategy string

const (
	StrategyStrict Strategy = "strict"
	StrategyNormal Strategy = "normal"
	StrategyLoose  Strategy = "loose"
)

// Valid reports whether the strategy tag is recognised.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyStrict, StrategyNormal, StrategyLoose:
		return true
	}
	return false
}

// Fingerprint is a stable content digest for an alert under a given strategy.
// Two fingerprints are equal iff their digests are equal.
type Fingerprint struct {
	Digest   string   `json:"digest"`
	Strategy Strategy `json:"strategy"`
}

// FingerprintRecord tracks the representative alert for a fingerprint digest
// within the sliding time window. Representative holds a snapshot of the first
// alert's content so loose-strategy collisions can be re-scored without a
// storage round-trip.
type FingerprintRecord struct {
	Digest                string     `json:"digest"`
	RepresentativeAlertID string     `json:"representative_alert_id"`
	Representative        AlertEvent `json:"representative"`
	FirstSeenAt           time.Time  `json:"first_seen_at"`
	LastSeenAt            time.Time  `json:"last_seen_at"`
	OccurrenceCount       int64      `json:"occurrence_count"`
}

// DedupDecision is the engine's classification of a single incoming alert.
// The caller persists a new alert row or increments the original's counter;
// the engine itself stores nothing beyond its recency index.
type DedupDecision struct {
	IsDuplicate     bool        `json:"is_duplicate"`
	OriginalAlertID string      `json:"original_alert_id,omitempty"`
	SimilarityScore float64     `json:"similarity_score"`
	Scored          bool        `json:"scored"`
	Fingerprint     Fingerprint `json:"fingerprint"`
	// Degraded marks a fail-open decision taken because the backing index
	// was unreachable; the alert is accepted as new rather than dropped.
	Degraded bool `json:"degraded,omitempty"`
}

// StrategyStats breaks processed/duplicate counts down for one strategy.
type StrategyStats struct {
	Processed  uint64 `json:"processed"`
	Duplicates uint64 `json:"duplicates"`
}

// Statistics is a read-only snapshot of engine counters. Counters use relaxed
// increments, so values are approximate under concurrency and exact once the
// engine is quiescent.
type Statistics struct {
	TotalProcessed  uint64                     `json:"total_processed"`
	TotalDuplicates uint64                     `json:"total_duplicates"`
	DedupRate       float64                    `json:"dedup_rate"`
	Degraded        uint64                     `json:"degraded"`
	ByStrategy      map[Strategy]StrategyStats `json:"by_strategy"`
}
