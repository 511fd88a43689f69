// Package index implements the sliding-window recency index that maps
// fingerprint digests to their representative alerts. Two backends share the
// same contract: an in-process map for single-instance deployments and a
// Valkey-backed store for multi-process ones.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Godzillas/alarm-analysis-system-sub000/internal/models"
)

// ErrNotFound signals that no live record exists for a digest (or for the
// requested representative generation).
var ErrNotFound = errors.New("fingerprint record not found")

// ConflictError reports that a digest already held live records when a caller
// tried to register it as new. This happens when another process inserts
// between the caller's lookup and its insert; the winning records are carried
// so the caller can re-classify without another round-trip.
type ConflictError struct {
	Records []models.FingerprintRecord
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("digest already holds %d live record(s)", len(e.Records))
}

// RecencyIndex maps fingerprint digests to live FingerprintRecords. A record
// is live while now - last_seen_at <= window; expired records are treated as
// absent and removed lazily. A digest may hold several generations under the
// loose strategy, where low-similarity collisions register fresh records.
//
// Callers serialise Lookup and the paired Insert/Mark mutation per digest;
// the index itself only guarantees internally consistent storage.
type RecencyIndex interface {
	// Lookup returns all live records for the digest, oldest first.
	Lookup(ctx context.Context, digest string, now time.Time, window time.Duration) ([]models.FingerprintRecord, error)

	// InsertNew registers the first record for a digest, with occurrence
	// count 1 and both seen timestamps set to now. If live records already
	// exist — an insert from another process won the race — nothing is
	// written and a *ConflictError carrying the winners is returned.
	InsertNew(ctx context.Context, digest string, alert models.AlertEvent, alertID string, now time.Time, window time.Duration) (models.FingerprintRecord, error)

	// AppendGeneration registers an additional generation for a digest that
	// already holds live records. Only low-similarity collisions under the
	// loose strategy take this path; InsertNew is the first-writer path.
	AppendGeneration(ctx context.Context, digest string, alert models.AlertEvent, alertID string, now time.Time, window time.Duration) (models.FingerprintRecord, error)

	// MarkDuplicate increments the occurrence count and refreshes
	// last_seen_at on the generation anchored by representativeID. The
	// representative alert id never changes within a window.
	MarkDuplicate(ctx context.Context, digest, representativeID string, now time.Time, window time.Duration) (models.FingerprintRecord, error)
}

func isLive(record models.FingerprintRecord, now time.Time, window time.Duration) bool {
	// The window boundary is inclusive: a record exactly window old is live.
	return now.Sub(record.LastSeenAt) <= window
}

func newRecord(digest string, alert models.AlertEvent, alertID string, now time.Time) models.FingerprintRecord {
	return models.FingerprintRecord{
		Digest:                digest,
		RepresentativeAlertID: alertID,
		Representative:        cloneAlert(alert),
		FirstSeenAt:           now,
		LastSeenAt:            now,
		OccurrenceCount:       1,
	}
}

func cloneAlert(alert models.AlertEvent) models.AlertEvent {
	if alert.Tags != nil {
		tags := make(map[string]string, len(alert.Tags))
		for k, v := range alert.Tags {
			tags[k] = v
		}
		alert.Tags = tags
	}
	return alert
}
