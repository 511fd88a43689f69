package index

import (
	"context"
	"sync"
	"time"

	"github.com/Godzillas/alarm-analysis-system-sub000/internal/models"
)

// MemoryIndex is the in-process RecencyIndex backend: a mutex-guarded map
// bounded by digest count, with lazy expiry on lookup and an optional
// periodic sweep driven by the caller.
type MemoryIndex struct {
	mu         sync.Mutex
	entries    map[string][]models.FingerprintRecord
	maxEntries int
}

// NewMemoryIndex creates an index bounded to maxEntries digests. A
// non-positive bound falls back to 10000.
func NewMemoryIndex(maxEntries int) *MemoryIndex {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryIndex{
		entries:    make(map[string][]models.FingerprintRecord),
		maxEntries: maxEntries,
	}
}

// Lookup returns live records for the digest, dropping expired generations.
func (m *MemoryIndex) Lookup(_ context.Context, digest string, now time.Time, window time.Duration) ([]models.FingerprintRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveLocked(digest, now, window), nil
}

// InsertNew registers the first record for the digest. Live records already
// present win: nothing is written and they come back in a ConflictError.
func (m *MemoryIndex) InsertNew(_ context.Context, digest string, alert models.AlertEvent, alertID string, now time.Time, window time.Duration) (models.FingerprintRecord, error) {
	record := newRecord(digest, alert, alertID, now)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing := m.liveLocked(digest, now, window); len(existing) > 0 {
		return models.FingerprintRecord{}, &ConflictError{Records: existing}
	}

	if _, exists := m.entries[digest]; !exists && len(m.entries) >= m.maxEntries {
		m.evictOldestLocked()
	}
	// Expired leftovers under the digest are superseded, not appended to.
	m.entries[digest] = []models.FingerprintRecord{record}
	return record, nil
}

// AppendGeneration adds a further generation alongside the existing ones.
func (m *MemoryIndex) AppendGeneration(_ context.Context, digest string, alert models.AlertEvent, alertID string, now time.Time, _ time.Duration) (models.FingerprintRecord, error) {
	record := newRecord(digest, alert, alertID, now)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[digest]; !exists && len(m.entries) >= m.maxEntries {
		m.evictOldestLocked()
	}
	m.entries[digest] = append(m.entries[digest], record)
	return record, nil
}

// liveLocked filters the digest's records in place and returns a copy of the
// survivors.
func (m *MemoryIndex) liveLocked(digest string, now time.Time, window time.Duration) []models.FingerprintRecord {
	records, ok := m.entries[digest]
	if !ok {
		return nil
	}
	live := records[:0]
	for _, record := range records {
		if isLive(record, now, window) {
			live = append(live, record)
		}
	}
	if len(live) == 0 {
		delete(m.entries, digest)
		return nil
	}
	m.entries[digest] = live

	out := make([]models.FingerprintRecord, len(live))
	copy(out, live)
	return out
}

// MarkDuplicate refreshes the generation anchored by representativeID.
func (m *MemoryIndex) MarkDuplicate(_ context.Context, digest, representativeID string, now time.Time, _ time.Duration) (models.FingerprintRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.entries[digest]
	for i := range records {
		if records[i].RepresentativeAlertID == representativeID {
			records[i].OccurrenceCount++
			records[i].LastSeenAt = now
			return records[i], nil
		}
	}
	return models.FingerprintRecord{}, ErrNotFound
}

// Sweep removes all expired records and empty digests, returning how many
// records were evicted. Callers run it on a ticker; lookups already expire
// lazily, so sweeping only reclaims memory for digests that stopped firing.
func (m *MemoryIndex) Sweep(now time.Time, window time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for digest, records := range m.entries {
		live := records[:0]
		for _, record := range records {
			if isLive(record, now, window) {
				live = append(live, record)
			} else {
				removed++
			}
		}
		if len(live) == 0 {
			delete(m.entries, digest)
			continue
		}
		m.entries[digest] = live
	}
	return removed
}

// Len returns the number of tracked digests.
func (m *MemoryIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// evictOldestLocked drops the digest whose freshest generation is stalest.
// MarkDuplicate refreshes generations in place, so any of them may hold the
// digest's newest timestamp.
func (m *MemoryIndex) evictOldestLocked() {
	var (
		oldestDigest string
		oldestSeen   time.Time
	)
	for digest, records := range m.entries {
		newest := records[0].LastSeenAt
		for _, record := range records[1:] {
			if record.LastSeenAt.After(newest) {
				newest = record.LastSeenAt
			}
		}
		if oldestDigest == "" || newest.Before(oldestSeen) {
			oldestDigest = digest
			oldestSeen = newest
		}
	}
	if oldestDigest != "" {
		delete(m.entries, oldestDigest)
	}
}
