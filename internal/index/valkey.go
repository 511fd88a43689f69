package index

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Godzillas/alarm-analysis-system-sub000/internal/cache"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/models"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/utils"
)

const defaultKeyPrefix = "dedup:fp:"

// ValkeyIndex is a RecencyIndex backed by a shared Valkey/Redis-compatible
// cache, for deployments where several engine instances must agree on one
// recency window. Records are stored as a JSON array per digest with a TTL
// equal to the time window, mirroring the in-memory semantics.
type ValkeyIndex struct {
	provider  cache.Provider
	keyPrefix string
}

// NewValkeyIndex wraps a cache provider as a recency index.
func NewValkeyIndex(provider cache.Provider) *ValkeyIndex {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &ValkeyIndex{provider: provider, keyPrefix: defaultKeyPrefix}
}

// Lookup fetches and filters the live generations for a digest.
func (v *ValkeyIndex) Lookup(ctx context.Context, digest string, now time.Time, window time.Duration) ([]models.FingerprintRecord, error) {
	records, err := v.fetch(ctx, digest, now, window)
	if err != nil {
		return nil, utils.NewAppError("index.lookup", "cache read failed", err)
	}
	return records, nil
}

// InsertNew registers the first record for a digest. The write uses SetNX so
// two engine processes racing on a brand-new digest cannot both win: the loser
// sees the winner's records in a ConflictError and re-classifies instead of
// registering a second live record.
func (v *ValkeyIndex) InsertNew(ctx context.Context, digest string, alert models.AlertEvent, alertID string, now time.Time, window time.Duration) (models.FingerprintRecord, error) {
	record := newRecord(digest, alert, alertID, now)

	existing, err := v.fetch(ctx, digest, now, window)
	if err != nil {
		return models.FingerprintRecord{}, utils.NewAppError("index.insert", "cache read failed", err)
	}
	if len(existing) > 0 {
		return models.FingerprintRecord{}, &ConflictError{Records: existing}
	}

	payload, err := json.Marshal([]models.FingerprintRecord{record})
	if err != nil {
		return models.FingerprintRecord{}, utils.NewAppError("index.insert", "encode record", err)
	}
	ok, err := v.provider.SetNX(ctx, v.key(digest), payload, window)
	if err != nil {
		return models.FingerprintRecord{}, utils.NewAppError("index.insert", "cache write failed", err)
	}
	if ok {
		return record, nil
	}

	// Lost the race: the key appeared between our read and the SetNX.
	if existing, err = v.fetch(ctx, digest, now, window); err != nil {
		return models.FingerprintRecord{}, utils.NewAppError("index.insert", "cache re-read failed", err)
	}
	if len(existing) > 0 {
		return models.FingerprintRecord{}, &ConflictError{Records: existing}
	}
	// The key holds only expired generations; supersede them.
	if err := v.store(ctx, digest, []models.FingerprintRecord{record}, window); err != nil {
		return models.FingerprintRecord{}, err
	}
	return record, nil
}

// AppendGeneration adds a further generation alongside the digest's live ones.
func (v *ValkeyIndex) AppendGeneration(ctx context.Context, digest string, alert models.AlertEvent, alertID string, now time.Time, window time.Duration) (models.FingerprintRecord, error) {
	record := newRecord(digest, alert, alertID, now)

	existing, err := v.fetch(ctx, digest, now, window)
	if err != nil {
		return models.FingerprintRecord{}, utils.NewAppError("index.append", "cache read failed", err)
	}
	if err := v.store(ctx, digest, append(existing, record), window); err != nil {
		return models.FingerprintRecord{}, err
	}
	return record, nil
}

// MarkDuplicate refreshes the generation anchored by representativeID.
func (v *ValkeyIndex) MarkDuplicate(ctx context.Context, digest, representativeID string, now time.Time, window time.Duration) (models.FingerprintRecord, error) {
	records, err := v.fetch(ctx, digest, now, window)
	if err != nil {
		return models.FingerprintRecord{}, utils.NewAppError("index.mark", "cache read failed", err)
	}

	for i := range records {
		if records[i].RepresentativeAlertID == representativeID {
			records[i].OccurrenceCount++
			records[i].LastSeenAt = now
			if err := v.store(ctx, digest, records, window); err != nil {
				return models.FingerprintRecord{}, err
			}
			return records[i], nil
		}
	}
	return models.FingerprintRecord{}, ErrNotFound
}

func (v *ValkeyIndex) key(digest string) string {
	return v.keyPrefix + digest
}

func (v *ValkeyIndex) fetch(ctx context.Context, digest string, now time.Time, window time.Duration) ([]models.FingerprintRecord, error) {
	data, err := v.provider.Get(ctx, v.key(digest))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}

	var records []models.FingerprintRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	// The key TTL tracks the digest's newest generation; older generations
	// may expire sooner, so liveness is re-checked on every read.
	live := records[:0]
	for _, record := range records {
		if isLive(record, now, window) {
			live = append(live, record)
		}
	}
	return live, nil
}

func (v *ValkeyIndex) store(ctx context.Context, digest string, records []models.FingerprintRecord, window time.Duration) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return utils.NewAppError("index.store", "encode records", err)
	}
	if err := v.provider.Set(ctx, v.key(digest), payload, window); err != nil {
		return utils.NewAppError("index.store", "cache write failed", err)
	}
	return nil
}
