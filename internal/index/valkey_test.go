package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Godzillas/alarm-analysis-system-sub000/internal/cache"
)

// stubCache is an in-memory cache.Provider. TTLs are recorded, not enforced;
// expiry behaviour is exercised through the index's own liveness filtering.
type stubCache struct {
	data map[string][]byte
	ttls map[string]time.Duration

	getErr error
	setErr error

	// hideGets makes the next N reads miss even when the key exists, to
	// interleave a write between a caller's read and its SetNX.
	hideGets int
}

func newStubCache() *stubCache {
	return &stubCache{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (s *stubCache) Get(_ context.Context, key string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.hideGets > 0 {
		s.hideGets--
		return nil, cache.ErrCacheMiss
	}
	value, ok := s.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return value, nil
}

func (s *stubCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *stubCache) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = value
	s.ttls[key] = ttl
	return true, nil
}

func (s *stubCache) Del(_ context.Context, key string) error {
	delete(s.data, key)
	delete(s.ttls, key)
	return nil
}

func (s *stubCache) Close() error { return nil }

func TestValkeyIndexInsertLookupMark(t *testing.T) {
	stub := newStubCache()
	idx := NewValkeyIndex(stub)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	record, err := idx.InsertNew(ctx, "digest-a", testAlert("web-01"), "alert-1", t0, testWindow)
	if err != nil {
		t.Fatalf("InsertNew: %v", err)
	}
	if record.OccurrenceCount != 1 {
		t.Fatalf("fresh record malformed: %+v", record)
	}
	if ttl := stub.ttls["dedup:fp:digest-a"]; ttl != testWindow {
		t.Fatalf("key TTL = %v, want the time window %v", ttl, testWindow)
	}

	records, err := idx.Lookup(ctx, "digest-a", t0.Add(time.Second), testWindow)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(records) != 1 || records[0].RepresentativeAlertID != "alert-1" {
		t.Fatalf("unexpected lookup result: %+v", records)
	}
	if got := records[0].Representative.Host; got != "web-01" {
		t.Fatalf("representative snapshot lost in round-trip: %q", got)
	}

	marked, err := idx.MarkDuplicate(ctx, "digest-a", "alert-1", t0.Add(10*time.Second), testWindow)
	if err != nil {
		t.Fatalf("MarkDuplicate: %v", err)
	}
	if marked.OccurrenceCount != 2 || !marked.LastSeenAt.Equal(t0.Add(10*time.Second)) {
		t.Fatalf("mark did not refresh record: %+v", marked)
	}

	// The refresh must be visible to the next reader.
	records, err = idx.Lookup(ctx, "digest-a", t0.Add(11*time.Second), testWindow)
	if err != nil || records[0].OccurrenceCount != 2 {
		t.Fatalf("refreshed record not persisted: %+v err %v", records, err)
	}
}

func TestValkeyIndexMissAndExpiry(t *testing.T) {
	stub := newStubCache()
	idx := NewValkeyIndex(stub)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	records, err := idx.Lookup(ctx, "digest-unknown", t0, testWindow)
	if err != nil || records != nil {
		t.Fatalf("cache miss must read as absent, got %+v err %v", records, err)
	}

	if _, err := idx.InsertNew(ctx, "digest-a", testAlert("web-01"), "alert-1", t0, testWindow); err != nil {
		t.Fatalf("InsertNew: %v", err)
	}

	// The key may outlive individual generations; reads re-check liveness.
	records, err = idx.Lookup(ctx, "digest-a", t0.Add(testWindow+time.Second), testWindow)
	if err != nil || len(records) != 0 {
		t.Fatalf("expired record must be filtered on read, got %+v err %v", records, err)
	}

	if _, err := idx.MarkDuplicate(ctx, "digest-a", "alert-1", t0.Add(testWindow+time.Second), testWindow); !errors.Is(err, ErrNotFound) {
		t.Fatalf("marking an expired generation must return ErrNotFound, got %v", err)
	}
}

func TestValkeyIndexGenerations(t *testing.T) {
	stub := newStubCache()
	idx := NewValkeyIndex(stub)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := idx.InsertNew(ctx, "digest-a", testAlert("web-01"), "alert-1", t0, testWindow); err != nil {
		t.Fatalf("InsertNew: %v", err)
	}
	if _, err := idx.AppendGeneration(ctx, "digest-a", testAlert("db-07"), "alert-2", t0.Add(time.Second), testWindow); err != nil {
		t.Fatalf("AppendGeneration: %v", err)
	}

	records, err := idx.Lookup(ctx, "digest-a", t0.Add(2*time.Second), testWindow)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected two generations, got %d", len(records))
	}
	if _, err := idx.MarkDuplicate(ctx, "digest-a", "alert-2", t0.Add(3*time.Second), testWindow); err != nil {
		t.Fatalf("MarkDuplicate on second generation: %v", err)
	}
}

func TestValkeyIndexInsertRace(t *testing.T) {
	// Two engine processes sharing one cache race on a brand-new digest.
	stub := newStubCache()
	winner := NewValkeyIndex(stub)
	loser := NewValkeyIndex(stub)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := winner.InsertNew(ctx, "digest-a", testAlert("web-01"), "alert-a", t0, testWindow); err != nil {
		t.Fatalf("winner InsertNew: %v", err)
	}

	_, err := loser.InsertNew(ctx, "digest-a", testAlert("web-01"), "alert-b", t0.Add(time.Millisecond), testWindow)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("losing insert must conflict, got %v", err)
	}
	if len(conflict.Records) != 1 || conflict.Records[0].RepresentativeAlertID != "alert-a" {
		t.Fatalf("conflict must carry the winner's record: %+v", conflict.Records)
	}

	records, err := loser.Lookup(ctx, "digest-a", t0.Add(time.Second), testWindow)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("digest must hold exactly one live record after the race, got %d", len(records))
	}
}

func TestValkeyIndexInsertRaceLostSetNX(t *testing.T) {
	// The competing write lands between the loser's read and its SetNX.
	stub := newStubCache()
	winner := NewValkeyIndex(stub)
	loser := NewValkeyIndex(stub)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := winner.InsertNew(ctx, "digest-a", testAlert("web-01"), "alert-a", t0, testWindow); err != nil {
		t.Fatalf("winner InsertNew: %v", err)
	}

	stub.hideGets = 1
	_, err := loser.InsertNew(ctx, "digest-a", testAlert("web-01"), "alert-b", t0.Add(time.Millisecond), testWindow)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("lost SetNX must surface as a conflict, got %v", err)
	}
	if conflict.Records[0].RepresentativeAlertID != "alert-a" {
		t.Fatalf("conflict must carry the winner's record: %+v", conflict.Records)
	}
}

func TestValkeyIndexInsertSupersedesExpired(t *testing.T) {
	stub := newStubCache()
	idx := NewValkeyIndex(stub)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := idx.InsertNew(ctx, "digest-a", testAlert("web-01"), "alert-1", t0, testWindow); err != nil {
		t.Fatalf("InsertNew: %v", err)
	}

	// The key still exists but its only generation is past the window.
	record, err := idx.InsertNew(ctx, "digest-a", testAlert("web-02"), "alert-2", t0.Add(testWindow+time.Second), testWindow)
	if err != nil {
		t.Fatalf("InsertNew over expired key: %v", err)
	}
	if record.RepresentativeAlertID != "alert-2" {
		t.Fatalf("expired generation must be superseded, got %+v", record)
	}

	records, err := idx.Lookup(ctx, "digest-a", t0.Add(testWindow+2*time.Second), testWindow)
	if err != nil || len(records) != 1 || records[0].RepresentativeAlertID != "alert-2" {
		t.Fatalf("only the superseding record must be live, got %+v err %v", records, err)
	}
}

func TestValkeyIndexSurfacesProviderErrors(t *testing.T) {
	stub := newStubCache()
	stub.getErr = errors.New("connection refused")
	idx := NewValkeyIndex(stub)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := idx.Lookup(ctx, "digest-a", t0, testWindow); err == nil {
		t.Fatal("provider failure must surface from Lookup")
	}
	if _, err := idx.InsertNew(ctx, "digest-a", testAlert("web-01"), "alert-1", t0, testWindow); err == nil {
		t.Fatal("provider failure must surface from InsertNew")
	}
	if _, err := idx.AppendGeneration(ctx, "digest-a", testAlert("web-01"), "alert-1", t0, testWindow); err == nil {
		t.Fatal("provider failure must surface from AppendGeneration")
	}
	if _, err := idx.MarkDuplicate(ctx, "digest-a", "alert-1", t0, testWindow); err == nil {
		t.Fatal("provider failure must surface from MarkDuplicate")
	}
}

func TestValkeyIndexCorruptPayload(t *testing.T) {
	stub := newStubCache()
	stub.data["dedup:fp:digest-a"] = []byte("{not json")
	idx := NewValkeyIndex(stub)

	if _, err := idx.Lookup(context.Background(), "digest-a", time.Now().UTC(), testWindow); err == nil {
		t.Fatal("corrupt payload must surface as an error")
	}
}

func TestValkeyIndexNilProviderFallsBackToNoop(t *testing.T) {
	idx := NewValkeyIndex(nil)
	records, err := idx.Lookup(context.Background(), "digest-a", time.Now().UTC(), testWindow)
	if err != nil || records != nil {
		t.Fatalf("noop-backed index must read as empty, got %+v err %v", records, err)
	}
}
