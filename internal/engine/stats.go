package engine

import (
	"sync/atomic"

	"github.com/Godzillas/alarm-analysis-system-sub000/internal/models"
)

// Stats tracks monotonic engine counters. Increments are relaxed: exact
// real-time accuracy is not required, snapshots are exact once the engine is
// quiescent.
type Stats struct {
	processed  atomic.Uint64
	duplicates atomic.Uint64
	degraded   atomic.Uint64
	byStrategy map[models.Strategy]*strategyCounters
}

type strategyCounters struct {
	processed  atomic.Uint64
	duplicates atomic.Uint64
}

// NewStats returns zeroed counters for all known strategies.
func NewStats() *Stats {
	return &Stats{
		byStrategy: map[models.Strategy]*strategyCounters{
			models.StrategyStrict: {},
			models.StrategyNormal: {},
			models.StrategyLoose:  {},
		},
	}
}

func (s *Stats) recordProcessed(strategy models.Strategy, duplicate bool) {
	s.processed.Add(1)
	if duplicate {
		s.duplicates.Add(1)
	}
	if counters, ok := s.byStrategy[strategy]; ok {
		counters.processed.Add(1)
		if duplicate {
			counters.duplicates.Add(1)
		}
	}
}

func (s *Stats) recordDegraded() {
	s.degraded.Add(1)
}

// Snapshot returns a point-in-time copy of all counters. The dedup rate is 0
// when nothing has been processed yet.
func (s *Stats) Snapshot() models.Statistics {
	snap := models.Statistics{
		TotalProcessed:  s.processed.Load(),
		TotalDuplicates: s.duplicates.Load(),
		Degraded:        s.degraded.Load(),
		ByStrategy:      make(map[models.Strategy]models.StrategyStats, len(s.byStrategy)),
	}
	if snap.TotalProcessed > 0 {
		snap.DedupRate = float64(snap.TotalDuplicates) / float64(snap.TotalProcessed)
	}
	for strategy, counters := range s.byStrategy {
		snap.ByStrategy[strategy] = models.StrategyStats{
			Processed:  counters.processed.Load(),
			Duplicates: counters.duplicates.Load(),
		}
	}
	return snap
}
