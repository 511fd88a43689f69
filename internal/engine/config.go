package engine

import (
	"sync/atomic"

	"github.com/Godzillas/alarm-analysis-system-sub000/internal/models"
)

// ConfigHandle holds the active deduplication config behind an atomically
// swapped pointer. Readers never block on writers and never observe a
// half-updated config.
type ConfigHandle struct {
	current atomic.Pointer[models.DedupConfig]
}

// NewConfigHandle validates the initial config and returns a handle.
func NewConfigHandle(cfg models.DedupConfig) (*ConfigHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &ConfigHandle{}
	h.store(cfg)
	return h, nil
}

// Load returns the active config.
func (h *ConfigHandle) Load() models.DedupConfig {
	return *h.current.Load()
}

// Update validates the new config and swaps it in atomically. On validation
// failure the previous config stays in effect.
func (h *ConfigHandle) Update(cfg models.DedupConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.store(cfg)
	return nil
}

func (h *ConfigHandle) store(cfg models.DedupConfig) {
	// Copy the tag slice so later caller mutations cannot leak into the
	// active config.
	cfg.ImportantTagKeys = append([]string(nil), cfg.ImportantTagKeys...)
	h.current.Store(&cfg)
}
