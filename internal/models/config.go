package models

import "time"

// Default deduplication settings applied at service start.
const (
	DefaultStrategy            = StrategyNormal
	DefaultSimilarityThreshold = 0.85
	DefaultTimeWindow          = 60 * time.Minute
)

// DefaultImportantTagKeys returns the tag allow-list appended to fingerprint
// input when present on an alert.
func DefaultImportantTagKeys() []string {
	return []string{"cluster", "env", "region"}
}

// DedupConfig is the active deduplication configuration. It is replaced as a
// whole through Engine.UpdateConfig, never mutated in place.
type DedupConfig struct {
	Strategy            Strategy      `json:"strategy" yaml:"strategy"`
	SimilarityThreshold float64       `json:"similarity_threshold" yaml:"similarityThreshold"`
	TimeWindow          time.Duration `json:"time_window" yaml:"timeWindow"`
	Enabled             bool          `json:"enabled" yaml:"enabled"`
	ImportantTagKeys    []string      `json:"important_tag_keys,omitempty" yaml:"importantTagKeys"`
}

// DefaultDedupConfig returns the documented startup defaults.
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		Strategy:            DefaultStrategy,
		SimilarityThreshold: DefaultSimilarityThreshold,
		TimeWindow:          DefaultTimeWindow,
		Enabled:             true,
		ImportantTagKeys:    DefaultImportantTagKeys(),
	}
}

// Validate checks the config shape. It does not decide who may update the
// config; authorization belongs to the caller.
func (c DedupConfig) Validate() error {
	if !c.Strategy.Valid() {
		return &ConfigurationError{Field: "strategy", Reason: "must be strict, normal or loose"}
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return &ConfigurationError{Field: "similarity_threshold", Reason: "must be within [0, 1]"}
	}
	if c.TimeWindow <= 0 {
		return &ConfigurationError{Field: "time_window", Reason: "must be positive"}
	}
	return nil
}
