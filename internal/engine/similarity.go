package engine

import (
	"math"
	"strings"

	"github.com/Godzillas/alarm-analysis-system-sub000/internal/models"
)

// SimilarityWeights distributes the five sub-scores of the similarity
// computation. The defaults mirror the historical 40/20/15/15/10 split; they
// are tunable configuration, not an invariant.
type SimilarityWeights struct {
	Title       float64 `yaml:"title"`
	Description float64 `yaml:"description"`
	Host        float64 `yaml:"host"`
	Service     float64 `yaml:"service"`
	Tags        float64 `yaml:"tags"`
}

// DefaultSimilarityWeights returns the standard weight split.
func DefaultSimilarityWeights() SimilarityWeights {
	return SimilarityWeights{Title: 0.40, Description: 0.20, Host: 0.15, Service: 0.15, Tags: 0.10}
}

// Validate ensures all weights are non-negative and sum to 1.0.
func (w SimilarityWeights) Validate() error {
	for field, value := range map[string]float64{
		"title":       w.Title,
		"description": w.Description,
		"host":        w.Host,
		"service":     w.Service,
		"tags":        w.Tags,
	} {
		if value < 0 {
			return &models.ConfigurationError{Field: "similarity weight " + field, Reason: "must not be negative"}
		}
	}
	sum := w.Title + w.Description + w.Host + w.Service + w.Tags
	if math.Abs(sum-1.0) > 1e-9 {
		return &models.ConfigurationError{Field: "similarity weights", Reason: "must sum to 1.0"}
	}
	return nil
}

// Scorer computes a weighted 0.0-1.0 similarity between two alerts. It is
// pure and stateless: no clock, no cache, no mutation of either input.
type Scorer struct {
	weights SimilarityWeights
}

// NewScorer validates the weights and returns a Scorer.
func NewScorer(weights SimilarityWeights) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights}, nil
}

// Score returns the weighted similarity between two alerts.
func (s *Scorer) Score(a, b models.AlertEvent) float64 {
	score := s.weights.Title*textSimilarity(a.Title, b.Title) +
		s.weights.Description*textSimilarity(a.Description, b.Description) +
		s.weights.Host*exactFoldSimilarity(a.Host, b.Host) +
		s.weights.Service*exactFoldSimilarity(a.Service, b.Service) +
		s.weights.Tags*tagSimilarity(a.Tags, b.Tags)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// textSimilarity is the Jaccard index over whitespace tokens of normalised,
// lower-cased text. Two empty texts score 1.0 (no signal, no penalty); empty
// versus non-empty scores 0.0.
func textSimilarity(a, b string) float64 {
	tokensA := strings.Fields(strings.ToLower(Normalize(a)))
	tokensB := strings.Fields(strings.ToLower(Normalize(b)))

	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 1.0
	}
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}
	return jaccard(toSet(tokensA), toSet(tokensB))
}

func exactFoldSimilarity(a, b string) float64 {
	if strings.EqualFold(a, b) {
		return 1.0
	}
	return 0.0
}

// tagSimilarity is the Jaccard index over key=value pairs of both tag maps.
func tagSimilarity(a, b map[string]string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	setA := make(map[string]struct{}, len(a))
	for k, v := range a {
		setA[k+"="+v] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for k, v := range b {
		setB[k+"="+v] = struct{}{}
	}
	return jaccard(setA, setB)
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	intersection := 0
	for item := range a {
		if _, ok := b[item]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}
