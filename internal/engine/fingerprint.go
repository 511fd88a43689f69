package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/Godzillas/alarm-analysis-system-sub000/internal/models"
)

// fingerprintSeparator joins selected fields before hashing. The unit
// separator control character is not expected to appear in alert content.
const fingerprintSeparator = "\x1f"

// ComputeFingerprint derives the content digest for an alert under the given
// strategy. Missing optional fields hash as empty strings; the same alert,
// strategy and tag allow-list always produce the same fingerprint.
func ComputeFingerprint(alert models.AlertEvent, strategy models.Strategy, importantTagKeys []string) (models.Fingerprint, error) {
	var fields []string
	switch strategy {
	case models.StrategyStrict:
		fields = []string{Normalize(alert.Title), alert.Host, alert.Service, string(alert.Severity), alert.Environment}
	case models.StrategyNormal:
		fields = []string{Normalize(alert.Title), alert.Host, alert.Service, string(alert.Severity)}
	case models.StrategyLoose:
		// Order-insensitive title so alerts that differ only in token order
		// (or in which host fired) collapse to one digest.
		fields = []string{sortedTitleTokens(alert.Title), alert.Service}
	default:
		return models.Fingerprint{}, &models.InvalidStrategyError{Strategy: strategy}
	}

	fields = append(fields, importantTagPairs(alert.Tags, importantTagKeys)...)

	sum := sha256.Sum256([]byte(strings.Join(fields, fingerprintSeparator)))
	return models.Fingerprint{
		Digest:   hex.EncodeToString(sum[:]),
		Strategy: strategy,
	}, nil
}

func sortedTitleTokens(title string) string {
	tokens := strings.Fields(Normalize(title))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// importantTagPairs selects allow-listed tags as key=value pairs, sorted by
// key so the hash input is deterministic regardless of map iteration order.
func importantTagPairs(tags map[string]string, allowList []string) []string {
	if len(tags) == 0 || len(allowList) == 0 {
		return nil
	}
	keys := append([]string(nil), allowList...)
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		if value, ok := tags[key]; ok {
			pairs = append(pairs, key+"="+value)
		}
	}
	return pairs
}
