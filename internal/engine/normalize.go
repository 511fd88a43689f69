package engine

import "regexp"

// Placeholder tokens substituted for volatile substrings. None of them contain
// digits or unit suffixes, which makes normalisation idempotent.
const (
	placeholderTime = "<TIME>"
	placeholderPct  = "<PCT>"
	placeholderSize = "<SIZE>"
	placeholderNum  = "<NUM>"
)

// normalizeRules are applied in order; earlier rules consume their matches so
// later, broader rules never see them.
var normalizeRules = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	// Absolute timestamps: ISO 8601 datetimes, bare dates and clock times.
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(:\d{2})?(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`), placeholderTime},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), placeholderTime},
	{regexp.MustCompile(`\b\d{1,2}:\d{2}(:\d{2})?\b`), placeholderTime},
	// Percentages, e.g. "87%" or "99.95 %".
	{regexp.MustCompile(`\d+(\.\d+)?\s?%`), placeholderPct},
	// Byte magnitudes, e.g. "512MB", "1.5 gb".
	{regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s?(kb|mb|gb|tb)\b`), placeholderSize},
	// Any remaining bare numbers.
	{regexp.MustCompile(`\d+(\.\d+)?`), placeholderNum},
}

// Normalize replaces volatile substrings (timestamps, percentages, byte sizes,
// bare numbers) with fixed placeholders so textually different but
// semantically identical alerts produce the same tokens. It is deterministic,
// side-effect free and idempotent; empty input yields an empty string.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	for _, rule := range normalizeRules {
		text = rule.pattern.ReplaceAllString(text, rule.replacement)
	}
	return text
}
