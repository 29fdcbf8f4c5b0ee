package adapter

import (
	"strconv"
	"strings"
)

// Sanitize reduces s to a safe SQL identifier fragment: every character
// outside [0-9A-Za-z_] is replaced with '_', and spaces are stripped
// entirely rather than replaced (spec §4.1/§9). The result is the canonical
// form used on both write and read paths so names never mismatch by case
// or whitespace — callers should sanitize once at configuration time and
// reuse the sanitized form, never re-derive it ad hoc.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ' ':
			continue
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// TableName derives the deterministic table identifier for one rank table,
// "<group>_<rank>_of_<rankCount>", sanitized.
func TableName(group string, rank, rankCount int) string {
	return Sanitize(group) + "_" + strconv.Itoa(rank) + "_of_" + strconv.Itoa(rankCount)
}

// CountColumn and ValueColumn derive the reserved column-name suffixes for
// one aggregate, appended after sanitizing the aggregate's own name (spec
// §6.4: "_count" and "_value" are reserved suffixes).
func CountColumn(aggregateName string) string { return Sanitize(aggregateName) + "_count" }
func ValueColumn(aggregateName string) string { return Sanitize(aggregateName) + "_value" }
