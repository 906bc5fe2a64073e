// Package strings provides string-slice helpers for settings and query
// parameters that arrive as comma-separated lists.
package strings

import (
	"strings"
)

// SplitList splits every value on commas, trims each part and drops empty and
// repeated parts. Order of first appearance is preserved. A list with no
// usable parts yields nil.
//
// Example:
//
//	SplitList([]string{"kafka-1:9092, kafka-2:9092", "kafka-1:9092", " "})
//	// Returns: []string{"kafka-1:9092", "kafka-2:9092"}
func SplitList(values []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
