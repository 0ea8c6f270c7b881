// Package strings holds small slice helpers shared by config parsing and
// response rendering.
package strings

import (
	"strings"
)

// Dedupe removes repeated values keeping the first occurrence.
func Dedupe[T comparable](values []T) []T {
	if len(values) == 0 {
		return values
	}
	seen := make(map[T]struct{}, len(values))
	result := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// SplitList splits a comma separated value, trimming entries and dropping
// empty and repeated ones.
//
//	SplitList(" a, b,,a ") // []string{"a", "b"}
func SplitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(v, ","))
}

// DedupeAndTrim trims every element and removes empty and repeated ones.
// Order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	trimmed := make([]string, 0, len(values))
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	return Dedupe(trimmed)
}
