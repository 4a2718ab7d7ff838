// Package strings provides small slice helpers shared by stores.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
//	DedupeAndTrim([]string{"  Testlandia ", "Maxtopia", "Testlandia", ""})
//	// []string{"Testlandia", "Maxtopia"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// DedupeLastBy keeps the last item for each key. Survivors stay at the position
// of their key's first occurrence, so the input order of distinct keys is kept.
func DedupeLastBy[T any](items []T, key func(T) string) []T {
	if len(items) < 2 {
		return items
	}

	index := make(map[string]int, len(items))
	result := make([]T, 0, len(items))
	for _, item := range items {
		k := key(item)
		if i, ok := index[k]; ok {
			result[i] = item
			continue
		}
		index[k] = len(result)
		result = append(result, item)
	}
	return result
}
