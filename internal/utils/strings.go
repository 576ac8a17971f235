// Package utils holds small parsing helpers shared by config and the API.
package utils

import (
	"fmt"
	"strings"
)

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// ParseCSVOf parses a comma-separated list whose values must come from known.
// Matching ignores case; the result uses the spelling in known, keeps the
// input order and drops repeats.
func ParseCSVOf(s string, known []string) ([]string, error) {
	canonical := make(map[string]string, len(known))
	for _, k := range known {
		canonical[strings.ToUpper(k)] = k
	}

	var result []string
	seen := make(map[string]bool)
	for _, v := range ParseCSV(s) {
		k, ok := canonical[strings.ToUpper(v)]
		if !ok {
			return nil, fmt.Errorf("unknown value %q (expected one of %s)", v, strings.Join(known, ", "))
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		result = append(result, k)
	}
	return result, nil
}
