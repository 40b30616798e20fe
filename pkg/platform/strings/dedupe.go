// Package strings cleans up user-supplied string lists before they reach
// the registry: nameserver sets, status lists, contact ids.
package strings

import (
	"strings"
)

// DedupeAndTrim trims whitespace, drops empties, and removes duplicates
// while preserving the first occurrence's position.
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

// DedupeAndTrimLower is DedupeAndTrim with lowercase folding. Hostnames
// and domain names compare case-insensitively on the wire, so "NS1.a.GOV"
// and "ns1.a.gov" are the same nameserver.
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.ToLower(strings.TrimSpace(v))
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
