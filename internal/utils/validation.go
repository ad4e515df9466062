package utils

import (
	"sort"
	"strings"
)

// ParseBool parses the boolean spellings accepted for option values.
func ParseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "y", "1", "on":
		return true, true
	case "false", "no", "n", "0", "off", "":
		return false, true
	}
	return false, false
}

// FormatBool renders a boolean the way option values are stored.
func FormatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// NormalizeTags splits comma- or space-separated tags, drops empties and
// duplicates, and keeps first-seen order.
func NormalizeTags(raw []string) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, item := range raw {
		for _, tag := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			if seen[tag] {
				continue
			}
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}

// SortedKeys returns the keys of a map in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
