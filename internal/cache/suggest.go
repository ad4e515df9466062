package cache

import (
	"github.com/sahilm/fuzzy"
)

// SuggestTags ranks tags against query by fuzzy match, best first. An empty
// query returns the first limit tags unchanged. limit <= 0 means no limit.
func SuggestTags(tags []string, query string, limit int) []string {
	var out []string
	if query == "" {
		out = append(out, tags...)
	} else {
		for _, m := range fuzzy.Find(query, tags) {
			out = append(out, m.Str)
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
