// Package urlcheck decides which page URLs can be saved as bookmarks.
package urlcheck

import (
	"net/url"
	"strings"
)

// bookmarkableSchemes are the schemes the remote service accepts.
var bookmarkableSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ftp":   true,
}

// IsBookmarkable reports whether rawURL is an absolute web URL.
// Browser-internal pages (chrome://, about:, moz-extension://, file://, ...) are not.
func IsBookmarkable(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if !bookmarkableSchemes[strings.ToLower(u.Scheme)] {
		return false
	}
	return u.Hostname() != ""
}

// Normalize returns the cache key for a URL. Only surrounding whitespace is
// dropped: the service matches URLs exactly, fragments included.
func Normalize(rawURL string) string {
	return strings.TrimSpace(rawURL)
}
