// Package cache memoizes remote bookmark lookups per URL and the account's
// tag vocabulary, and clears both wholesale when they may have gone stale.
package cache

import (
	"context"
	"sync"

	"pinmark/backend"
	"pinmark/internal/options"
	"pinmark/internal/urlcheck"
	"pinmark/internal/utils"
)

// OptionsSource provides the current options.
type OptionsSource interface {
	Get(ctx context.Context) options.Options
}

// Cache memoizes completed remote results. Concurrent misses for the same key
// each issue their own remote call; only completed results are shared.
type Cache struct {
	service backend.BookmarkService
	options OptionsSource

	mu         sync.Mutex
	bookmarks  map[string]*backend.Post // present key = looked up; nil value = not bookmarked
	tags       []string
	tagsLoaded bool
	generation uint64 // bumped by Clear; fetches from an older generation are not stored
}

// New creates an empty cache.
func New(service backend.BookmarkService, opts OptionsSource) *Cache {
	return &Cache{
		service:   service,
		options:   opts,
		bookmarks: make(map[string]*backend.Post),
	}
}

// Clear drops every cached bookmark and the tag list.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bookmarks = make(map[string]*backend.Post)
	c.tags = nil
	c.tagsLoaded = false
	c.generation++
	utils.Debugf("bookmark and tag caches cleared")
}

// Len returns the number of cached URL entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bookmarks)
}

// HasTags reports whether the tag list is cached.
func (c *Cache) HasTags() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tagsLoaded
}

// GetBookmark returns the bookmark stored for rawURL, or nil when the URL is
// not bookmarked or not bookmarkable. Non-bookmarkable URLs are never cached
// and never sent to the service.
func (c *Cache) GetBookmark(ctx context.Context, rawURL string) (*backend.Post, error) {
	if !urlcheck.IsBookmarkable(rawURL) {
		return nil, nil
	}
	key := urlcheck.Normalize(rawURL)

	c.mu.Lock()
	if post, ok := c.bookmarks[key]; ok {
		c.mu.Unlock()
		return post, nil
	}
	gen := c.generation
	c.mu.Unlock()

	result := &backend.PostsResult{}
	opts := c.options.Get(ctx)
	if opts.TokenUsable() {
		var err error
		result, err = c.service.LookupBookmark(ctx, opts.APIToken, key)
		if err != nil {
			return nil, err
		}
	}

	var post *backend.Post
	if result != nil && len(result.Posts) > 0 {
		p := result.Posts[0]
		post = &p
	}

	c.mu.Lock()
	if c.generation == gen {
		c.bookmarks[key] = post
	}
	c.mu.Unlock()

	return post, nil
}

// IsBookmarked reports whether rawURL has a stored bookmark.
func (c *Cache) IsBookmarked(ctx context.Context, rawURL string) (bool, error) {
	post, err := c.GetBookmark(ctx, rawURL)
	if err != nil {
		return false, err
	}
	return post != nil, nil
}

// GetTags returns the account's tag vocabulary in ascending order. A
// malformed service response is returned as an error and leaves the tag
// cache unset so a later call retries.
func (c *Cache) GetTags(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	if c.tagsLoaded {
		tags := append([]string(nil), c.tags...)
		c.mu.Unlock()
		return tags, nil
	}
	gen := c.generation
	c.mu.Unlock()

	counts := backend.TagCounts{}
	opts := c.options.Get(ctx)
	if opts.TokenUsable() {
		var err error
		counts, err = c.service.ListTags(ctx, opts.APIToken)
		if err != nil {
			return nil, err
		}
		if counts == nil {
			return nil, backend.ErrMalformedTags
		}
	}

	tags := utils.SortedKeys(counts)

	c.mu.Lock()
	if c.generation == gen {
		c.tags = tags
		c.tagsLoaded = true
	}
	c.mu.Unlock()

	return append([]string(nil), tags...), nil
}

// AddBookmark stores a bookmark remotely. Both caches are cleared afterwards
// whatever the outcome.
func (c *Cache) AddBookmark(ctx context.Context, params backend.AddParams) error {
	defer c.Clear()

	opts := c.options.Get(ctx)
	if !opts.HasToken() {
		return utils.ErrTokenMissing()
	}

	result, err := c.service.AddBookmark(ctx, opts.APIToken, params)
	if err != nil {
		return err
	}
	return result.Err()
}

// DeleteBookmark removes a bookmark remotely. Both caches are cleared
// afterwards whatever the outcome.
func (c *Cache) DeleteBookmark(ctx context.Context, rawURL string) error {
	defer c.Clear()

	opts := c.options.Get(ctx)
	if !opts.HasToken() {
		return utils.ErrTokenMissing()
	}

	result, err := c.service.DeleteBookmark(ctx, opts.APIToken, urlcheck.Normalize(rawURL))
	if err != nil {
		return err
	}
	return result.Err()
}
