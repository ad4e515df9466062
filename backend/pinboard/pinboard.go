// Package pinboard provides a backend implementation for the Pinboard v1 JSON API.
package pinboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pinmark/backend"
)

const (
	// DefaultBaseURL is the Pinboard v1 API base URL
	DefaultBaseURL = "https://api.pinboard.in/v1"

	// DefaultTimeout bounds a single request
	DefaultTimeout = 30 * time.Second
)

// Config holds Pinboard connection settings
type Config struct {
	BaseURL string // Override for testing
	Timeout time.Duration
}

// Backend implements backend.BookmarkService using the Pinboard API
type Backend struct {
	config  Config
	client  *http.Client
	baseURL string
}

// New creates a new Pinboard backend
func New(cfg Config) *Backend {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Backend{
		config:  cfg,
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Close closes the backend
func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	b.client.CloseIdleConnections()
	return nil
}

// doRequest performs an authenticated GET against the API and returns the raw
// body of a 2xx response. Requests are issued exactly once.
func (b *Backend) doRequest(ctx context.Context, path, token string, query url.Values) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("auth_token", token)
	query.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, backend.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("request %s failed: status %d", path, resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", path, err)
	}
	return buf.Bytes(), nil
}

// pinboardPost is the wire shape of a post; the API names the URL "href".
type pinboardPost struct {
	Href        string `json:"href"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Extended    string `json:"extended"`
	Tags        string `json:"tags"`
	Shared      string `json:"shared"`
	ToRead      string `json:"toread"`
	Time        string `json:"time"`
}

// LookupBookmark returns the posts stored for an exact URL
func (b *Backend) LookupBookmark(ctx context.Context, token, rawURL string) (*backend.PostsResult, error) {
	body, err := b.doRequest(ctx, "/posts/get", token, url.Values{"url": {rawURL}})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Posts []pinboardPost `json:"posts"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse bookmark lookup: %w", err)
	}

	result := &backend.PostsResult{Posts: make([]backend.Post, 0, len(payload.Posts))}
	for _, p := range payload.Posts {
		u := p.Href
		if u == "" {
			u = p.URL
		}
		result.Posts = append(result.Posts, backend.Post{
			URL:         u,
			Description: p.Description,
			Extended:    p.Extended,
			Tags:        p.Tags,
			Shared:      p.Shared,
			ToRead:      p.ToRead,
			Time:        p.Time,
		})
	}
	return result, nil
}

// ListTags returns every tag of the account with its usage count
func (b *Backend) ListTags(ctx context.Context, token string) (backend.TagCounts, error) {
	body, err := b.doRequest(ctx, "/tags/get", token, nil)
	if err != nil {
		return nil, err
	}
	return parseTagCounts(body)
}

// parseTagCounts reads a JSON object of tag -> count. Counts may be numbers or
// numeric strings; anything that is not an object is ErrMalformedTags.
func parseTagCounts(body []byte) (backend.TagCounts, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		// accounts without tags get an empty array instead of an object
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil || len(list) > 0 {
			return nil, backend.ErrMalformedTags
		}
		return backend.TagCounts{}, nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, backend.ErrMalformedTags
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrMalformedTags, err)
	}

	tags := make(backend.TagCounts, len(raw))
	for name, value := range raw {
		var n int
		if err := json.Unmarshal(value, &n); err != nil {
			var s string
			if err := json.Unmarshal(value, &s); err == nil {
				n, _ = strconv.Atoi(s)
			}
		}
		tags[name] = n
	}
	return tags, nil
}

// AddBookmark creates or replaces a bookmark
func (b *Backend) AddBookmark(ctx context.Context, token string, params backend.AddParams) (*backend.MutationResult, error) {
	query := url.Values{
		"url":         {params.URL},
		"description": {params.Description},
		"extended":    {params.Extended},
		"tags":        {params.Tags},
		"shared":      {params.Shared},
		"toread":      {params.ToRead},
		"replace":     {"yes"},
	}
	body, err := b.doRequest(ctx, "/posts/add", token, query)
	if err != nil {
		return nil, err
	}
	return parseMutation(body)
}

// DeleteBookmark removes the bookmark for a URL
func (b *Backend) DeleteBookmark(ctx context.Context, token, rawURL string) (*backend.MutationResult, error) {
	body, err := b.doRequest(ctx, "/posts/delete", token, url.Values{"url": {rawURL}})
	if err != nil {
		return nil, err
	}
	return parseMutation(body)
}

func parseMutation(body []byte) (*backend.MutationResult, error) {
	var result backend.MutationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse mutation result: %w", err)
	}
	return &result, nil
}

// ValidateToken checks that the service accepts the token
func (b *Backend) ValidateToken(ctx context.Context, token string) error {
	if token == "" {
		return backend.ErrUnauthorized
	}
	_, err := b.doRequest(ctx, "/user/api_token", token, nil)
	return err
}
