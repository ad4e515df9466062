package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ResultDone is the result_code the remote service returns for a successful mutation.
const ResultDone = "done"

var (
	// ErrMalformedTags is returned when a tag listing cannot be read as a tag -> count mapping.
	ErrMalformedTags = errors.New("malformed tag response")

	// ErrMutationFailed is wrapped by MutationResult.Err when the result code is not "done".
	ErrMutationFailed = errors.New("mutation failed")

	// ErrUnauthorized is returned when the service rejects the API token.
	ErrUnauthorized = errors.New("authentication failed: invalid API token")
)

// Post represents a bookmark as stored by the remote service
type Post struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	Extended    string `json:"extended"`
	Tags        string `json:"tags"` // Space-separated
	Shared      string `json:"shared"`
	ToRead      string `json:"toread"`
	Time        string `json:"time"`
}

// TagList splits the space-separated tag string.
func (p *Post) TagList() []string {
	return strings.Fields(p.Tags)
}

// PostsResult is the response of a bookmark lookup
type PostsResult struct {
	Posts []Post `json:"posts"`
}

// TagCounts maps tag name to usage count. Only the key set is consumed by callers.
type TagCounts map[string]int

// MutationResult is the response of an add or delete call
type MutationResult struct {
	ResultCode string `json:"result_code"`
}

// Err converts a non-"done" result code into an error whose message is the code itself.
func (r *MutationResult) Err() error {
	if r == nil {
		return fmt.Errorf("%w: empty response", ErrMutationFailed)
	}
	if r.ResultCode == ResultDone {
		return nil
	}
	return &ResultCodeError{Code: r.ResultCode}
}

// ResultCodeError carries the raw result_code of a failed mutation.
type ResultCodeError struct {
	Code string
}

func (e *ResultCodeError) Error() string {
	return e.Code
}

// Unwrap lets errors.Is match ErrMutationFailed.
func (e *ResultCodeError) Unwrap() error {
	return ErrMutationFailed
}

// AddParams holds the remote fields of an add-bookmark call
type AddParams struct {
	URL         string
	Description string // Title
	Extended    string // Free-form notes
	Tags        string // Space-separated
	Shared      string // "yes" or "no"
	ToRead      string // "yes" or "no"
}

// BookmarkService defines the remote bookmarking API used by the cache layer.
// Implementations are stateless apart from connection reuse; every call is
// issued once and either resolves or fails.
type BookmarkService interface {
	LookupBookmark(ctx context.Context, token, url string) (*PostsResult, error)
	ListTags(ctx context.Context, token string) (TagCounts, error)
	AddBookmark(ctx context.Context, token string, params AddParams) (*MutationResult, error)
	DeleteBookmark(ctx context.Context, token, url string) (*MutationResult, error)

	// Connection management
	Close() error
}

// YesNo renders a boolean the way the remote service expects.
func YesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
