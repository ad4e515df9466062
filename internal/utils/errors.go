package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrTokenMissing returns an error when no API token is configured.
func ErrTokenMissing() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("no API token configured"),
		Suggestion: "Run 'pinmark credentials set' or 'pinmark options set api_token <user:TOKEN>'",
	}
}

// ErrTokenInvalid returns an error when the stored token is marked invalid.
func ErrTokenInvalid() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("API token is marked invalid"),
		Suggestion: "Copy a fresh token from https://pinboard.in/settings/password and set it again",
	}
}

// ErrNotBookmarkable returns an error for URLs the service cannot store.
func ErrNotBookmarkable(url string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("not a bookmarkable URL: %s", url),
		Suggestion: "Only absolute http, https and ftp URLs can be bookmarked",
	}
}

// ErrUnknownOption returns an error for an option key that is not recognized.
func ErrUnknownOption(key string, valid []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("unknown option: %s", key),
		Suggestion: fmt.Sprintf("Valid options: %s", strings.Join(valid, ", ")),
	}
}

// ErrInvalidOptionValue returns an error for an option value of the wrong type.
func ErrInvalidOptionValue(key, value string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid value for %s: %q", key, value),
		Suggestion: "Boolean options accept true/false, yes/no or 1/0",
	}
}

// ErrServiceOffline returns an error when the bookmarking service is unreachable.
func ErrServiceOffline(reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("bookmarking service is unreachable: %s", reason),
		Suggestion: getSmartSuggestion(reason),
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the server is running and accessible"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "i/o timeout") {
		return "The server may be slow or unreachable. Try again later"
	}

	return "Check your internet connection and try again"
}

// ErrCredentialsNotFound returns an error when credentials are missing.
func ErrCredentialsNotFound(service, user string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("credentials not found for %s user %s", service, user),
		Suggestion: "Run 'pinmark credentials set' to store a token",
	}
}

// ErrAuthenticationFailed returns an error when authentication fails.
func ErrAuthenticationFailed(service string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("authentication failed for %s", service),
		Suggestion: "Verify your API token is correct and has not been reset",
	}
}
