package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"pinmark/backend"
	"pinmark/internal/options"
)

// Message type names on the wire.
const (
	TypeLookupBookmark = "lookupBookmark"
	TypePopupInfo      = "getPopupInfo"
	TypeAddBookmark    = "addBookmark"
	TypeDeleteBookmark = "deleteBookmark"
)

// Request is one of the request types declared in this package.
type Request interface {
	Type() string
	isRequest()
}

// LookupBookmarkRequest asks for the bookmark stored for URL along with the
// current options.
type LookupBookmarkRequest struct {
	URL string `json:"url"`
}

// PopupInfoRequest asks for the tag vocabulary and the bookmark for URL.
type PopupInfoRequest struct {
	URL string `json:"url"`
}

// AddBookmarkRequest creates or replaces the bookmark for URL. Title becomes
// the remote description and Description the extended notes.
type AddBookmarkRequest struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Tags        TagList `json:"tags"`
	Private     bool    `json:"private"`
	ReadLater   bool    `json:"readLater"`
}

// DeleteBookmarkRequest removes the bookmark for URL.
type DeleteBookmarkRequest struct {
	URL string `json:"url"`
}

// UnknownRequest carries a type this package does not handle.
type UnknownRequest struct {
	Kind string
}

func (LookupBookmarkRequest) Type() string { return TypeLookupBookmark }
func (PopupInfoRequest) Type() string      { return TypePopupInfo }
func (AddBookmarkRequest) Type() string    { return TypeAddBookmark }
func (DeleteBookmarkRequest) Type() string { return TypeDeleteBookmark }
func (r UnknownRequest) Type() string      { return r.Kind }

func (LookupBookmarkRequest) isRequest() {}
func (PopupInfoRequest) isRequest()      {}
func (AddBookmarkRequest) isRequest()    {}
func (DeleteBookmarkRequest) isRequest() {}
func (UnknownRequest) isRequest()        {}

// TagList accepts tags either as a JSON array or as one space-separated string.
type TagList []string

// UnmarshalJSON decodes an array of tags or splits a string on whitespace.
func (t *TagList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("tags must be a string or a list of strings")
	}
	*t = strings.Fields(s)
	return nil
}

// Response is one of the response types declared in this package.
type Response interface {
	Err() *string
}

// LookupBookmarkResponse answers a lookup. On error only Error is set.
type LookupBookmarkResponse struct {
	Bookmark *backend.Post    `json:"bookmark"`
	Options  *options.Options `json:"options"`
	Error    *string          `json:"error"`
}

// PopupInfoResponse answers a popup info request. Tags is never nil.
type PopupInfoResponse struct {
	Tags     []string      `json:"tags"`
	Bookmark *backend.Post `json:"bookmark"`
	Error    *string       `json:"error"`
}

// MutationResponse answers add and delete requests. Error is nil on success.
type MutationResponse struct {
	Error *string `json:"error"`
}

func (r *LookupBookmarkResponse) Err() *string { return r.Error }
func (r *PopupInfoResponse) Err() *string      { return r.Error }
func (r *MutationResponse) Err() *string       { return r.Error }

type envelope struct {
	Type string `json:"type"`
}

// DecodeRequest parses a {type, ...fields} message. Messages with an
// unrecognized type decode to UnknownRequest without error.
func DecodeRequest(data []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	var req Request
	var err error
	switch env.Type {
	case TypeLookupBookmark:
		var r LookupBookmarkRequest
		err = json.Unmarshal(data, &r)
		req = r
	case TypePopupInfo:
		var r PopupInfoRequest
		err = json.Unmarshal(data, &r)
		req = r
	case TypeAddBookmark:
		var r AddBookmarkRequest
		err = json.Unmarshal(data, &r)
		req = r
	case TypeDeleteBookmark:
		var r DeleteBookmarkRequest
		err = json.Unmarshal(data, &r)
		req = r
	default:
		return UnknownRequest{Kind: env.Type}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s message: %w", env.Type, err)
	}
	return req, nil
}
