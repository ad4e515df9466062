// Package dispatch answers UI messages. Each recognized request is handled
// asynchronously and produces exactly one response; unrecognized requests
// are logged and never answered.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"pinmark/backend"
	"pinmark/internal/options"
	"pinmark/internal/tabstate"
	"pinmark/internal/utils"
)

// Bookmarks is the cache surface the dispatcher relies on.
type Bookmarks interface {
	GetBookmark(ctx context.Context, url string) (*backend.Post, error)
	GetTags(ctx context.Context) ([]string, error)
	AddBookmark(ctx context.Context, params backend.AddParams) error
	DeleteBookmark(ctx context.Context, url string) error
}

// OptionsSource provides the current options.
type OptionsSource interface {
	Get(ctx context.Context) options.Options
}

// Refresher re-renders the remembered tab after a mutation.
type Refresher interface {
	Refresh(ctx context.Context, tab *tabstate.Tab) tabstate.Result
}

// Dispatcher routes requests to their handlers.
type Dispatcher struct {
	options   OptionsSource
	bookmarks Bookmarks
	tabs      Refresher
}

// New creates a dispatcher. tabs may be nil when no tab controller is wired.
func New(opts OptionsSource, bookmarks Bookmarks, tabs Refresher) *Dispatcher {
	return &Dispatcher{
		options:   opts,
		bookmarks: bookmarks,
		tabs:      tabs,
	}
}

// Pending is the eventual response to an accepted request.
type Pending struct {
	done     chan struct{}
	response Response
}

// Done is closed once the response is available.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the response is available or ctx ends.
func (p *Pending) Wait(ctx context.Context) (Response, error) {
	select {
	case <-p.done:
		return p.response, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dispatch starts handling req. It returns false, and no handle, for
// unrecognized requests.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Pending, bool) {
	var handler func(context.Context) Response

	switch r := req.(type) {
	case LookupBookmarkRequest:
		handler = func(ctx context.Context) Response { return d.lookupBookmark(ctx, r) }
	case PopupInfoRequest:
		handler = func(ctx context.Context) Response { return d.popupInfo(ctx, r) }
	case AddBookmarkRequest:
		handler = func(ctx context.Context) Response { return d.addBookmark(ctx, r) }
	case DeleteBookmarkRequest:
		handler = func(ctx context.Context) Response { return d.deleteBookmark(ctx, r) }
	default:
		kind := "<nil>"
		if req != nil {
			kind = req.Type()
		}
		utils.GetLogger().WithFields(map[string]interface{}{"type": kind}).Warn("unrecognized message, no response sent")
		return nil, false
	}

	utils.Debugf("dispatching %s", req.Type())
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		defer func() {
			if v := recover(); v != nil {
				utils.Errorf("panic handling %s: %v\n%s", req.Type(), v, debug.Stack())
				p.response = failedResponse(req, fmt.Errorf("internal error handling %s: %v", req.Type(), v))
			}
		}()
		p.response = handler(ctx)
	}()
	return p, true
}

// Handle dispatches req and waits for its response.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (Response, bool) {
	p, ok := d.Dispatch(ctx, req)
	if !ok {
		return nil, false
	}
	resp, err := p.Wait(ctx)
	if err != nil {
		return nil, false
	}
	return resp, true
}

func (d *Dispatcher) lookupBookmark(ctx context.Context, req LookupBookmarkRequest) Response {
	opts := d.options.Get(ctx)
	post, err := d.bookmarks.GetBookmark(ctx, req.URL)
	if err != nil {
		utils.Warnf("lookup %s failed: %v", req.URL, err)
		return &LookupBookmarkResponse{Error: errorString(err)}
	}
	return &LookupBookmarkResponse{Bookmark: post, Options: &opts}
}

func (d *Dispatcher) popupInfo(ctx context.Context, req PopupInfoRequest) Response {
	resp := &PopupInfoResponse{Tags: []string{}}

	tags, err := d.bookmarks.GetTags(ctx)
	if err != nil {
		utils.Warnf("popup info: tags failed: %v", err)
		resp.Error = errorString(err)
		return resp
	}
	post, err := d.bookmarks.GetBookmark(ctx, req.URL)
	if err != nil {
		utils.Warnf("popup info: lookup %s failed: %v", req.URL, err)
		resp.Error = errorString(err)
		return resp
	}

	if tags != nil {
		resp.Tags = tags
	}
	resp.Bookmark = post
	return resp
}

// AddParams maps an add request onto the remote call's fields.
func AddParams(req AddBookmarkRequest) backend.AddParams {
	return backend.AddParams{
		URL:         req.URL,
		Description: req.Title,
		Extended:    req.Description,
		Tags:        strings.Join(utils.NormalizeTags(req.Tags), " "),
		Shared:      backend.YesNo(!req.Private),
		ToRead:      backend.YesNo(req.ReadLater),
	}
}

func (d *Dispatcher) addBookmark(ctx context.Context, req AddBookmarkRequest) Response {
	err := d.bookmarks.AddBookmark(ctx, AddParams(req))
	d.afterMutation(ctx)
	if err != nil {
		utils.Warnf("add %s failed: %v", req.URL, err)
		return &MutationResponse{Error: errorString(err)}
	}
	utils.Infof("bookmarked %s", req.URL)
	return &MutationResponse{}
}

func (d *Dispatcher) deleteBookmark(ctx context.Context, req DeleteBookmarkRequest) Response {
	err := d.bookmarks.DeleteBookmark(ctx, req.URL)
	d.afterMutation(ctx)
	if err != nil {
		utils.Warnf("delete %s failed: %v", req.URL, err)
		return &MutationResponse{Error: errorString(err)}
	}
	utils.Infof("deleted bookmark %s", req.URL)
	return &MutationResponse{}
}

// afterMutation re-renders the remembered tab. The cache clears itself on
// every mutation, so the refresh always sees fresh remote state.
func (d *Dispatcher) afterMutation(ctx context.Context) {
	if d.tabs == nil {
		return
	}
	d.tabs.Refresh(ctx, nil)
}

// failedResponse is the error-only response of the kind req expects.
func failedResponse(req Request, err error) Response {
	switch req.(type) {
	case LookupBookmarkRequest:
		return &LookupBookmarkResponse{Error: errorString(err)}
	case PopupInfoRequest:
		return &PopupInfoResponse{Tags: []string{}, Error: errorString(err)}
	}
	return &MutationResponse{Error: errorString(err)}
}

func errorString(err error) *string {
	s := err.Error()
	return &s
}
