// Package tabstate decides which icon and popup surface the focused tab
// should show and renders that choice through host primitives.
package tabstate

import (
	"context"
	"sync"

	"pinmark/internal/options"
	"pinmark/internal/urlcheck"
	"pinmark/internal/utils"
)

const (
	// NoTabID is the host's "no such tab" sentinel.
	NoTabID = -1
	// WindowNone is reported when focus leaves every browser window.
	WindowNone = -1
)

// Surface identifies the popup view for a tab
type Surface string

const (
	SurfaceEmptyAuth   Surface = "empty-auth"
	SurfaceInvalidAuth Surface = "invalid-auth"
	SurfaceInvalidURL  Surface = "invalid-url"
	SurfaceNormal      Surface = "normal"
)

// Tab is a snapshot of a host tab
type Tab struct {
	ID       int    `json:"id"`
	WindowID int    `json:"windowId"`
	URL      string `json:"url"`
	Focused  bool   `json:"focused"`
}

// renderable reports whether the tab carries enough to render anything.
func (t *Tab) renderable() bool {
	return t != nil && t.ID != NoTabID && t.ID != 0 && t.URL != ""
}

// ChangeInfo carries the fields of a tab update event; only URL is acted on.
type ChangeInfo struct {
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
}

// Renderer is the host's icon and popup primitives.
type Renderer interface {
	SetIcon(tabID int, bookmarked bool) error
	SetPopup(tabID int, surface Surface) error
}

// TabSource resolves tabs the host refers to by id.
type TabSource interface {
	GetTab(ctx context.Context, tabID int) (*Tab, error)
	ActiveTab(ctx context.Context, windowID int) (*Tab, error)
}

// OptionsSource provides the current options.
type OptionsSource interface {
	Get(ctx context.Context) options.Options
}

// BookmarkChecker answers whether a URL is bookmarked.
type BookmarkChecker interface {
	IsBookmarked(ctx context.Context, url string) (bool, error)
}

// Config controls render ordering.
type Config struct {
	// LatestWins discards the render of an evaluation when a newer evaluation
	// for the same tab was started before it completed. When false, renders
	// land in completion order.
	LatestWins bool
}

// Result describes one evaluation.
type Result struct {
	TabID      int     `json:"tabId"`
	Bookmarked bool    `json:"bookmarked"`
	Surface    Surface `json:"popup,omitempty"`
	Rendered   bool    `json:"rendered"` // false when skipped or superseded
}

// Controller tracks the current tab and keeps its icon and popup in sync.
type Controller struct {
	cfg       Config
	options   OptionsSource
	bookmarks BookmarkChecker
	renderer  Renderer
	tabs      TabSource

	mu      sync.Mutex
	current *Tab
	// seq holds the latest evaluation number per open tab; numbers come from
	// next and are never reused, even after Forget.
	seq     map[int]uint64
	next    uint64
}

// NewController wires a controller. tabs may be nil when the host only ever
// supplies full tab snapshots.
func NewController(cfg Config, opts OptionsSource, bookmarks BookmarkChecker, renderer Renderer, tabs TabSource) *Controller {
	return &Controller{
		cfg:       cfg,
		options:   opts,
		bookmarks: bookmarks,
		renderer:  renderer,
		tabs:      tabs,
		seq:       make(map[int]uint64),
	}
}

// Current returns a copy of the remembered tab, or nil.
func (c *Controller) Current() *Tab {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	t := *c.current
	return &t
}

// Forget drops the per-tab bookkeeping of a closed tab. An evaluation still
// running for it is not rendered, and it stops being the current tab.
func (c *Controller) Forget(tabID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seq, tabID)
	if c.current != nil && c.current.ID == tabID {
		c.current = nil
	}
}

// Refresh re-evaluates and renders a tab. A non-nil tab becomes the
// remembered current tab; nil reuses the remembered one. Without a
// renderable tab this is a no-op.
func (c *Controller) Refresh(ctx context.Context, tab *Tab) Result {
	c.mu.Lock()
	if tab != nil {
		t := *tab
		c.current = &t
	}
	if !c.current.renderable() {
		c.mu.Unlock()
		return Result{TabID: NoTabID}
	}
	target := *c.current
	c.next++
	mySeq := c.next
	c.seq[target.ID] = mySeq
	c.mu.Unlock()

	result := c.evaluate(ctx, target)

	c.mu.Lock()
	defer c.mu.Unlock()
	if latest, tracked := c.seq[target.ID]; !tracked {
		utils.Debugf("tab %d: closed during evaluation, not rendering", target.ID)
		return result
	} else if c.cfg.LatestWins && latest != mySeq {
		utils.Debugf("tab %d: discarding superseded evaluation %d", target.ID, mySeq)
		return result
	}
	c.render(&result)
	return result
}

// evaluate picks the state in priority order: no credential, invalid
// credential, non-bookmarkable URL, then the remote bookmark state.
func (c *Controller) evaluate(ctx context.Context, tab Tab) Result {
	result := Result{TabID: tab.ID}
	opts := c.options.Get(ctx)

	switch {
	case !opts.HasToken():
		result.Surface = SurfaceEmptyAuth
	case !opts.AuthTokenValid:
		result.Surface = SurfaceInvalidAuth
	case !urlcheck.IsBookmarkable(tab.URL):
		result.Surface = SurfaceInvalidURL
	default:
		result.Surface = SurfaceNormal
		bookmarked, err := c.bookmarks.IsBookmarked(ctx, tab.URL)
		if err != nil {
			utils.Warnf("tab %d: bookmark lookup failed: %v", tab.ID, err)
		}
		result.Bookmarked = bookmarked
	}
	return result
}

// render must be called with c.mu held so that the ordering check and the
// host calls are not interleaved with another render.
func (c *Controller) render(result *Result) {
	if err := c.renderer.SetIcon(result.TabID, result.Bookmarked); err != nil {
		utils.Warnf("tab %d: set icon failed: %v", result.TabID, err)
	}
	if err := c.renderer.SetPopup(result.TabID, result.Surface); err != nil {
		utils.Warnf("tab %d: set popup failed: %v", result.TabID, err)
	}
	result.Rendered = true
}

// OnTabActivated handles a tab becoming active.
func (c *Controller) OnTabActivated(ctx context.Context, tabID int) Result {
	if c.tabs == nil {
		return Result{TabID: NoTabID}
	}
	tab, err := c.tabs.GetTab(ctx, tabID)
	if err != nil {
		utils.Warnf("tab %d: lookup after activation failed: %v", tabID, err)
		return Result{TabID: NoTabID}
	}
	if tab == nil {
		return Result{TabID: NoTabID}
	}
	return c.Refresh(ctx, tab)
}

// OnTabUpdated handles a tab update; only URL changes trigger a refresh.
func (c *Controller) OnTabUpdated(ctx context.Context, tabID int, change ChangeInfo, tab Tab) Result {
	if change.URL == "" {
		return Result{TabID: NoTabID}
	}
	if tab.ID == 0 {
		tab.ID = tabID
	}
	if tab.URL == "" {
		tab.URL = change.URL
	}
	return c.Refresh(ctx, &tab)
}

// OnWindowFocusChanged refreshes the active tab of the newly focused window.
func (c *Controller) OnWindowFocusChanged(ctx context.Context, windowID int) Result {
	if windowID == WindowNone || c.tabs == nil {
		return Result{TabID: NoTabID}
	}
	tab, err := c.tabs.ActiveTab(ctx, windowID)
	if err != nil {
		utils.Warnf("window %d: active tab lookup failed: %v", windowID, err)
		return Result{TabID: NoTabID}
	}
	if tab == nil {
		return Result{TabID: NoTabID}
	}
	tab.Focused = true
	return c.Refresh(ctx, tab)
}
