package tabstate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Registry is a TabSource fed by host events. It remembers the last snapshot
// of every tab and the active tab of every window.
type Registry struct {
	mu     sync.RWMutex
	tabs   map[int]Tab
	active map[int]int // window id -> tab id
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tabs:   make(map[int]Tab),
		active: make(map[int]int),
	}
}

// Upsert records a tab snapshot. Empty fields keep their previous value.
func (r *Registry) Upsert(tab Tab) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.tabs[tab.ID]
	if ok {
		if tab.URL == "" {
			tab.URL = prev.URL
		}
		if tab.WindowID == 0 {
			tab.WindowID = prev.WindowID
		}
	}
	r.tabs[tab.ID] = tab
}

// Activate marks tabID as the active tab of its window.
func (r *Registry) Activate(windowID, tabID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[windowID] = tabID
	if tab, ok := r.tabs[tabID]; ok && windowID != 0 {
		tab.WindowID = windowID
		r.tabs[tabID] = tab
	}
}

// Remove forgets a closed tab.
func (r *Registry) Remove(tabID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, tabID)
	for w, id := range r.active {
		if id == tabID {
			delete(r.active, w)
		}
	}
}

// GetTab returns the last snapshot of tabID.
func (r *Registry) GetTab(ctx context.Context, tabID int) (*Tab, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tab, ok := r.tabs[tabID]
	if !ok {
		return nil, fmt.Errorf("unknown tab %d", tabID)
	}
	return &tab, nil
}

// ActiveTab returns the active tab of windowID.
func (r *Registry) ActiveTab(ctx context.Context, windowID int) (*Tab, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.active[windowID]
	if !ok {
		return nil, fmt.Errorf("no active tab known for window %d", windowID)
	}
	tab, ok := r.tabs[id]
	if !ok {
		return nil, fmt.Errorf("unknown tab %d", id)
	}
	return &tab, nil
}

// TabView is the last rendered state of a tab
type TabView struct {
	TabID      int       `json:"tabId"`
	Bookmarked bool      `json:"bookmarked"`
	Surface    Surface   `json:"popup"`
	Updated    time.Time `json:"updated"`
}

// Board is an in-process Renderer that keeps the last rendered state per tab
// and optionally forwards every call to a host renderer.
type Board struct {
	mu      sync.RWMutex
	views   map[int]TabView
	forward Renderer
}

// NewBoard creates a board. forward may be nil.
func NewBoard(forward Renderer) *Board {
	return &Board{
		views:   make(map[int]TabView),
		forward: forward,
	}
}

// SetIcon records the icon state.
func (b *Board) SetIcon(tabID int, bookmarked bool) error {
	b.mu.Lock()
	v := b.views[tabID]
	v.TabID = tabID
	v.Bookmarked = bookmarked
	v.Updated = time.Now()
	b.views[tabID] = v
	b.mu.Unlock()

	if b.forward != nil {
		return b.forward.SetIcon(tabID, bookmarked)
	}
	return nil
}

// SetPopup records the popup surface.
func (b *Board) SetPopup(tabID int, surface Surface) error {
	b.mu.Lock()
	v := b.views[tabID]
	v.TabID = tabID
	v.Surface = surface
	v.Updated = time.Now()
	b.views[tabID] = v
	b.mu.Unlock()

	if b.forward != nil {
		return b.forward.SetPopup(tabID, surface)
	}
	return nil
}

// View returns the last rendered state of tabID.
func (b *Board) View(tabID int) (TabView, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.views[tabID]
	return v, ok
}
