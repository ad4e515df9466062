package tabstate

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"

	"pinmark/internal/options"
)

type staticOptions struct {
	opts options.Options
}

func (s staticOptions) Get(ctx context.Context) options.Options { return s.opts }

// fakeChecker answers from a fixed set and counts calls
type fakeChecker struct {
	mu         sync.Mutex
	bookmarked map[string]bool
	err        error
	calls      int
}

func (f *fakeChecker) IsBookmarked(ctx context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.bookmarked[url], nil
}

// gatedChecker blocks each lookup of a URL until its gate is released
type gatedChecker struct {
	gates   map[string]chan struct{}
	answers map[string]bool
	started chan string
}

func (g *gatedChecker) IsBookmarked(ctx context.Context, url string) (bool, error) {
	g.started <- url
	<-g.gates[url]
	return g.answers[url], nil
}

type renderCall struct {
	tabID      int
	bookmarked bool
	surface    Surface
}

type fakeRenderer struct {
	mu    sync.Mutex
	icons []renderCall
	last  map[int]renderCall
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{last: make(map[int]renderCall)}
}

func (f *fakeRenderer) SetIcon(tabID int, bookmarked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.icons = append(f.icons, renderCall{tabID: tabID, bookmarked: bookmarked})
	c := f.last[tabID]
	c.tabID = tabID
	c.bookmarked = bookmarked
	f.last[tabID] = c
	return nil
}

func (f *fakeRenderer) SetPopup(tabID int, surface Surface) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.last[tabID]
	c.tabID = tabID
	c.surface = surface
	f.last[tabID] = c
	return nil
}

func (f *fakeRenderer) iconCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.icons)
}

func validOptions() options.Options {
	o := options.Defaults()
	o.APIToken = "user:ABC"
	o.AuthTokenValid = true
	return o
}

func TestRefreshStates(t *testing.T) {
	invalid := options.Defaults()
	invalid.APIToken = "user:ABC"

	tests := []struct {
		name           string
		opts           options.Options
		url            string
		wantSurface    Surface
		wantBookmarked bool
		wantCalls      int
	}{
		{"no credential", options.Defaults(), "https://example.com/", SurfaceEmptyAuth, false, 0},
		{"invalid credential", invalid, "https://example.com/", SurfaceInvalidAuth, false, 0},
		{"non-bookmarkable url", validOptions(), "about:blank", SurfaceInvalidURL, false, 0},
		{"bookmarked", validOptions(), "https://example.com/", SurfaceNormal, true, 1},
		{"not bookmarked", validOptions(), "https://other.example/", SurfaceNormal, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &fakeChecker{bookmarked: map[string]bool{"https://example.com/": true}}
			renderer := newFakeRenderer()
			c := NewController(Config{LatestWins: true}, staticOptions{tt.opts}, checker, renderer, nil)

			res := c.Refresh(context.Background(), &Tab{ID: 5, URL: tt.url})

			if res.Surface != tt.wantSurface || res.Bookmarked != tt.wantBookmarked {
				t.Errorf("Refresh() = %+v, want surface %s bookmarked %v", res, tt.wantSurface, tt.wantBookmarked)
			}
			if !res.Rendered {
				t.Error("expected result to be rendered")
			}
			if checker.calls != tt.wantCalls {
				t.Errorf("remote lookups = %d, want %d", checker.calls, tt.wantCalls)
			}
			got := renderer.last[5]
			if got.surface != tt.wantSurface || got.bookmarked != tt.wantBookmarked {
				t.Errorf("rendered %+v", got)
			}
		})
	}
}

func TestRefreshNilReusesCurrentTab(t *testing.T) {
	checker := &fakeChecker{bookmarked: map[string]bool{"https://example.com/": true}}
	renderer := newFakeRenderer()
	c := NewController(Config{}, staticOptions{validOptions()}, checker, renderer, nil)
	ctx := context.Background()

	if res := c.Refresh(ctx, nil); res.Rendered || res.TabID != NoTabID {
		t.Errorf("refresh without a remembered tab should be a no-op, got %+v", res)
	}

	c.Refresh(ctx, &Tab{ID: 3, URL: "https://example.com/"})
	res := c.Refresh(ctx, nil)
	if res.TabID != 3 || !res.Bookmarked {
		t.Errorf("Refresh(nil) = %+v, want tab 3 bookmarked", res)
	}
	if renderer.iconCount() != 2 {
		t.Errorf("expected 2 renders, got %d", renderer.iconCount())
	}
	if cur := c.Current(); cur == nil || cur.ID != 3 {
		t.Errorf("Current() = %+v", cur)
	}
}

func TestRefreshSkipsUnrenderableTabs(t *testing.T) {
	tabs := []*Tab{
		{ID: NoTabID, URL: "https://example.com/"},
		{ID: 0, URL: "https://example.com/"},
		{ID: 4, URL: ""},
	}
	for _, tab := range tabs {
		checker := &fakeChecker{}
		renderer := newFakeRenderer()
		c := NewController(Config{}, staticOptions{validOptions()}, checker, renderer, nil)

		res := c.Refresh(context.Background(), tab)
		if res.Rendered {
			t.Errorf("tab %+v: expected no render", tab)
		}
		if renderer.iconCount() != 0 || checker.calls != 0 {
			t.Errorf("tab %+v: expected no host or remote calls", tab)
		}
	}
}

func TestRefreshLookupErrorRendersUnbookmarked(t *testing.T) {
	checker := &fakeChecker{err: errors.New("connection refused")}
	renderer := newFakeRenderer()
	c := NewController(Config{}, staticOptions{validOptions()}, checker, renderer, nil)

	res := c.Refresh(context.Background(), &Tab{ID: 9, URL: "https://example.com/"})
	if !res.Rendered || res.Bookmarked || res.Surface != SurfaceNormal {
		t.Errorf("Refresh() = %+v", res)
	}
}

func TestOnTabUpdatedRequiresURLChange(t *testing.T) {
	checker := &fakeChecker{}
	renderer := newFakeRenderer()
	c := NewController(Config{}, staticOptions{validOptions()}, checker, renderer, nil)
	ctx := context.Background()

	if res := c.OnTabUpdated(ctx, 2, ChangeInfo{Status: "loading"}, Tab{ID: 2, URL: "https://example.com/"}); res.Rendered {
		t.Error("status-only update should not refresh")
	}
	if renderer.iconCount() != 0 {
		t.Fatalf("unexpected render")
	}

	res := c.OnTabUpdated(ctx, 2, ChangeInfo{URL: "https://example.com/next"}, Tab{})
	if !res.Rendered || res.TabID != 2 {
		t.Errorf("URL change should refresh tab 2, got %+v", res)
	}
	if cur := c.Current(); cur == nil || cur.URL != "https://example.com/next" {
		t.Errorf("Current() = %+v", cur)
	}
}

func TestWindowFocusAndActivation(t *testing.T) {
	reg := NewRegistry()
	reg.Upsert(Tab{ID: 11, WindowID: 1, URL: "https://example.com/"})
	reg.Upsert(Tab{ID: 12, WindowID: 2, URL: "https://example.org/"})
	reg.Activate(1, 11)
	reg.Activate(2, 12)

	checker := &fakeChecker{bookmarked: map[string]bool{"https://example.org/": true}}
	board := NewBoard(nil)
	c := NewController(Config{}, staticOptions{validOptions()}, checker, board, reg)
	ctx := context.Background()

	if res := c.OnWindowFocusChanged(ctx, WindowNone); res.Rendered {
		t.Error("focus leaving all windows should not refresh")
	}
	if _, ok := board.View(11); ok {
		t.Fatal("nothing should be rendered yet")
	}

	res := c.OnWindowFocusChanged(ctx, 2)
	if res.TabID != 12 || !res.Bookmarked {
		t.Errorf("OnWindowFocusChanged(2) = %+v", res)
	}
	if cur := c.Current(); cur == nil || !cur.Focused {
		t.Errorf("expected focused current tab, got %+v", cur)
	}

	res = c.OnTabActivated(ctx, 11)
	if res.TabID != 11 || res.Bookmarked {
		t.Errorf("OnTabActivated(11) = %+v", res)
	}
	view, ok := board.View(11)
	if !ok || view.Surface != SurfaceNormal || view.Bookmarked {
		t.Errorf("board view = %+v, %v", view, ok)
	}

	if res := c.OnTabActivated(ctx, 99); res.Rendered {
		t.Error("unknown tab should not refresh")
	}
}

func TestRegistryUpsertKeepsKnownFields(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()
	reg.Upsert(Tab{ID: 1, WindowID: 4, URL: "https://a.example/"})
	reg.Upsert(Tab{ID: 1})

	tab, err := reg.GetTab(ctx, 1)
	if err != nil {
		t.Fatalf("GetTab error: %v", err)
	}
	if tab.URL != "https://a.example/" || tab.WindowID != 4 {
		t.Errorf("GetTab() = %+v", tab)
	}

	reg.Activate(4, 1)
	reg.Remove(1)
	if _, err := reg.ActiveTab(ctx, 4); err == nil {
		t.Error("expected error after removing the active tab")
	}
}

// runOverlapping starts an evaluation of tab 1 at first, then a second
// evaluation of the same tab at second, and releases the second one first.
func runOverlapping(t *testing.T, cfg Config) (*fakeRenderer, Result, Result) {
	t.Helper()
	const first, second = "https://first.example/", "https://second.example/"
	checker := &gatedChecker{
		gates:   map[string]chan struct{}{first: make(chan struct{}), second: make(chan struct{})},
		answers: map[string]bool{first: true, second: false},
		started: make(chan string, 2),
	}
	renderer := newFakeRenderer()
	c := NewController(cfg, staticOptions{validOptions()}, checker, renderer, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var r1, r2 Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		r1 = c.Refresh(ctx, &Tab{ID: 1, URL: first})
	}()
	<-checker.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		r2 = c.Refresh(ctx, &Tab{ID: 1, URL: second})
	}()
	<-checker.started

	close(checker.gates[second])
	for renderer.iconCount() == 0 {
		// second evaluation renders first in both modes
		runtime.Gosched()
	}
	close(checker.gates[first])
	wg.Wait()
	return renderer, r1, r2
}

func TestLatestWinsDiscardsSupersededRender(t *testing.T) {
	renderer, r1, r2 := runOverlapping(t, Config{LatestWins: true})

	if r1.Rendered {
		t.Error("older evaluation should be discarded")
	}
	if !r2.Rendered {
		t.Error("newer evaluation should render")
	}
	if got := renderer.last[1]; got.bookmarked {
		t.Errorf("final icon should reflect the newer evaluation, got %+v", got)
	}
}

func TestCompletionOrderRendersBoth(t *testing.T) {
	renderer, r1, r2 := runOverlapping(t, Config{LatestWins: false})

	if !r1.Rendered || !r2.Rendered {
		t.Errorf("both evaluations should render, got %v %v", r1.Rendered, r2.Rendered)
	}
	if renderer.iconCount() != 2 {
		t.Errorf("expected 2 icon calls, got %d", renderer.iconCount())
	}
	if got := renderer.last[1]; !got.bookmarked {
		t.Errorf("last completed evaluation should win, got %+v", got)
	}
}

func TestForgetDropsClosedTab(t *testing.T) {
	const url = "https://closing.example/"
	checker := &gatedChecker{
		gates:   map[string]chan struct{}{url: make(chan struct{})},
		answers: map[string]bool{url: true},
		started: make(chan string, 1),
	}
	renderer := newFakeRenderer()
	c := NewController(Config{LatestWins: true}, staticOptions{validOptions()}, checker, renderer, nil)
	ctx := context.Background()

	done := make(chan Result, 1)
	go func() { done <- c.Refresh(ctx, &Tab{ID: 9, URL: url}) }()
	<-checker.started

	c.Forget(9)
	close(checker.gates[url])

	if res := <-done; res.Rendered {
		t.Error("evaluation of a closed tab should not render")
	}
	if renderer.iconCount() != 0 {
		t.Errorf("expected no icon calls, got %d", renderer.iconCount())
	}
	if cur := c.Current(); cur != nil {
		t.Errorf("closed tab should not stay current, got %+v", cur)
	}
	c.mu.Lock()
	tracked := len(c.seq)
	c.mu.Unlock()
	if tracked != 0 {
		t.Errorf("expected no per-tab bookkeeping left, got %d entries", tracked)
	}
	if res := c.Refresh(ctx, nil); res.TabID != NoTabID {
		t.Errorf("Refresh(nil) after Forget = %+v, want no-op", res)
	}
}

func TestForgetOtherTabKeepsCurrent(t *testing.T) {
	checker := &fakeChecker{bookmarked: map[string]bool{}}
	c := NewController(Config{LatestWins: true}, staticOptions{validOptions()}, checker, newFakeRenderer(), nil)
	ctx := context.Background()

	c.Refresh(ctx, &Tab{ID: 1, URL: "https://one.example/"})
	c.Refresh(ctx, &Tab{ID: 2, URL: "https://two.example/"})
	c.Forget(1)

	if cur := c.Current(); cur == nil || cur.ID != 2 {
		t.Errorf("Current() = %+v, want tab 2", cur)
	}
	if res := c.Refresh(ctx, nil); !res.Rendered || res.TabID != 2 {
		t.Errorf("Refresh(nil) = %+v", res)
	}
}
