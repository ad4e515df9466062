package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"pinmark/backend"
	"pinmark/internal/cache"
	"pinmark/internal/dispatch"
	"pinmark/internal/options"
	"pinmark/internal/tabstate"
	"pinmark/internal/urlcheck"
	"pinmark/internal/utils"
)

// cliTabID is the tab id used when the CLI evaluates a URL outside a browser.
const cliTabID = 1

// requireToken reports a missing or rejected token before any remote call.
func requireToken(opts options.Options) error {
	if !opts.HasToken() {
		return utils.ErrTokenMissing()
	}
	if !opts.AuthTokenValid {
		return utils.ErrTokenInvalid()
	}
	return nil
}

// responseError turns a dispatcher error string into an error.
func responseError(resp dispatch.Response) error {
	if msg := resp.Err(); msg != nil {
		if *msg == backend.ErrUnauthorized.Error() {
			return utils.ErrAuthenticationFailed("pinboard")
		}
		return errors.New(*msg)
	}
	return nil
}

func newLookupCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup [url]",
		Short: "Show the bookmark stored for a URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawURL, err := urlArg(cfg, args)
			if err != nil {
				return err
			}
			if !urlcheck.IsBookmarkable(rawURL) {
				return utils.ErrNotBookmarkable(rawURL)
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := context.Background()
			if err := requireToken(a.options.Get(ctx)); err != nil {
				return err
			}

			resp, err := a.handle(ctx, dispatch.LookupBookmarkRequest{URL: rawURL})
			if err != nil {
				return err
			}
			if err := responseError(resp); err != nil {
				return err
			}
			lookup := resp.(*dispatch.LookupBookmarkResponse)

			if jsonFlag(cmd) {
				return writeJSON(stdout, lookup)
			}
			printBookmark(stdout, rawURL, lookup.Bookmark)
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultInfoOnly)
			}
			return nil
		},
	}
}

func printBookmark(w io.Writer, rawURL string, post *backend.Post) {
	if post == nil {
		_, _ = fmt.Fprintf(w, "Not bookmarked: %s\n", rawURL)
		return
	}
	_, _ = fmt.Fprintf(w, "Bookmarked: %s\n", post.URL)
	if post.Description != "" {
		_, _ = fmt.Fprintf(w, "  Title:     %s\n", post.Description)
	}
	if post.Extended != "" {
		_, _ = fmt.Fprintf(w, "  Notes:     %s\n", post.Extended)
	}
	if tags := post.TagList(); len(tags) > 0 {
		_, _ = fmt.Fprintf(w, "  Tags:      %s\n", strings.Join(tags, ", "))
	}
	_, _ = fmt.Fprintf(w, "  Shared:    %s\n", post.Shared)
	_, _ = fmt.Fprintf(w, "  Read later: %s\n", post.ToRead)
	if post.Time != "" {
		_, _ = fmt.Fprintf(w, "  Saved:     %s\n", post.Time)
	}
}

func newTagsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List account tags, optionally ranked against a filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := context.Background()
			opts := a.options.Get(ctx)
			if err := requireToken(opts); err != nil {
				return err
			}

			tags, err := a.cache.GetTags(ctx)
			if err != nil {
				return err
			}
			if filter != "" && !opts.TagSuggestions {
				utils.Debugf("tag suggestions disabled, ignoring filter %q", filter)
				filter = ""
			}
			tags = cache.SuggestTags(tags, filter, limit)
			if tags == nil {
				tags = []string{}
			}

			if jsonFlag(cmd) {
				return writeJSON(stdout, struct {
					Tags []string `json:"tags"`
				}{tags})
			}
			for _, tag := range tags {
				_, _ = fmt.Fprintln(stdout, tag)
			}
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultInfoOnly)
			}
			return nil
		},
	}
	cmd.Flags().StringP("filter", "f", "", "Rank tags by fuzzy match against this text")
	cmd.Flags().IntP("limit", "n", 0, "Maximum number of tags to show (0 = all)")
	return cmd
}

func newAddCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [url]",
		Short: "Bookmark a URL",
		Long:  "Bookmark a URL, replacing any existing bookmark for it. Privacy and read-later default to the stored options.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawURL, err := urlArg(cfg, args)
			if err != nil {
				return err
			}
			if !urlcheck.IsBookmarkable(rawURL) {
				return utils.ErrNotBookmarkable(rawURL)
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := context.Background()
			opts := a.options.Get(ctx)
			if err := requireToken(opts); err != nil {
				return err
			}

			req := dispatch.AddBookmarkRequest{
				URL:       rawURL,
				Private:   opts.PrivateDefault,
				ReadLater: opts.ReadLaterDefault,
			}
			req.Title, _ = cmd.Flags().GetString("title")
			req.Description, _ = cmd.Flags().GetString("description")
			tags, _ := cmd.Flags().GetStringSlice("tag")
			req.Tags = dispatch.TagList(tags)
			if cmd.Flags().Changed("private") {
				req.Private, _ = cmd.Flags().GetBool("private")
			}
			if cmd.Flags().Changed("read-later") {
				req.ReadLater, _ = cmd.Flags().GetBool("read-later")
			}

			if req.Title == "" {
				if noFetch, _ := cmd.Flags().GetBool("no-fetch-title"); !noFetch {
					title, err := fetchTitle(ctx, cfg.HTTPClient, rawURL)
					if err != nil {
						utils.Debugf("title fetch failed: %v", err)
					}
					req.Title = title
				}
			}
			if req.Title == "" {
				req.Title = rawURL
			}

			// Remember the URL as the current tab so the dispatcher's
			// post-mutation refresh evaluates it.
			a.controller.Refresh(ctx, &tabstate.Tab{ID: cliTabID, URL: rawURL, Focused: true})

			resp, err := a.handle(ctx, req)
			if err != nil {
				return err
			}
			if err := responseError(resp); err != nil {
				return err
			}

			if jsonFlag(cmd) {
				return writeJSON(stdout, resp)
			}
			_, _ = fmt.Fprintf(stdout, "Bookmarked %s\n", rawURL)
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
			}
			return nil
		},
	}
	cmd.Flags().StringP("title", "t", "", "Bookmark title (default: the page's <title>)")
	cmd.Flags().StringP("description", "d", "", "Free-form notes")
	cmd.Flags().StringSlice("tag", nil, "Tag (can be specified multiple times or comma-separated)")
	cmd.Flags().Bool("private", false, "Do not share the bookmark publicly")
	cmd.Flags().Bool("read-later", false, "Mark the bookmark as unread")
	cmd.Flags().Bool("no-fetch-title", false, "Do not download the page to find its title")
	return cmd
}

func newDeleteCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <url>",
		Short: "Delete the bookmark for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawURL := args[0]
			if !urlcheck.IsBookmarkable(rawURL) {
				return utils.ErrNotBookmarkable(rawURL)
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := context.Background()
			if err := requireToken(a.options.Get(ctx)); err != nil {
				return err
			}

			if !cfg.NoPrompt {
				prompt := fmt.Sprintf("Delete bookmark for %s?", rawURL)
				if !utils.PromptYesNoWithReader(prompt, stdinOf(cfg), stdout) {
					_, _ = fmt.Fprintln(stdout, "Cancelled")
					return nil
				}
			}

			a.controller.Refresh(ctx, &tabstate.Tab{ID: cliTabID, URL: rawURL, Focused: true})

			resp, err := a.handle(ctx, dispatch.DeleteBookmarkRequest{URL: rawURL})
			if err != nil {
				return err
			}
			if err := responseError(resp); err != nil {
				return err
			}

			if jsonFlag(cmd) {
				return writeJSON(stdout, resp)
			}
			_, _ = fmt.Fprintf(stdout, "Deleted bookmark for %s\n", rawURL)
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
			}
			return nil
		},
	}
}

var (
	statusBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#888888", Dark: "#505050"}).
			Padding(0, 1)
	statusBookmarked = lipgloss.NewStyle().Bold(true).
				Foreground(lipgloss.AdaptiveColor{Light: "#4A7070", Dark: "#5F8787"})
	statusPlain = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#505050", Dark: "#A0A0A0"})
	statusWarn = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9A6A00", Dark: "#D7AF5F"})
)

// surfaceLabel describes a popup surface for humans.
func surfaceLabel(s tabstate.Surface) string {
	switch s {
	case tabstate.SurfaceEmptyAuth:
		return "no API token configured"
	case tabstate.SurfaceInvalidAuth:
		return "API token rejected"
	case tabstate.SurfaceInvalidURL:
		return "URL cannot be bookmarked"
	case tabstate.SurfaceNormal:
		return "ready"
	}
	return string(s)
}

func renderStatus(rawURL string, view tabstate.TabView) string {
	icon := statusPlain.Render("not bookmarked")
	if view.Bookmarked {
		icon = statusBookmarked.Render("bookmarked")
	}
	popup := surfaceLabel(view.Surface)
	if view.Surface == tabstate.SurfaceNormal {
		popup = statusPlain.Render(popup)
	} else {
		popup = statusWarn.Render(popup)
	}

	lines := []string{
		rawURL,
		"icon:  " + icon,
		"popup: " + popup,
	}
	return statusBox.Render(strings.Join(lines, "\n"))
}

func newStatusCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status [url]",
		Short: "Show the icon and popup a browser tab on this URL would get",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawURL, err := urlArg(cfg, args)
			if err != nil {
				return err
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := context.Background()
			tab := tabstate.Tab{ID: cliTabID, URL: rawURL, Focused: true}
			a.registry.Upsert(tab)
			a.controller.Refresh(ctx, &tab)

			view, ok := a.board.View(cliTabID)
			if !ok {
				return fmt.Errorf("no state rendered for %s", rawURL)
			}

			if jsonFlag(cmd) {
				return writeJSON(stdout, view)
			}
			_, _ = fmt.Fprintln(stdout, renderStatus(rawURL, view))
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultInfoOnly)
			}
			return nil
		},
	}
}
