package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// maxTitleBody bounds how much of a page is read looking for its title.
const maxTitleBody = 1 << 20

// fetchTitle downloads rawURL and returns the text of its <title> element.
func fetchTitle(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", fmt.Errorf("fetching %s: not an HTML page (%s)", rawURL, ct)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxTitleBody))
	if err != nil {
		return "", err
	}
	return findTitle(doc), nil
}

// findTitle returns the whitespace-collapsed text of the first <title>.
func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, "title") {
		return strings.Join(strings.Fields(textContent(n)), " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var text strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return text.String()
}
