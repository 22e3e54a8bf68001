package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/types"
)

const crawlPageCap = 30

var repoLinkRe = regexp.MustCompile(`github\.com/([a-zA-Z0-9._-]+)/([a-zA-Z0-9._-]+)`)

// Paths that look like owner/repo but are site chrome, not projects.
var nonProjectPaths = []string{
	"site/policy", "login", "pricing", "features", "topics/",
	"search", "about", "contact",
}

// CrawlExternalPage extracts repository links from an arbitrary HTML page
// (trending pages, weekly digests, blog posts). Output is deduplicated and
// capped per page; entries carry only what the link itself reveals.
func (c *Client) CrawlExternalPage(ctx context.Context, pageURL string) ([]*types.Project, error) {
	c.log.Info("Scanning external source", "url", pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "RepoLens-Agent/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.TransientError{Op: "crawl page", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crawl http %d for %s", resp.StatusCode, pageURL)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var projects []*types.Project

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(projects) >= crawlPageCap {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			if p := c.projectFromLink(n, pageURL, seen); p != nil {
				projects = append(projects, p)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return projects, nil
}

func (c *Client) projectFromLink(n *html.Node, pageURL string, seen map[string]bool) *types.Project {
	href := attr(n, "href")
	match := repoLinkRe.FindStringSubmatch(href)
	if match == nil {
		return nil
	}
	fullName := match[1] + "/" + match[2]

	if seen[fullName] {
		return nil
	}
	lower := strings.ToLower(fullName)
	for _, bad := range nonProjectPaths {
		if strings.Contains(lower, bad) {
			return nil
		}
	}
	seen[fullName] = true

	linkText := strings.TrimSpace(textContent(n))
	if linkText == "" || strings.Contains(linkText, "github.com") {
		linkText = "Discovered via link"
	}
	if runes := []rune(linkText); len(runes) > 50 {
		linkText = string(runes[:50])
	}

	return &types.Project{
		ID:           syntheticID(fullName),
		Name:         fullName[strings.Index(fullName, "/")+1:],
		FullName:     fullName,
		Description:  fmt.Sprintf("Found in %s. Link text: %s", pageURL, linkText),
		Language:     "Unknown",
		URL:          "https://github.com/" + fullName,
		Category:     "news",
		Topics:       []string{"discovered"},
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		AIRAGSummary: "Pending detail fetch",
	}
}
