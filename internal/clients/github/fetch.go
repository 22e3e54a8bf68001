package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/types"
)

const readmeMaxRunes = 10000

type readmeResponse struct {
	Content string `json:"content"`
}

// GetReadme fetches the repository readme, base64-decoded and truncated.
// Best-effort: any failure returns the empty string.
func (c *Client) GetReadme(ctx context.Context, fullName string) string {
	var resp readmeResponse
	if err := c.get(ctx, c.baseURL+"/repos/"+fullName+"/readme", &resp); err != nil {
		c.log.Debug("Readme fetch failed", "repo", fullName, "error", err)
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
	if err != nil {
		return ""
	}
	runes := []rune(string(decoded))
	if len(runes) > readmeMaxRunes {
		runes = runes[:readmeMaxRunes]
	}
	return string(runes)
}

// FetchByURL looks up a single repository from its page URL. When the API
// signals quota exhaustion it falls back to scraping the page itself; the
// scraped result is lower fidelity and tagged so consumers can tell.
func (c *Client) FetchByURL(ctx context.Context, pageURL string) (*types.Project, error) {
	fullName, err := fullNameFromURL(pageURL)
	if err != nil {
		return nil, err
	}

	var item repoItem
	err = c.get(ctx, c.baseURL+"/repos/"+fullName, &item)
	if apperr.IsQuota(err) {
		c.log.Warn("Rate limit hit, falling back to page scrape", "url", pageURL)
		return c.scrapePage(ctx, pageURL)
	}
	if err != nil {
		return nil, err
	}
	return c.parseRepo(item, "manual"), nil
}

func fullNameFromURL(pageURL string) (string, error) {
	parts := strings.Split(strings.TrimRight(pageURL, "/"), "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("cannot extract owner/repo from %q", pageURL)
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1], nil
}

// scrapePage extracts name, description and a best-effort star count from
// repository page markup. Everything it cannot see is marked unknown.
func (c *Client) scrapePage(ctx context.Context, pageURL string) (*types.Project, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "RepoLens-Agent/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.TransientError{Op: "scrape page", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape http %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}

	fullName := "Unknown/Unknown"
	description := "No description available (Scraped)"
	stars := 0

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				prop, content := attr(n, "property"), attr(n, "content")
				if prop == "og:title" && content != "" {
					fullName = strings.TrimSpace(strings.SplitN(content, ":", 2)[0])
				}
				if prop == "og:description" && content != "" {
					description = content
				}
			case "span":
				if attr(n, "id") == "repo-stars-counter-star" {
					stars = parseStarCount(textContent(n))
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	name := fullName
	if idx := strings.LastIndex(fullName, "/"); idx >= 0 {
		name = fullName[idx+1:]
	}

	return &types.Project{
		ID:          syntheticID(fullName),
		Name:        name,
		FullName:    fullName,
		Category:    "manual_scraped",
		Stars:       stars,
		Description: description,
		URL:         pageURL,
		Language:    "Unknown (Scraped)",
		Topics:      []string{"scraped"},
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339),
	}, nil
}

var starCountRe = regexp.MustCompile(`([\d,]+\.?\d*[kK]?)`)

func parseStarCount(text string) int {
	match := starCountRe.FindString(text)
	if match == "" {
		return 0
	}
	val := strings.ReplaceAll(strings.ToLower(match), ",", "")
	if strings.Contains(val, "k") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(val, "k"), 64)
		if err != nil {
			return 0
		}
		return int(f * 1000)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return n
}

// syntheticID gives scraped/crawled entries a stable identifier derived from
// the full name, since no API id is available on that path.
func syntheticID(fullName string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fullName))
	return "x" + strconv.FormatUint(h.Sum64(), 16)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}
