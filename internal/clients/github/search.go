package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/types"
)

// Low-signal repositories excluded from remote search results unless the
// query itself asks for that kind of content.
var excludeKeywords = []string{
	"book", "interview", "tutorial", "course", "awesome",
	"collection", "list", "cheatsheet",
}

var tutorialIntent = []string{"tutorial", "learn", "course", "book"}

// SearchByKeywords merges keywords into one disjunctive query with a
// minimum-star filter and issues a single paginated request. A quota signal
// triggers one fixed-backoff retry; a second failure yields an empty result.
func (c *Client) SearchByKeywords(ctx context.Context, keywords []string, category string) []*types.Project {
	query := fmt.Sprintf("(%s) stars:>%d", strings.Join(keywords, " OR "), c.minStars)
	searchURL := c.searchURL(query, "stars", c.perPage, 1)

	c.log.Info("Searching category", "category", category, "query", query)

	var resp searchResponse
	err := c.get(ctx, searchURL, &resp)
	if apperr.IsQuota(err) {
		c.log.Warn("Rate limit hit, backing off before retry", "category", category, "backoff", c.quotaBackoff.String())
		if sleepErr := c.sleep(ctx, c.quotaBackoff); sleepErr != nil {
			return nil
		}
		resp = searchResponse{}
		err = c.get(ctx, searchURL, &resp)
	}
	if err != nil {
		c.log.Warn("Search failed, returning empty result", "category", category, "error", err)
		return nil
	}

	projects := make([]*types.Project, 0, len(resp.Items))
	for _, item := range resp.Items {
		projects = append(projects, c.parseRepo(item, category))
	}

	c.politeDelay(ctx)
	return projects
}

// SearchRemote paginates a free-text query up to maxPages or until limit
// results survive the quality filter. Results are deduplicated by ID within
// the call.
func (c *Client) SearchRemote(ctx context.Context, query string, limit int) []*types.Project {
	const maxPages = 3

	q := query
	if !strings.Contains(q, "sort:") && !strings.Contains(q, "stars:") {
		q += " stars:>50"
	}

	wantsTutorial := false
	lower := strings.ToLower(query)
	for _, k := range tutorialIntent {
		if strings.Contains(lower, k) {
			wantsTutorial = true
			break
		}
	}

	seen := make(map[string]bool)
	var projects []*types.Project

	for page := 1; len(projects) < limit && page <= maxPages; page++ {
		var resp searchResponse
		err := c.get(ctx, c.searchURL(q, "", 50, page), &resp)
		if apperr.IsQuota(err) {
			c.log.Warn("Rate limit hit during remote search, stopping", "page", page)
			break
		}
		if err != nil {
			c.log.Warn("Remote search page failed", "page", page, "error", err)
			break
		}
		if len(resp.Items) == 0 {
			break
		}

		for _, item := range resp.Items {
			if len(projects) >= limit {
				break
			}
			if !wantsTutorial && isLowSignal(item) {
				continue
			}
			p := c.parseRepo(item, "remote_search")
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			if p.AIRAGSummary == "" {
				p.AIRAGSummary = "GitHub Live Result"
			}
			projects = append(projects, p)
		}

		_ = c.sleep(ctx, time.Second)
	}

	return projects
}

// GetTrending returns popular repositories pushed within the last week.
func (c *Client) GetTrending(ctx context.Context) []*types.Project {
	query := fmt.Sprintf("stars:>1000 pushed:>%s", dateOffset(7))
	return c.windowSearch(ctx, query, "trending")
}

// GetNewReleases returns well-received repositories created within the last
// month.
func (c *Client) GetNewReleases(ctx context.Context) []*types.Project {
	query := fmt.Sprintf("stars:>100 created:>%s", dateOffset(30))
	return c.windowSearch(ctx, query, "new_releases")
}

func (c *Client) windowSearch(ctx context.Context, query, category string) []*types.Project {
	var resp searchResponse
	if err := c.get(ctx, c.searchURL(query, "stars", 30, 1), &resp); err != nil {
		c.log.Warn("Window search failed", "category", category, "error", err)
		return nil
	}
	projects := make([]*types.Project, 0, len(resp.Items))
	for _, item := range resp.Items {
		projects = append(projects, c.parseRepo(item, category))
	}
	return projects
}

func (c *Client) searchURL(query, sort string, perPage, page int) string {
	v := url.Values{}
	v.Set("q", query)
	if sort != "" {
		v.Set("sort", sort)
		v.Set("order", "desc")
	}
	v.Set("per_page", fmt.Sprintf("%d", perPage))
	v.Set("page", fmt.Sprintf("%d", page))
	return c.baseURL + "/search/repositories?" + v.Encode()
}

func isLowSignal(item repoItem) bool {
	name := strings.ToLower(item.Name)
	desc := strings.ToLower(item.Description)
	for _, bad := range excludeKeywords {
		if strings.Contains(name, bad) || strings.Contains(desc, bad) {
			return true
		}
	}
	return false
}
