package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/config"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/types"
	"github.com/repolens/repolens-backend/internal/utils"
)

// Client talks to the GitHub search/repos API with quota backoff and
// politeness delays. All search methods degrade to empty results on
// persistent failure; callers treat an empty slice as "nothing found this
// round".
type Client struct {
	log        *logger.Logger
	baseURL    string
	token      string
	httpClient *http.Client

	minStars     int
	perPage      int
	quotaBackoff time.Duration
	politeAuthed time.Duration
	politeAnon   time.Duration

	// sleep is swapped out in tests so backoff paths run instantly.
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

func WithPoliteness(authed, anon time.Duration) Option {
	return func(c *Client) {
		c.politeAuthed = authed
		c.politeAnon = anon
	}
}

func NewClient(log *logger.Logger, cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		log:          log.With("service", "GithubClient"),
		baseURL:      utils.GetEnv("GITHUB_API_BASE", "https://api.github.com", log),
		token:        cfg.GithubToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		minStars:     cfg.Scan.MinStars,
		perPage:      cfg.Scan.PerCategory,
		quotaBackoff: cfg.Scan.QuotaBackoff,
		politeAuthed: 2 * time.Second,
		politeAnon:   10 * time.Second,
		sleep:        sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// repoItem mirrors the fields of a repository object in API responses.
type repoItem struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	FullName        string   `json:"full_name"`
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	Description     string   `json:"description"`
	HTMLURL         string   `json:"html_url"`
	Homepage        string   `json:"homepage"`
	Language        string   `json:"language"`
	Topics          []string `json:"topics"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

type searchResponse struct {
	TotalCount int        `json:"total_count"`
	Items      []repoItem `json:"items"`
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "RepoLens-Agent/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperr.TransientError{Op: "github get", Err: err}
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return &apperr.TransientError{Op: "github read body", Err: readErr}
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return &apperr.QuotaError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("github http %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("github decode: %w", err)
	}
	return nil
}

// politeDelay is applied after every successful search call. The search API
// quota is far tighter without a token.
func (c *Client) politeDelay(ctx context.Context) {
	d := c.politeAnon
	if c.token != "" {
		d = c.politeAuthed
	}
	_ = c.sleep(ctx, d)
}

func (c *Client) parseRepo(item repoItem, category string) *types.Project {
	return &types.Project{
		ID:          strconv.FormatInt(item.ID, 10),
		Name:        item.Name,
		FullName:    item.FullName,
		Category:    category,
		Stars:       item.StargazersCount,
		Forks:       item.ForksCount,
		Description: item.Description,
		URL:         item.HTMLURL,
		Homepage:    item.Homepage,
		Language:    item.Language,
		Topics:      item.Topics,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func dateOffset(days int) string {
	return time.Now().AddDate(0, 0, -days).Format("2006-01-02")
}
