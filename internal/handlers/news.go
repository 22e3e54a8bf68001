package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/orchestrator"
	"github.com/repolens/repolens-backend/internal/repos"
	"github.com/repolens/repolens-backend/internal/sse"
	"github.com/repolens/repolens-backend/internal/types"
)

// NewsHandler manages discovery sources and ad-hoc page crawls.
type NewsHandler struct {
	log      *logger.Logger
	sources  repos.NewsSourceRepo
	projects repos.ProjectRepo
	github   orchestrator.GithubClient
	hub      *sse.Hub
}

func NewNewsHandler(
	log *logger.Logger,
	sources repos.NewsSourceRepo,
	projects repos.ProjectRepo,
	github orchestrator.GithubClient,
	hub *sse.Hub,
) *NewsHandler {
	return &NewsHandler{
		log:      log.With("handler", "NewsHandler"),
		sources:  sources,
		projects: projects,
		github:   github,
		hub:      hub,
	}
}

// CrawlPage previews the repository links found on an arbitrary page without
// cataloging them.
func (h *NewsHandler) CrawlPage(c *gin.Context) {
	var body struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.URL == "" {
		RespondError(c, http.StatusBadRequest, "url_required", errors.New("url is required"))
		return
	}
	h.hub.Notify("Scanning page "+body.URL, sse.LevelInfo)
	projects, err := h.github.CrawlExternalPage(c.Request.Context(), body.URL)
	if err != nil {
		h.log.Error("Page crawl failed", "url", body.URL, "error", err)
		RespondError(c, http.StatusBadGateway, "crawl_failed", err)
		return
	}
	h.hub.Notify(strconv.Itoa(len(projects))+" potential projects found", sse.LevelSuccess)
	RespondOK(c, gin.H{"results": projects})
}

func (h *NewsHandler) ListSources(c *gin.Context) {
	sources, err := h.sources.List(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "load_sources_failed", err)
		return
	}
	RespondOK(c, gin.H{"sources": sources})
}

func (h *NewsHandler) AddSource(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.URL == "" {
		RespondError(c, http.StatusBadRequest, "url_required", errors.New("url is required"))
		return
	}
	if body.Name == "" {
		body.Name = "Untitled Source"
	}
	if err := h.sources.Add(c.Request.Context(), body.Name, body.URL); err != nil {
		h.log.Error("AddSource failed", "url", body.URL, "error", err)
		RespondError(c, http.StatusInternalServerError, "add_source_failed", err)
		return
	}
	RespondOK(c, gin.H{"status": "added"})
}

func (h *NewsHandler) DeleteSource(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	if err := h.sources.Delete(c.Request.Context(), uint(id)); err != nil {
		RespondError(c, http.StatusInternalServerError, "delete_source_failed", err)
		return
	}
	RespondOK(c, gin.H{"status": "deleted"})
}

// ScanSource crawls one stored source and catalogs links not seen before.
func (h *NewsHandler) ScanSource(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	ctx := c.Request.Context()
	source, err := h.sources.Get(ctx, uint(id))
	if errors.Is(err, apperr.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "source_not_found", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "load_source_failed", err)
		return
	}

	h.hub.Notify("Scanning source "+source.Name, sse.LevelInfo)
	found, err := h.github.CrawlExternalPage(ctx, source.URL)
	if err != nil {
		h.log.Error("Source crawl failed", "source", source.Name, "error", err)
		RespondError(c, http.StatusBadGateway, "crawl_failed", err)
		return
	}

	var added []*types.Project
	for _, project := range found {
		exists, err := h.projects.Exists(ctx, project.ID)
		if err != nil {
			RespondError(c, http.StatusInternalServerError, "scan_failed", err)
			return
		}
		if exists {
			continue
		}
		if err := h.projects.Upsert(ctx, project); err != nil {
			RespondError(c, http.StatusInternalServerError, "scan_failed", err)
			return
		}
		added = append(added, project)
	}

	if err := h.sources.TouchScanned(ctx, source.ID); err != nil {
		h.log.Warn("Failed to touch source scan time", "source", source.Name, "error", err)
	}
	h.hub.Notify("Source scanned, "+strconv.Itoa(len(added))+" new items", sse.LevelSuccess)
	RespondOK(c, gin.H{"results": added, "total_found": len(found), "new_count": len(added)})
}
