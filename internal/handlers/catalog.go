package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/config"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/orchestrator"
	"github.com/repolens/repolens-backend/internal/repos"
	"github.com/repolens/repolens-backend/internal/services"
)

// CatalogHandler serves the stored catalog: categories, project listings and
// single-entry operations.
type CatalogHandler struct {
	log      *logger.Logger
	cfg      *config.Config
	projects repos.ProjectRepo
	scans    repos.ScanEventRepo
	archive  services.ArchiveService
	orch     *orchestrator.Orchestrator
}

func NewCatalogHandler(
	log *logger.Logger,
	cfg *config.Config,
	projects repos.ProjectRepo,
	scans repos.ScanEventRepo,
	archive services.ArchiveService,
	orch *orchestrator.Orchestrator,
) *CatalogHandler {
	return &CatalogHandler{
		log:      log.With("handler", "CatalogHandler"),
		cfg:      cfg,
		projects: projects,
		scans:    scans,
		archive:  archive,
		orch:     orch,
	}
}

func (h *CatalogHandler) ListCategories(c *gin.Context) {
	RespondOK(c, h.cfg.Categories)
}

func (h *CatalogHandler) ListProjects(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	projects, err := h.projects.GetByCategory(c.Request.Context(), c.Param("category"), limit)
	if err != nil {
		h.log.Error("ListProjects failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "load_projects_failed", err)
		return
	}
	RespondOK(c, projects)
}

func (h *CatalogHandler) GetProject(c *gin.Context) {
	project, err := h.projects.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, apperr.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "project_not_found", err)
		return
	}
	if err != nil {
		h.log.Error("GetProject failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "load_project_failed", err)
		return
	}
	RespondOK(c, project)
}

func (h *CatalogHandler) DeleteProject(c *gin.Context) {
	id := c.Param("id")
	if err := h.projects.Delete(c.Request.Context(), id); err != nil {
		h.log.Error("DeleteProject failed", "id", id, "error", err)
		RespondError(c, http.StatusInternalServerError, "delete_project_failed", err)
		return
	}
	RespondOK(c, gin.H{"status": "deleted", "id": id})
}

func (h *CatalogHandler) AddProjectByLink(c *gin.Context) {
	var body struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.URL == "" {
		RespondError(c, http.StatusBadRequest, "url_required", errors.New("url is required"))
		return
	}
	project, err := h.orch.AddProjectByLink(c.Request.Context(), body.URL)
	if err != nil {
		h.log.Error("AddProjectByLink failed", "url", body.URL, "error", err)
		RespondError(c, http.StatusBadRequest, "add_project_failed", err)
		return
	}
	RespondOK(c, gin.H{"status": "added", "project": project})
}

func (h *CatalogHandler) Export(c *gin.Context) {
	dir, err := h.archive.ExportCatalog(c.Request.Context())
	if err != nil {
		h.log.Error("Export failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "export_failed", err)
		return
	}
	RespondOK(c, gin.H{"status": "success", "path": dir})
}

func (h *CatalogHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	counts, err := h.projects.CountByCategory(ctx)
	if err != nil {
		h.log.Error("Stats failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "stats_failed", err)
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	pending, err := h.projects.CountPending(ctx, h.cfg.Models.Classifier)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "stats_failed", err)
		return
	}
	recent, err := h.scans.Recent(ctx, 10)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "stats_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"total":        total,
		"analyzed":     total - pending,
		"categories":   counts,
		"recent_scans": recent,
	})
}

func (h *CatalogHandler) Pending(c *gin.Context) {
	count, err := h.projects.CountPending(c.Request.Context(), h.cfg.Models.Classifier)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "pending_failed", err)
		return
	}
	RespondOK(c, gin.H{"pending": count})
}

func (h *CatalogHandler) Tutorial(c *gin.Context) {
	tutorial, err := h.orch.GenerateTutorial(c.Request.Context(), c.Param("id"))
	if errors.Is(err, apperr.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "project_not_found", err)
		return
	}
	if err != nil {
		h.log.Error("Tutorial failed", "id", c.Param("id"), "error", err)
		RespondError(c, http.StatusInternalServerError, "tutorial_failed", err)
		return
	}
	RespondOK(c, gin.H{"tutorial": tutorial})
}
