package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/orchestrator"
)

// ScanHandler triggers and observes the orchestrator's long-running tasks.
// Full scans and batch analysis return immediately and run in the
// background; the single-flight slot inside the orchestrator is the final
// arbiter when two triggers race.
type ScanHandler struct {
	log  *logger.Logger
	orch *orchestrator.Orchestrator
}

func NewScanHandler(log *logger.Logger, orch *orchestrator.Orchestrator) *ScanHandler {
	return &ScanHandler{
		log:  log.With("handler", "ScanHandler"),
		orch: orch,
	}
}

func (h *ScanHandler) StartFullScan(c *gin.Context) {
	if h.orch.Status(c.Request.Context()).Running {
		RespondError(c, http.StatusConflict, "task_running", apperr.ErrBusy)
		return
	}
	go func() {
		if _, err := h.orch.RunFullScan(context.Background()); err != nil && !errors.Is(err, apperr.ErrBusy) {
			h.log.Error("Background full scan failed", "error", err)
		}
	}()
	RespondOK(c, gin.H{"status": "started"})
}

func (h *ScanHandler) Stop(c *gin.Context) {
	h.orch.Stop()
	RespondOK(c, gin.H{"status": "stopping"})
}

func (h *ScanHandler) ScanCategory(c *gin.Context) {
	found, added, err := h.orch.RunCategoryScan(c.Request.Context(), c.Param("category"))
	var unknown *apperr.UnknownCategoryError
	if errors.As(err, &unknown) {
		RespondError(c, http.StatusNotFound, "unknown_category", err)
		return
	}
	if err != nil {
		h.log.Error("Category scan failed", "category", c.Param("category"), "error", err)
		RespondError(c, http.StatusInternalServerError, "scan_failed", err)
		return
	}
	RespondOK(c, gin.H{"status": "completed", "found": found, "new": added})
}

func (h *ScanHandler) ScanNews(c *gin.Context) {
	if h.orch.Status(c.Request.Context()).Running {
		RespondError(c, http.StatusConflict, "task_running", apperr.ErrBusy)
		return
	}
	go func() {
		if _, err := h.orch.RunNewsScan(context.Background()); err != nil && !errors.Is(err, apperr.ErrBusy) {
			h.log.Error("Background news scan failed", "error", err)
		}
	}()
	RespondOK(c, gin.H{"status": "started", "message": "News scan started"})
}

func (h *ScanHandler) AnalyzeProject(c *gin.Context) {
	project, err := h.orch.AnalyzeSingle(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, apperr.ErrBusy):
		RespondError(c, http.StatusConflict, "task_running", err)
		return
	case errors.Is(err, apperr.ErrNotFound):
		RespondError(c, http.StatusNotFound, "project_not_found", err)
		return
	case err != nil:
		h.log.Error("Single analysis failed", "id", c.Param("id"), "error", err)
		RespondError(c, http.StatusInternalServerError, "analyze_failed", err)
		return
	}
	RespondOK(c, gin.H{"status": "analyzed", "project": project})
}

func (h *ScanHandler) AnalyzeAll(c *gin.Context) {
	go func() {
		if _, err := h.orch.RunBatchAnalysis(context.Background()); err != nil && !errors.Is(err, apperr.ErrBusy) {
			h.log.Error("Background batch analysis failed", "error", err)
		}
	}()
	RespondOK(c, gin.H{"status": "started", "message": "Batch analysis started in background"})
}

func (h *ScanHandler) Status(c *gin.Context) {
	RespondOK(c, h.orch.Status(c.Request.Context()))
}

func (h *ScanHandler) Progress(c *gin.Context) {
	progress := h.orch.GetProgress()
	if progress.Task == "" {
		progress.Current = "Idle"
	}
	RespondOK(c, progress)
}

func (h *ScanHandler) Reset(c *gin.Context) {
	err := h.orch.ResetAllData(c.Request.Context())
	if errors.Is(err, apperr.ErrBusy) {
		RespondError(c, http.StatusConflict, "task_running", err)
		return
	}
	if err != nil {
		h.log.Error("Reset failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "reset_failed", err)
		return
	}
	RespondOK(c, gin.H{"status": "reset"})
}
