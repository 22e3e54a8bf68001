package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/orchestrator"
	"github.com/repolens/repolens-backend/internal/repos"
	"github.com/repolens/repolens-backend/internal/services"
	"github.com/repolens/repolens-backend/internal/types"
)

type SearchHandler struct {
	log     *logger.Logger
	orch    *orchestrator.Orchestrator
	project repos.ProjectRepo
	github  orchestrator.GithubClient
	content services.ContentService
}

func NewSearchHandler(
	log *logger.Logger,
	orch *orchestrator.Orchestrator,
	projects repos.ProjectRepo,
	github orchestrator.GithubClient,
	content services.ContentService,
) *SearchHandler {
	return &SearchHandler{
		log:     log.With("handler", "SearchHandler"),
		orch:    orch,
		project: projects,
		github:  github,
		content: content,
	}
}

type searchBody struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
	SkipAI bool   `json:"skip_ai"`
}

func (b *searchBody) normalize(defaultLimit int) {
	if b.Limit <= 0 {
		b.Limit = defaultLimit
	}
}

// Search is the full agent flow: hybrid retrieval, then (unless skip_ai) a
// model-written recommendation over the result set.
func (h *SearchHandler) Search(c *gin.Context) {
	var body searchBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Query == "" {
		RespondError(c, http.StatusBadRequest, "query_required", errors.New("query is required"))
		return
	}
	body.normalize(20)

	results, err := h.orch.SearchHybrid(c.Request.Context(), body.Query, body.Limit)
	if err != nil {
		h.log.Error("Hybrid search failed", "query", body.Query, "error", err)
		RespondError(c, http.StatusInternalServerError, "search_failed", err)
		return
	}

	recommendation := ""
	if !body.SkipAI {
		if len(results) > 0 {
			deref := make([]types.Project, len(results))
			for i, p := range results {
				deref[i] = *p
			}
			recommendation, err = h.content.RecommendSolution(c.Request.Context(), body.Query, deref)
			if err != nil {
				h.log.Warn("Recommendation generation failed", "error", err)
			}
		} else {
			recommendation = "No matching projects in the catalog yet. Try different keywords or run more category scans first."
		}
	}

	RespondOK(c, gin.H{"results": results, "recommendation": recommendation})
}

func (h *SearchHandler) SearchLocal(c *gin.Context) {
	var body searchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	body.normalize(20)
	results, err := h.project.Search(c.Request.Context(), body.Query, body.Limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "search_failed", err)
		return
	}
	RespondOK(c, gin.H{"results": results})
}

func (h *SearchHandler) SearchRemote(c *gin.Context) {
	var body searchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	body.normalize(10)
	results := h.github.SearchRemote(c.Request.Context(), body.Query, body.Limit)
	RespondOK(c, gin.H{"results": results})
}

func (h *SearchHandler) Recommend(c *gin.Context) {
	var body struct {
		Query    string          `json:"query"`
		Projects []types.Project `json:"projects"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Query == "" || len(body.Projects) == 0 {
		RespondError(c, http.StatusBadRequest, "query_and_projects_required", errors.New("query and projects are required"))
		return
	}
	recommendation, err := h.content.RecommendSolution(c.Request.Context(), body.Query, body.Projects)
	if err != nil {
		h.log.Error("Recommendation failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "recommend_failed", err)
		return
	}
	RespondOK(c, gin.H{"recommendation": recommendation})
}

// Compare generates a side-by-side comparison for two or more cataloged
// projects.
func (h *SearchHandler) Compare(c *gin.Context) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || len(body.IDs) < 2 {
		RespondError(c, http.StatusBadRequest, "ids_required", errors.New("at least two project ids are required"))
		return
	}
	projects := make([]types.Project, 0, len(body.IDs))
	for _, id := range body.IDs {
		project, err := h.project.Get(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				RespondError(c, http.StatusNotFound, "project_not_found", err)
				return
			}
			RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
			return
		}
		projects = append(projects, *project)
	}
	comparison, err := h.content.CompareProjects(c.Request.Context(), projects)
	if err != nil {
		h.log.Error("Comparison failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "compare_failed", err)
		return
	}
	RespondOK(c, gin.H{"comparison": comparison})
}

func (h *SearchHandler) Refine(c *gin.Context) {
	var body struct {
		History []services.ChatTurn `json:"history"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	result, err := h.orch.RefineSearch(c.Request.Context(), body.History)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "refine_failed", err)
		return
	}
	RespondOK(c, result)
}
