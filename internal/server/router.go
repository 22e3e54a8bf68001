package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/repolens/repolens-backend/internal/handlers"
)

type RouterConfig struct {
	CatalogHandler  *handlers.CatalogHandler
	ScanHandler     *handlers.ScanHandler
	SearchHandler   *handlers.SearchHandler
	NewsHandler     *handlers.NewsHandler
	SettingsHandler *handlers.SettingsHandler
	LogsHandler     *handlers.LogsHandler
	ScreenshotDir   string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5001",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.Static("/static/screenshots", cfg.ScreenshotDir)

	api := router.Group("/api")
	{
		// Catalog
		api.GET("/categories", cfg.CatalogHandler.ListCategories)
		api.GET("/projects/:category", cfg.CatalogHandler.ListProjects)
		api.GET("/project/:id", cfg.CatalogHandler.GetProject)
		api.POST("/project/add", cfg.CatalogHandler.AddProjectByLink)
		api.DELETE("/project/delete/:id", cfg.CatalogHandler.DeleteProject)
		api.GET("/export", cfg.CatalogHandler.Export)
		api.GET("/stats", cfg.CatalogHandler.Stats)
		api.GET("/pending", cfg.CatalogHandler.Pending)
		api.GET("/tutorial/:id", cfg.CatalogHandler.Tutorial)

		// Scans and analysis
		api.POST("/scan", cfg.ScanHandler.StartFullScan)
		api.POST("/scan/news", cfg.ScanHandler.ScanNews)
		api.POST("/scan/:category", cfg.ScanHandler.ScanCategory)
		api.POST("/stop", cfg.ScanHandler.Stop)
		api.POST("/analyze_all", cfg.ScanHandler.AnalyzeAll)
		api.POST("/analyze/:id", cfg.ScanHandler.AnalyzeProject)
		api.GET("/status", cfg.ScanHandler.Status)
		api.GET("/progress", cfg.ScanHandler.Progress)
		api.POST("/reset", cfg.ScanHandler.Reset)

		// Search
		api.POST("/search", cfg.SearchHandler.Search)
		api.POST("/search/local", cfg.SearchHandler.SearchLocal)
		api.POST("/search/remote", cfg.SearchHandler.SearchRemote)
		api.POST("/search/recommend", cfg.SearchHandler.Recommend)
		api.POST("/search/compare", cfg.SearchHandler.Compare)
		api.POST("/agent/refine", cfg.SearchHandler.Refine)

		// Discovery sources
		api.POST("/news/scan", cfg.NewsHandler.CrawlPage)
		api.GET("/news/sources", cfg.NewsHandler.ListSources)
		api.POST("/news/sources/add", cfg.NewsHandler.AddSource)
		api.DELETE("/news/sources/delete/:id", cfg.NewsHandler.DeleteSource)
		api.POST("/news/sources/scan/:id", cfg.NewsHandler.ScanSource)

		// Settings and live logs
		api.GET("/settings", cfg.SettingsHandler.Get)
		api.POST("/settings", cfg.SettingsHandler.Save)
		api.GET("/logs", cfg.LogsHandler.Stream)
	}

	return router
}
