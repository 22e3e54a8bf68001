package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/repolens/repolens-backend/internal/clients/github"
	"github.com/repolens/repolens-backend/internal/clients/openai"
	"github.com/repolens/repolens-backend/internal/clients/redisbus"
	"github.com/repolens/repolens-backend/internal/config"
	"github.com/repolens/repolens-backend/internal/db"
	"github.com/repolens/repolens-backend/internal/handlers"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/orchestrator"
	"github.com/repolens/repolens-backend/internal/repos"
	"github.com/repolens/repolens-backend/internal/server"
	"github.com/repolens/repolens-backend/internal/services"
	"github.com/repolens/repolens-backend/internal/sse"
)

func main() {
	// Logger
	_ = godotenv.Load()
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	log.Info("Loading configuration from main...")
	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal("Could not load configuration", "error", err)
	}

	// Database
	dbService, err := db.New(log)
	if err != nil {
		log.Fatal("Database init failed", "error", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Fatal("Auto migration failed", "error", err)
	}
	gdb := dbService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	projectRepo := repos.NewProjectRepo(gdb, log)
	scanEventRepo := repos.NewScanEventRepo(gdb, log)
	newsSourceRepo := repos.NewNewsSourceRepo(gdb, log)
	settingRepo := repos.NewSettingRepo(gdb, log)

	// Seed default discovery sources on first boot so the news scan has
	// targets before anyone configures their own.
	if existing, err := newsSourceRepo.List(context.Background()); err == nil && len(existing) == 0 {
		for _, url := range cfg.DiscoveryURLs {
			if err := newsSourceRepo.Add(context.Background(), url, url); err != nil {
				log.Warn("Failed to seed discovery source", "url", url, "error", err)
			}
		}
	}

	// Event hub, with optional redis mirror
	log.Info("Setting up event hub from main...")
	hub := sse.NewHub(log)
	if bus, err := redisbus.New(log); err != nil {
		log.Info("Redis event mirror disabled", "reason", err)
	} else {
		defer bus.Close()
		hub.SetMirror(func(ev sse.LogEvent) {
			if err := bus.Publish(context.Background(), ev); err != nil {
				log.Warn("Redis publish failed", "error", err)
			}
		})
		if err := bus.StartForwarder(context.Background(), func(ev sse.LogEvent) {
			if ev.Origin != hub.Origin() {
				hub.Deliver(ev)
			}
		}); err != nil {
			log.Warn("Redis forwarder failed to start", "error", err)
		}
	}

	// Clients
	log.Info("Setting up clients from main...")
	githubClient := github.NewClient(log, cfg)
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Fatal("Could not init OpenAI client", "error", err)
	}

	var snapshotter services.Snapshotter
	snapshotService, err := services.NewSnapshotService(log, cfg.Scan.ScreenshotDir)
	if err != nil {
		log.Warn("Snapshot service unavailable, visual stages will be skipped", "error", err)
	} else {
		defer snapshotService.Close()
		snapshotter = snapshotService
	}

	// Services
	log.Info("Setting up services from main...")
	analyzerService := services.NewAnalyzerService(log, openaiClient, cfg.Models)
	contentService := services.NewContentService(log, openaiClient, cfg.Models)
	pipelineService := services.NewPipelineService(log, projectRepo, githubClient, analyzerService, contentService, snapshotter, hub, cfg.Models)
	archiveService := services.NewArchiveService(log, projectRepo, cfg.Scan.ArchiveDir, cfg.Scan.TutorialDir)

	// Orchestrator and scheduler
	orch := orchestrator.New(log, cfg, projectRepo, scanEventRepo, newsSourceRepo, githubClient, analyzerService, contentService, pipelineService, archiveService, hub)
	scheduler := orchestrator.NewScheduler(log, orch, settingRepo, cfg.Scan.DefaultScanTime)
	scheduler.Start(context.Background())
	defer scheduler.Shutdown()

	// Handlers
	log.Info("Setting up handlers from main...")
	catalogHandler := handlers.NewCatalogHandler(log, cfg, projectRepo, scanEventRepo, archiveService, orch)
	scanHandler := handlers.NewScanHandler(log, orch)
	searchHandler := handlers.NewSearchHandler(log, orch, projectRepo, githubClient, contentService)
	newsHandler := handlers.NewNewsHandler(log, newsSourceRepo, projectRepo, githubClient, hub)
	settingsHandler := handlers.NewSettingsHandler(log, settingRepo, cfg.Scan.DefaultScanTime)
	logsHandler := handlers.NewLogsHandler(log, hub)

	// Router
	router := server.NewRouter(server.RouterConfig{
		CatalogHandler:  catalogHandler,
		ScanHandler:     scanHandler,
		SearchHandler:   searchHandler,
		NewsHandler:     newsHandler,
		SettingsHandler: settingsHandler,
		LogsHandler:     logsHandler,
		ScreenshotDir:   cfg.Scan.ScreenshotDir,
	})

	fmt.Printf("Server listening on %s\n", cfg.ListenAddr)
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Error("Server failed", "error", err)
	}
}
