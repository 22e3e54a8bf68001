package services

import (
	"context"
	"errors"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/config"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/repos"
	"github.com/repolens/repolens-backend/internal/sse"
	"github.com/repolens/repolens-backend/internal/types"
)

// ReadmeFetcher is the slice of the GitHub client the pipeline needs.
type ReadmeFetcher interface {
	GetReadme(ctx context.Context, fullName string) string
}

// Snapshotter captures a page screenshot and returns the stored path.
type Snapshotter interface {
	Capture(ctx context.Context, pageURL, projectID string) (string, error)
}

// Notifier receives human-readable progress events from the pipeline.
type Notifier interface {
	Notify(message string, level sse.Level)
}

// PipelineService drives the enrichment stages for one catalog entry in
// order: readme, structured analysis, retrieval summary, screenshot, visual
// analysis, tutorial. Every stage is idempotent against the stored entry and
// commits its output immediately, so an interrupted run loses at most the
// stage in flight.
type PipelineService interface {
	EnrichProject(ctx context.Context, project *types.Project) error
}

type pipelineService struct {
	log      *logger.Logger
	projects repos.ProjectRepo
	fetcher  ReadmeFetcher
	analyzer AnalyzerService
	content  ContentService
	snapshot Snapshotter
	notifier Notifier
	models   config.Models
}

func NewPipelineService(
	log *logger.Logger,
	projects repos.ProjectRepo,
	fetcher ReadmeFetcher,
	analyzer AnalyzerService,
	content ContentService,
	snapshot Snapshotter,
	notifier Notifier,
	models config.Models,
) PipelineService {
	return &pipelineService{
		log:      log.With("service", "PipelineService"),
		projects: projects,
		fetcher:  fetcher,
		analyzer: analyzer,
		content:  content,
		snapshot: snapshot,
		notifier: notifier,
		models:   models,
	}
}

func (s *pipelineService) EnrichProject(ctx context.Context, project *types.Project) error {
	var readme string
	needsReadme := !project.Analyzed(s.models.Classifier) || project.AIRAGSummary == "" ||
		project.AIRAGSummary == "GitHub Live Result" || project.AIRAGSummary == "Pending detail fetch" ||
		project.AITutorial == ""
	if needsReadme && project.FullName != "" {
		readme = s.fetcher.GetReadme(ctx, project.FullName)
	}

	if err := s.runAnalysis(ctx, project, readme); err != nil {
		return err
	}
	if err := s.runRAGSummary(ctx, project, readme); err != nil {
		return err
	}
	s.runVisual(ctx, project)
	return s.runTutorial(ctx, project, readme)
}

func (s *pipelineService) runAnalysis(ctx context.Context, project *types.Project, readme string) error {
	if project.Analyzed(s.models.Classifier) {
		return nil
	}
	analysis, err := s.analyzer.AnalyzeProject(ctx, project, readme)
	switch {
	case err == nil:
	case errors.As(err, new(*apperr.MalformedResponseError)):
		s.log.Warn("Analysis output unparseable, using default", "project", project.FullName)
		analysis = s.analyzer.DefaultAnalysis(project)
	default:
		return err
	}
	if err := s.projects.UpdateAnalysis(ctx, project.ID, analysis, s.models.Classifier); err != nil {
		return err
	}
	project.AISummary = analysis.Summary
	project.AITechStack = analysis.TechStack
	project.AIUseCases = analysis.UseCases
	project.AIDifficulty = analysis.Difficulty
	project.AIQuickStart = analysis.QuickStart
	project.AIModelName = s.models.Classifier
	s.notifier.Notify("Analyzed "+project.FullName, sse.LevelSuccess)
	return nil
}

func (s *pipelineService) runRAGSummary(ctx context.Context, project *types.Project, readme string) error {
	if project.AIRAGSummary != "" && project.AIRAGSummary != "GitHub Live Result" && project.AIRAGSummary != "Pending detail fetch" {
		return nil
	}
	summary, err := s.analyzer.GenerateRAGSummary(ctx, project, readme)
	if err != nil {
		if apperr.IsQuota(err) {
			return err
		}
		s.log.Warn("RAG summary failed, falling back to description", "project", project.FullName, "error", err)
		summary = project.Description
		if summary == "" {
			summary = project.Name
		}
	}
	if err := s.projects.UpdateRAGSummary(ctx, project.ID, summary); err != nil {
		return err
	}
	project.AIRAGSummary = summary
	return nil
}

// runVisual is best effort: a missing browser or a page that will not render
// must never block the textual stages that follow.
func (s *pipelineService) runVisual(ctx context.Context, project *types.Project) {
	if s.snapshot == nil || project.AIVisualSummary != "" || project.URL == "" {
		return
	}
	path := project.Screenshot
	if path == "" {
		captured, err := s.snapshot.Capture(ctx, project.URL, project.ID)
		if err != nil {
			s.log.Warn("Screenshot capture failed", "project", project.FullName, "error", err)
			return
		}
		if err := s.projects.UpdateScreenshot(ctx, project.ID, captured); err != nil {
			s.log.Error("Failed to store screenshot path", "project", project.FullName, "error", err)
			return
		}
		project.Screenshot = captured
		path = captured
	}
	visual, err := s.analyzer.AnalyzeWithVision(ctx, project, path)
	if err != nil {
		s.log.Warn("Visual analysis failed", "project", project.FullName, "error", err)
		return
	}
	if err := s.projects.UpdateVisualSummary(ctx, project.ID, visual); err != nil {
		s.log.Error("Failed to store visual summary", "project", project.FullName, "error", err)
		return
	}
	project.AIVisualSummary = visual
	s.notifier.Notify("Visual analysis done for "+project.Name, sse.LevelInfo)
}

func (s *pipelineService) runTutorial(ctx context.Context, project *types.Project, readme string) error {
	if project.AITutorial != "" {
		return nil
	}
	tutorial, err := s.content.GenerateTutorial(ctx, project, readme, project.AIVisualSummary)
	if err != nil {
		return err
	}
	if err := s.projects.UpdateTutorial(ctx, project.ID, tutorial); err != nil {
		return err
	}
	project.AITutorial = tutorial
	return nil
}
