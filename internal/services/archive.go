package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/repos"
	"github.com/repolens/repolens-backend/internal/types"
)

// ArchiveService writes point-in-time catalog exports to disk: one JSON file
// per category plus a _stats.json rollup under data/archive/<date>/, and
// standalone tutorial documents under data/tutorials/.
type ArchiveService interface {
	ExportCatalog(ctx context.Context) (string, error)
	SaveTutorial(project *types.Project) (string, error)
}

type archiveService struct {
	log         *logger.Logger
	projects    repos.ProjectRepo
	archiveDir  string
	tutorialDir string
}

func NewArchiveService(log *logger.Logger, projects repos.ProjectRepo, archiveDir, tutorialDir string) ArchiveService {
	return &archiveService{
		log:         log.With("service", "ArchiveService"),
		projects:    projects,
		archiveDir:  archiveDir,
		tutorialDir: tutorialDir,
	}
}

type archivedProject struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	FullName    string   `json:"full_name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Language    string   `json:"language"`
	Stars       int      `json:"stars"`
	Topics      []string `json:"topics"`
	AISummary   string   `json:"ai_summary,omitempty"`
	AITags      []string `json:"ai_tech_stack,omitempty"`
}

type archiveStats struct {
	Date       string         `json:"date"`
	Total      int            `json:"total"`
	Categories map[string]int `json:"categories"`
	Languages  map[string]int `json:"languages"`
}

// ExportCatalog returns the directory the export was written to.
func (s *archiveService) ExportCatalog(ctx context.Context) (string, error) {
	all, err := s.projects.All(ctx)
	if err != nil {
		return "", err
	}

	date := time.Now().Format("2006-01-02")
	dir := filepath.Join(s.archiveDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	byCategory := make(map[string][]archivedProject)
	stats := archiveStats{
		Date:       date,
		Total:      len(all),
		Categories: make(map[string]int),
		Languages:  make(map[string]int),
	}
	for _, p := range all {
		entry := archivedProject{
			ID:          p.ID,
			Name:        p.Name,
			FullName:    p.FullName,
			Description: p.Description,
			URL:         p.URL,
			Language:    p.Language,
			Stars:       p.Stars,
			Topics:      p.Topics,
			AISummary:   p.AISummary,
			AITags:      p.AITechStack,
		}
		byCategory[p.Category] = append(byCategory[p.Category], entry)
		stats.Categories[p.Category]++
		if p.Language != "" {
			stats.Languages[p.Language]++
		}
	}

	for category, entries := range byCategory {
		if err := writeJSON(filepath.Join(dir, category+".json"), entries); err != nil {
			return "", fmt.Errorf("archive category %s: %w", category, err)
		}
	}
	if err := writeJSON(filepath.Join(dir, "_stats.json"), stats); err != nil {
		return "", err
	}

	s.log.Info("Catalog archived", "dir", dir, "projects", len(all), "categories", len(byCategory))
	return dir, nil
}

// SaveTutorial writes the entry's tutorial markdown and returns the path.
func (s *archiveService) SaveTutorial(project *types.Project) (string, error) {
	if project.AITutorial == "" {
		return "", fmt.Errorf("project %s has no tutorial", project.ID)
	}
	if err := os.MkdirAll(s.tutorialDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.tutorialDir, safeFileName(project.FullName)+".md")
	if err := os.WriteFile(path, []byte(project.AITutorial), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func safeFileName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_")
	out := replacer.Replace(name)
	if out == "" {
		out = "project"
	}
	return out
}
