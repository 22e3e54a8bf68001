package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/repolens/repolens-backend/internal/clients/openai"
	"github.com/repolens/repolens-backend/internal/config"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/types"
)

// ContentService runs the long-form generation tasks on the heavyweight
// analyzer model: deployment tutorials, solution recommendations and
// side-by-side comparisons.
type ContentService interface {
	GenerateTutorial(ctx context.Context, project *types.Project, readme, visualSummary string) (string, error)
	RecommendSolution(ctx context.Context, query string, projects []types.Project) (string, error)
	CompareProjects(ctx context.Context, projects []types.Project) (string, error)
}

type contentService struct {
	log    *logger.Logger
	ai     openai.Client
	models config.Models
}

func NewContentService(log *logger.Logger, ai openai.Client, models config.Models) ContentService {
	return &contentService{
		log:    log.With("service", "ContentService"),
		ai:     ai,
		models: models,
	}
}

const tutorialPrompt = `Write a hands-on deployment tutorial in Markdown for the repository below. The reader is a developer who has never used the project.

%s
%s
Sections, in order:
1. What it is and when to use it (two or three sentences)
2. Prerequisites (runtime, accounts, hardware if relevant)
3. Installation, step by step, with exact commands in fenced code blocks
4. A minimal working example
5. Common pitfalls and how to avoid them

Infer the commands from the README where possible; do not invent package names. Keep the tone practical.`

func (s *contentService) GenerateTutorial(ctx context.Context, project *types.Project, readme, visualSummary string) (string, error) {
	visual := ""
	if visualSummary != "" {
		visual = fmt.Sprintf("Visual analysis of the project page:\n%s\n\n", visualSummary)
	}
	text, err := s.ai.GenerateText(ctx, openai.Request{
		Model:       s.models.Analyzer,
		User:        fmt.Sprintf(tutorialPrompt, projectContext(project, readme, 6000), visual),
		Temperature: 0.4,
		MaxTokens:   3000,
	})
	if err != nil {
		s.log.Warn("Tutorial generation failed, writing skeleton", "project", project.FullName, "error", err)
		return tutorialSkeleton(project), nil
	}
	return text, nil
}

// tutorialSkeleton is the deterministic fallback so a tutorial request never
// leaves the catalog entry empty.
func tutorialSkeleton(project *types.Project) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s Deployment Guide\n\n", project.Name)
	if project.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", project.Description)
	}
	sb.WriteString("## Installation\n\n```bash\n")
	fmt.Fprintf(&sb, "git clone %s\n", project.URL)
	fmt.Fprintf(&sb, "cd %s\n```\n\n", project.Name)
	sb.WriteString("## Next Steps\n\nConsult the project README for build and run instructions.\n")
	fmt.Fprintf(&sb, "\nProject page: %s\n", project.URL)
	return sb.String()
}

const recommendPrompt = `A user needs a recommendation. Their requirement:

%s

Candidate repositories (with retrieval summaries):

%s

As a pragmatic architect, recommend the best fit. Name the winner first, justify the choice against the requirement, note the trade-offs of the runners-up, and finish with a one-line getting-started hint. Markdown, under 400 words.`

func (s *contentService) RecommendSolution(ctx context.Context, query string, projects []types.Project) (string, error) {
	if len(projects) == 0 {
		return "No candidate projects matched the requirement. Try broadening the search.", nil
	}
	return s.ai.GenerateText(ctx, openai.Request{
		Model:       s.models.Analyzer,
		User:        fmt.Sprintf(recommendPrompt, query, candidateList(projects)),
		Temperature: 0.5,
		MaxTokens:   1200,
	})
}

const comparePrompt = `Compare the following repositories for a developer choosing between them:

%s

Produce a Markdown comparison: a summary table (project, language, stars, sweet spot), then a short verdict on which to pick for which situation. Under 400 words.`

func (s *contentService) CompareProjects(ctx context.Context, projects []types.Project) (string, error) {
	if len(projects) < 2 {
		return "", fmt.Errorf("comparison needs at least two projects, got %d", len(projects))
	}
	return s.ai.GenerateText(ctx, openai.Request{
		Model:       s.models.Analyzer,
		User:        fmt.Sprintf(comparePrompt, candidateList(projects)),
		Temperature: 0.4,
		MaxTokens:   1200,
	})
}

func candidateList(projects []types.Project) string {
	var sb strings.Builder
	for i, p := range projects {
		fmt.Fprintf(&sb, "%d. %s (%s, %d stars)\n", i+1, p.FullName, p.Language, p.Stars)
		if p.Description != "" {
			fmt.Fprintf(&sb, "   Description: %s\n", p.Description)
		}
		summary := p.AIRAGSummary
		if summary == "" {
			summary = p.AISummary
		}
		if summary != "" {
			fmt.Fprintf(&sb, "   Summary: %s\n", summary)
		}
	}
	return sb.String()
}
