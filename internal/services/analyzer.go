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

// ChatTurn is one message of a refinement conversation.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IntentResult is the refinement agent's decision: ask another question or
// run a search with the generated query.
type IntentResult struct {
	Action    string `json:"action"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning"`
}

// AnalyzerService produces the per-entry AI fields: structured analysis,
// dense retrieval summary, visual analysis and category classification.
// Classification-shaped tasks run on the fast model; image work on the
// vision model.
type AnalyzerService interface {
	AnalyzeProject(ctx context.Context, project *types.Project, readme string) (types.Analysis, error)
	GenerateRAGSummary(ctx context.Context, project *types.Project, readme string) (string, error)
	AnalyzeWithVision(ctx context.Context, project *types.Project, imagePath string) (string, error)
	ClassifyProject(ctx context.Context, project *types.Project, categories []string) (string, error)
	RefineSearchIntent(ctx context.Context, history []ChatTurn) (IntentResult, error)
	DefaultAnalysis(project *types.Project) types.Analysis
}

type analyzerService struct {
	log    *logger.Logger
	ai     openai.Client
	models config.Models
}

func NewAnalyzerService(log *logger.Logger, ai openai.Client, models config.Models) AnalyzerService {
	return &analyzerService{
		log:    log.With("service", "AnalyzerService"),
		ai:     ai,
		models: models,
	}
}

func projectContext(project *types.Project, readme string, readmeLimit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Project: %s\n", project.Name)
	fmt.Fprintf(&sb, "Full name: %s\n", project.FullName)
	fmt.Fprintf(&sb, "Description: %s\n", project.Description)
	fmt.Fprintf(&sb, "Language: %s\n", project.Language)
	fmt.Fprintf(&sb, "Stars: %d\n", project.Stars)
	fmt.Fprintf(&sb, "Topics: %s\n", strings.Join(project.Topics, ", "))
	if readme != "" {
		runes := []rune(readme)
		if len(runes) > readmeLimit {
			runes = runes[:readmeLimit]
		}
		fmt.Fprintf(&sb, "\nREADME excerpt:\n%s", string(runes))
	}
	return sb.String()
}

const analysisPrompt = `Analyze the following open-source repository and reply with a single JSON object (valid JSON, no surrounding text):

%s

Required shape:
{
  "summary": "one precise sentence: what it does + core technical approach + what sets it apart",
  "tech_stack": ["core technologies, e.g. LangChain, FastAPI, ChromaDB"],
  "use_cases": ["concrete use case 1", "use case 2", "use case 3"],
  "difficulty": <integer 1-5>,
  "highlights": ["technical highlight 1", "highlight 2"],
  "ai_tags": ["3-5 specific capability keywords, not broad terms like 'AI' or 'Python'"],
  "quick_start": "the command to get started"
}

Return only the JSON.`

func (s *analyzerService) AnalyzeProject(ctx context.Context, project *types.Project, readme string) (types.Analysis, error) {
	var analysis types.Analysis
	err := s.ai.GenerateJSON(ctx, openai.Request{
		Model:       s.models.Classifier,
		User:        fmt.Sprintf(analysisPrompt, projectContext(project, readme, 3000)),
		Temperature: 0.3,
		MaxTokens:   1000,
	}, &analysis)
	if err != nil {
		return types.Analysis{}, err
	}
	if analysis.Difficulty < 1 || analysis.Difficulty > 5 {
		analysis.Difficulty = 3
	}
	return analysis, nil
}

// DefaultAnalysis is the deterministic fallback used when the model's output
// cannot be parsed. Built purely from fetch-derived fields.
func (s *analyzerService) DefaultAnalysis(project *types.Project) types.Analysis {
	language := project.Language
	if language == "" {
		language = "Unknown"
	}
	summary := project.Description
	if summary == "" {
		summary = "No description available"
	}
	return types.Analysis{
		Summary:    summary,
		TechStack:  []string{language},
		UseCases:   []string{"General development"},
		Difficulty: 3,
		QuickStart: "git clone " + project.URL,
	}
}

const ragSummaryPrompt = `Write a dense, retrieval-oriented summary of the following repository. A search layer will use the text to decide whether the project matches a user's need.

%s

Rules:
1. No filler; list core capabilities directly.
2. State what it is ideal for ("Ideal for ...").
3. Include key architecture, dependency and algorithm terms.
4. Mention notable limitations briefly.
5. Plain text only, no markdown, at most 150 words.

Example: "[Python] Async web framework built on FastAPI. Strengths are throughput and automatic docs. Ideal for high-concurrency microservices. Depends on uvicorn. No support below Python 3.8. Similar to Flask but faster."`

func (s *analyzerService) GenerateRAGSummary(ctx context.Context, project *types.Project, readme string) (string, error) {
	return s.ai.GenerateText(ctx, openai.Request{
		Model:       s.models.Classifier,
		User:        fmt.Sprintf(ragSummaryPrompt, projectContext(project, readme, 2000)),
		Temperature: 0.3,
		MaxTokens:   300,
	})
}

const visionPrompt = `Look carefully at this screenshot of a repository page.

Project: %s
Description: %s

Extract the key visible text and describe the interface style. Focus on:
1. The main functional areas visible in the UI
2. Any technical keywords that can be read
3. What the application appears to do

Reply with one short paragraph summarizing the visual analysis.`

func (s *analyzerService) AnalyzeWithVision(ctx context.Context, project *types.Project, imagePath string) (string, error) {
	return s.ai.GenerateTextWithImage(ctx, openai.Request{
		Model:     s.models.Vision,
		User:      fmt.Sprintf(visionPrompt, project.Name, project.Description),
		MaxTokens: 500,
	}, imagePath)
}

const classifyPrompt = `Decide which category fits this repository best:

Project: %s
Description: %s
Language: %s
Topics: %s

Available categories: %s

Reply with exactly one category id and nothing else.`

func (s *analyzerService) ClassifyProject(ctx context.Context, project *types.Project, categories []string) (string, error) {
	answer, err := s.ai.GenerateText(ctx, openai.Request{
		Model:       s.models.Classifier,
		User:        fmt.Sprintf(classifyPrompt, project.Name, project.Description, project.Language, strings.Join(project.Topics, ", "), strings.Join(categories, ", ")),
		Temperature: 0.1,
		MaxTokens:   50,
	})
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	for _, cat := range categories {
		if strings.EqualFold(answer, cat) {
			return cat, nil
		}
	}
	return "", fmt.Errorf("classifier returned unexpected category %q", answer)
}

const refinePrompt = `You are a rigorous requirements analyst helping a user define a precise repository search. Most initial requests are vague; before searching you must have three elements: the tech stack (language or framework), the context (ready-to-use application, developer library, or tutorial), and at least one differentiating feature.

If any element is missing, respond with JSON {"action": "question", "content": "<one or two targeted questions>", "reasoning": "<what is missing>"}.
If all elements are present, or the user explicitly asks to search now, respond with JSON {"action": "search", "content": "<a precise search query including language: and topic: filters>", "reasoning": "<why the query is complete>"}.

Analyze this conversation and return only the JSON:

%s`

func (s *analyzerService) RefineSearchIntent(ctx context.Context, history []ChatTurn) (IntentResult, error) {
	var sb strings.Builder
	start := 0
	if len(history) > 5 {
		start = len(history) - 5
	}
	for _, turn := range history[start:] {
		role := "User"
		if turn.Role != "user" {
			role = "Assistant"
		}
		fmt.Fprintf(&sb, "%s: %s\n", role, turn.Content)
	}

	var result IntentResult
	err := s.ai.GenerateJSON(ctx, openai.Request{
		Model:       s.models.Classifier,
		User:        fmt.Sprintf(refinePrompt, sb.String()),
		Temperature: 0.3,
		MaxTokens:   200,
	}, &result)
	if err != nil {
		// Degrade to a direct search on the last user message.
		lastUser := ""
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Role == "user" {
				lastUser = history[i].Content
				break
			}
		}
		s.log.Warn("Intent refinement failed, falling back to direct search", "error", err)
		return IntentResult{Action: "search", Content: lastUser, Reasoning: "fallback"}, nil
	}
	return result, nil
}
