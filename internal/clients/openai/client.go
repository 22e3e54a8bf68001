package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/utils"
)

// Client is the text-generation collaborator. It speaks the OpenAI chat
// completions wire format against any compatible endpoint (a local LM Studio
// instance by default); the model name selects the task weight.
type Client interface {
	GenerateText(ctx context.Context, req Request) (string, error)
	GenerateJSON(ctx context.Context, req Request, out any) error
	GenerateTextWithImage(ctx context.Context, req Request, imagePath string) (string, error)
}

// Request carries one generation call's parameters.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	baseURL := strings.TrimRight(utils.GetEnv("OPENAI_BASE_URL", "http://localhost:1234/v1", log), "/")
	apiKey := utils.GetEnv("OPENAI_API_KEY", "lm-studio", log)
	timeoutSec := utils.GetEnvAsInt("OPENAI_TIMEOUT_SECONDS", 180, log)

	return &client{
		log:        log.With("service", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type imagePart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

func (c *client) do(ctx context.Context, body chatRequest) (string, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &apperr.TransientError{Op: "chat completion", Err: err}
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &apperr.QuotaError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("generation http %d: %s", resp.StatusCode, string(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("generation decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("generation returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func (c *client) GenerateText(ctx context.Context, req Request) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.User})

	return c.do(ctx, chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
}

// GenerateJSON expects the model to reply with a single JSON value per the
// prompt contract. Code fences are stripped before parsing; parse failures
// surface as MalformedResponseError so callers can route to their fallback.
func (c *client) GenerateJSON(ctx context.Context, req Request, out any) error {
	content, err := c.GenerateText(ctx, req)
	if err != nil {
		return err
	}
	cleaned := StripJSONFences(content)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &apperr.MalformedResponseError{Raw: content, Err: err}
	}
	return nil
}

func (c *client) GenerateTextWithImage(ctx context.Context, req Request, imagePath string) (string, error) {
	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	imageURL := struct {
		URL string `json:"url"`
	}{URL: "data:image/jpeg;base64," + encoded}

	parts := []imagePart{
		{Type: "text", Text: req.User},
		{Type: "image_url", ImageURL: &imageURL},
	}

	return c.do(ctx, chatRequest{
		Model:     req.Model,
		Messages:  []chatMessage{{Role: "user", Content: parts}},
		MaxTokens: req.MaxTokens,
	})
}

// StripJSONFences removes a ```json ... ``` (or bare ```) wrapper that chat
// models often add around structured output.
func StripJSONFences(content string) string {
	s := strings.TrimSpace(content)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+len("```"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	return strings.TrimSpace(s)
}
