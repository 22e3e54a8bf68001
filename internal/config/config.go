package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/utils"
)

var scanTimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Category describes one scan category: a display name plus the search
// keywords used against the GitHub search API. Categories with no keywords
// are filled by special fetchers (trending, new_releases) or by hand.
type Category struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Keywords    []string `yaml:"keywords"`
	Description string   `yaml:"description"`
}

// Models maps task weight to a model name on the OpenAI-compatible endpoint.
// Classifier handles classification-shaped tasks, Analyzer long-form
// synthesis and recommendation, Vision image-grounded analysis.
type Models struct {
	Classifier string `yaml:"classifier"`
	Analyzer   string `yaml:"analyzer"`
	Vision     string `yaml:"vision"`
}

type ScanConfig struct {
	PerCategory     int           `yaml:"per_category"`
	MinStars        int           `yaml:"min_stars"`
	FullScanBatch   int           `yaml:"full_scan_batch"`
	AnalysisBatch   int           `yaml:"analysis_batch"`
	EntryDelay      time.Duration `yaml:"-"`
	QuotaBackoff    time.Duration `yaml:"-"`
	ArchiveDir      string        `yaml:"archive_dir"`
	TutorialDir     string        `yaml:"tutorial_dir"`
	ScreenshotDir   string        `yaml:"screenshot_dir"`
	DefaultScanTime string        `yaml:"default_scan_time"`
}

type Config struct {
	Categories    []Category
	Models        Models
	Scan          ScanConfig
	DiscoveryURLs []string
	GithubToken   string
	ListenAddr    string
}

// categoryFile is the shape of the optional YAML override.
type categoryFile struct {
	Categories []Category `yaml:"categories"`
}

func defaultCategories() []Category {
	return []Category{
		{ID: "llm_rag", Name: "LLM & RAG", Keywords: []string{"llm", "langchain", "rag", "ollama", "llamaindex"}, Description: "Large language model apps and retrieval-augmented generation"},
		{ID: "ai_agent", Name: "AI Agent", Keywords: []string{"ai-agent", "autogen", "crewai", "metagpt", "agentgpt"}, Description: "Agent frameworks and automation"},
		{ID: "multimodal", Name: "Multimodal", Keywords: []string{"vision-language", "clip", "llava", "gpt4v", "multimodal"}, Description: "Vision-language and cross-modal models"},
		{ID: "image_gen", Name: "Image Generation", Keywords: []string{"stable-diffusion", "comfyui", "flux", "sdxl", "diffusers"}, Description: "AI drawing and image synthesis"},
		{ID: "tts_voice", Name: "Speech Synthesis", Keywords: []string{"tts", "voice-clone", "whisper", "so-vits", "bark"}, Description: "Text to speech and voice cloning"},
		{ID: "digital_human", Name: "Digital Human", Keywords: []string{"digital-human", "talking-head", "wav2lip", "sadtalker"}, Description: "Virtual avatars and lip sync"},
		{ID: "mcp", Name: "MCP Protocol", Keywords: []string{"model-context-protocol", "mcp", "tool-use"}, Description: "Model context protocol and tool calling"},
		{ID: "devops", Name: "DevOps", Keywords: []string{"docker", "kubernetes", "cicd", "terraform", "ansible"}, Description: "Deployment and infrastructure"},
		{ID: "fullstack", Name: "Fullstack Frameworks", Keywords: []string{"nextjs", "nuxt", "remix", "astro", "sveltekit"}, Description: "Modern web development frameworks"},
		{ID: "ui_design", Name: "UI Design", Keywords: []string{"ui-design", "design-system", "component-library", "ui-kit", "tailwindcss", "css-animation"}, Description: "Component libraries and design systems"},
		{ID: "video", Name: "Video Tools", Keywords: []string{"video-editing", "ffmpeg", "bilibili", "youtube-dl", "yt-dlp"}, Description: "Video download and processing"},
		{ID: "news", Name: "News & Feeds", Keywords: []string{"rss", "news-crawler", "readability", "feed"}, Description: "News sources and content aggregation"},
		{ID: "visualization", Name: "Data Visualization", Keywords: []string{"dashboard", "chart", "grafana", "echarts"}, Description: "Dashboards and charting"},
		{ID: "awesome", Name: "Learning Resources", Keywords: []string{"awesome", "roadmap", "interview", "tutorial"}, Description: "Curated lists and learning paths"},
		{ID: "trending", Name: "Trending", Keywords: nil, Description: "Currently trending repositories"},
		{ID: "new_releases", Name: "New Releases", Keywords: nil, Description: "Recently created high-quality repositories"},
		{ID: "manual", Name: "Manually Added", Keywords: nil, Description: "Repositories added by hand"},
	}
}

func defaultDiscoveryURLs() []string {
	return []string{
		"https://github.com/trending",
		"https://github.com/trending?since=weekly",
	}
}

// Load builds the runtime configuration from the environment, with an
// optional YAML file overriding the category set.
func Load(log *logger.Logger) (*Config, error) {
	cfg := &Config{
		Categories:    defaultCategories(),
		DiscoveryURLs: defaultDiscoveryURLs(),
		Models: Models{
			Classifier: utils.GetEnv("MODEL_CLASSIFIER", "deepseek/deepseek-r1-0528-qwen3-8b", log),
			Analyzer:   utils.GetEnv("MODEL_ANALYZER", "openai/gpt-oss-120b", log),
			Vision:     utils.GetEnv("MODEL_VISION", "qwen/qwen3-vl-30b", log),
		},
		Scan: ScanConfig{
			PerCategory:     utils.GetEnvAsInt("SCAN_PER_CATEGORY", 30, log),
			MinStars:        utils.GetEnvAsInt("SCAN_MIN_STARS", 100, log),
			FullScanBatch:   utils.GetEnvAsInt("SCAN_FULL_BATCH", 50, log),
			AnalysisBatch:   utils.GetEnvAsInt("SCAN_ANALYSIS_BATCH", 100, log),
			EntryDelay:      time.Duration(utils.GetEnvAsInt("SCAN_ENTRY_DELAY_MS", 1000, log)) * time.Millisecond,
			QuotaBackoff:    time.Duration(utils.GetEnvAsInt("SCAN_QUOTA_BACKOFF_SECONDS", 60, log)) * time.Second,
			ArchiveDir:      utils.GetEnv("ARCHIVE_DIR", "data/archive", log),
			TutorialDir:     utils.GetEnv("TUTORIAL_DIR", "data/tutorials", log),
			ScreenshotDir:   utils.GetEnv("SCREENSHOT_DIR", "static/screenshots", log),
			DefaultScanTime: utils.GetEnv("DEFAULT_SCAN_TIME", "02:00", log),
		},
		GithubToken: utils.GetEnv("GITHUB_TOKEN", "", log),
		ListenAddr:  utils.GetEnv("LISTEN_ADDR", ":5001", log),
	}

	if !scanTimePattern.MatchString(cfg.Scan.DefaultScanTime) {
		return nil, &apperr.ConfigError{Key: "DEFAULT_SCAN_TIME"}
	}

	if path := utils.GetEnv("CATEGORIES_FILE", "", log); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read categories file: %w", err)
		}
		var cf categoryFile
		if err := yaml.Unmarshal(raw, &cf); err != nil {
			return nil, fmt.Errorf("parse categories file: %w", err)
		}
		if len(cf.Categories) > 0 {
			cfg.Categories = cf.Categories
		}
	}

	return cfg, nil
}

// Category returns the category config for id, or nil.
func (c *Config) Category(id string) *Category {
	for i := range c.Categories {
		if c.Categories[i].ID == id {
			return &c.Categories[i]
		}
	}
	return nil
}
