package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() { log.Sync() })
	return log
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CATEGORIES_FILE", "")
	cfg, err := Load(mustTestLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Categories) != 17 {
		t.Fatalf("default categories: want=17 got=%d", len(cfg.Categories))
	}
	if cfg.Category("llm_rag") == nil {
		t.Fatalf("llm_rag category missing")
	}
	if cfg.Category("nope") != nil {
		t.Fatalf("unknown category should resolve to nil")
	}
	if cfg.Scan.MinStars != 100 {
		t.Fatalf("min stars default: want=100 got=%d", cfg.Scan.MinStars)
	}
	if cfg.Scan.DefaultScanTime != "02:00" {
		t.Fatalf("scan time default: want=02:00 got=%s", cfg.Scan.DefaultScanTime)
	}
	if len(cfg.DiscoveryURLs) == 0 {
		t.Fatalf("discovery URLs should have defaults")
	}

	// Special categories carry no keywords; they are filled by dedicated
	// fetchers.
	for _, id := range []string{"trending", "new_releases", "manual"} {
		cat := cfg.Category(id)
		if cat == nil {
			t.Fatalf("category %s missing", id)
		}
		if len(cat.Keywords) != 0 {
			t.Fatalf("category %s should have no keywords", id)
		}
	}
}

func TestLoadCategoryFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	raw := `categories:
  - id: golang
    name: Go Projects
    keywords: [golang, go-library]
    description: Go ecosystem
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write categories file: %v", err)
	}
	t.Setenv("CATEGORIES_FILE", path)

	cfg, err := Load(mustTestLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Categories) != 1 {
		t.Fatalf("override categories: want=1 got=%d", len(cfg.Categories))
	}
	cat := cfg.Category("golang")
	if cat == nil {
		t.Fatalf("golang category missing after override")
	}
	if len(cat.Keywords) != 2 || cat.Keywords[0] != "golang" {
		t.Fatalf("keywords not parsed: %v", cat.Keywords)
	}
}

func TestLoadRejectsBrokenCategoryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("categories: {not a list"), 0o644); err != nil {
		t.Fatalf("write categories file: %v", err)
	}
	t.Setenv("CATEGORIES_FILE", path)

	if _, err := Load(mustTestLogger(t)); err == nil {
		t.Fatalf("Load should fail on malformed category file")
	}
}

func TestLoadRejectsInvalidScanTime(t *testing.T) {
	t.Setenv("CATEGORIES_FILE", "")
	t.Setenv("DEFAULT_SCAN_TIME", "25:99")

	_, err := Load(mustTestLogger(t))
	var cfgErr *apperr.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("want ConfigError, got %v", err)
	}
	if cfgErr.Key != "DEFAULT_SCAN_TIME" {
		t.Fatalf("config error key: want=DEFAULT_SCAN_TIME got=%s", cfgErr.Key)
	}
}

func TestModelOverridesFromEnv(t *testing.T) {
	t.Setenv("CATEGORIES_FILE", "")
	t.Setenv("MODEL_CLASSIFIER", "test/classifier")
	t.Setenv("MODEL_VISION", "test/vision")

	cfg, err := Load(mustTestLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Models.Classifier != "test/classifier" {
		t.Fatalf("classifier model: got=%s", cfg.Models.Classifier)
	}
	if cfg.Models.Vision != "test/vision" {
		t.Fatalf("vision model: got=%s", cfg.Models.Vision)
	}
}
