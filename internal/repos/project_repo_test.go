package repos

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/types"
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

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&types.Project{}, &types.ScanEvent{}, &types.NewsSource{}, &types.Setting{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestUpsertPreservesAIFields(t *testing.T) {
	repo := NewProjectRepo(testDB(t), mustTestLogger(t))
	ctx := context.Background()

	if err := repo.Upsert(ctx, &types.Project{
		ID:          "1",
		Name:        "tool",
		FullName:    "owner/tool",
		Category:    "devops",
		Stars:       100,
		Description: "first pass",
	}); err != nil {
		t.Fatalf("initial upsert: %v", err)
	}

	if err := repo.UpdateAnalysis(ctx, "1", types.Analysis{
		Summary:    "enriched",
		TechStack:  []string{"Go"},
		Difficulty: 2,
	}, "model-a"); err != nil {
		t.Fatalf("update analysis: %v", err)
	}
	if err := repo.UpdateRAGSummary(ctx, "1", "dense"); err != nil {
		t.Fatalf("update rag: %v", err)
	}

	// A rescan refreshes catalog fields and must not clear enrichment.
	if err := repo.Upsert(ctx, &types.Project{
		ID:          "1",
		Name:        "tool",
		FullName:    "owner/tool",
		Category:    "devops",
		Stars:       250,
		Description: "second pass",
	}); err != nil {
		t.Fatalf("rescan upsert: %v", err)
	}

	got, err := repo.Get(ctx, "1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stars != 250 || got.Description != "second pass" {
		t.Fatalf("fetch fields not refreshed: stars=%d desc=%q", got.Stars, got.Description)
	}
	if got.AISummary != "enriched" || got.AIModelName != "model-a" || got.AIRAGSummary != "dense" {
		t.Fatalf("rescan cleared AI fields: %+v", got)
	}
	if len(got.AITechStack) != 1 || got.AITechStack[0] != "Go" {
		t.Fatalf("tech stack not round-tripped: %v", got.AITechStack)
	}
	if got.LastAnalyzed == nil {
		t.Fatalf("last_analyzed should be stamped by analysis update")
	}
}

func TestGetNotFound(t *testing.T) {
	repo := NewProjectRepo(testDB(t), mustTestLogger(t))
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestBacklogSelectsUnenrichedAndStaleModels(t *testing.T) {
	repo := NewProjectRepo(testDB(t), mustTestLogger(t))
	ctx := context.Background()

	seed := func(id string, scannedAgo time.Duration) {
		t.Helper()
		if err := repo.Upsert(ctx, &types.Project{ID: id, Name: id, FullName: "o/" + id}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
		past := time.Now().Add(-scannedAgo)
		if err := testSetScanned(repo, ctx, id, past); err != nil {
			t.Fatalf("set scanned %s: %v", id, err)
		}
	}

	seed("fresh", 1*time.Hour)
	seed("old", 48*time.Hour)
	seed("current", 2*time.Hour)

	// "current" was analyzed with the active model; "old" with a stale one.
	if err := repo.UpdateAnalysis(ctx, "current", types.Analysis{Summary: "s"}, "model-b"); err != nil {
		t.Fatalf("analyze current: %v", err)
	}
	if err := repo.UpdateAnalysis(ctx, "old", types.Analysis{Summary: "s"}, "model-a"); err != nil {
		t.Fatalf("analyze old: %v", err)
	}

	backlog, err := repo.GetBacklog(ctx, 10, "model-b")
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	if len(backlog) != 2 {
		t.Fatalf("backlog size: want=2 got=%d", len(backlog))
	}
	// Oldest scan first.
	if backlog[0].ID != "old" || backlog[1].ID != "fresh" {
		t.Fatalf("backlog order: got %s,%s", backlog[0].ID, backlog[1].ID)
	}

	pending, err := repo.CountPending(ctx, "model-b")
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 2 {
		t.Fatalf("pending: want=2 got=%d", pending)
	}
}

// testSetScanned backdates last_scanned directly; Upsert always stamps now.
func testSetScanned(repo ProjectRepo, ctx context.Context, id string, at time.Time) error {
	r := repo.(*projectRepo)
	return r.db.WithContext(ctx).
		Model(&types.Project{}).
		Where("id = ?", id).
		Update("last_scanned", at).Error
}

func TestCountByCategory(t *testing.T) {
	repo := NewProjectRepo(testDB(t), mustTestLogger(t))
	ctx := context.Background()

	for i, cat := range []string{"devops", "devops", "llm_rag"} {
		if err := repo.Upsert(ctx, &types.Project{ID: string(rune('a' + i)), Name: "p", FullName: "o/p", Category: cat}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	counts, err := repo.CountByCategory(ctx)
	if err != nil {
		t.Fatalf("count by category: %v", err)
	}
	if counts["devops"] != 2 || counts["llm_rag"] != 1 {
		t.Fatalf("counts: %v", counts)
	}
}

func TestSearchMatchesNameDescriptionAndSummary(t *testing.T) {
	repo := NewProjectRepo(testDB(t), mustTestLogger(t))
	ctx := context.Background()

	entries := []*types.Project{
		{ID: "1", Name: "vector-db", FullName: "o/vector-db", Description: "storage engine"},
		{ID: "2", Name: "webapp", FullName: "o/webapp", Description: "a vector search UI"},
		{ID: "3", Name: "other", FullName: "o/other", Description: "unrelated"},
	}
	for _, e := range entries {
		if err := repo.Upsert(ctx, e); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := repo.UpdateRAGSummary(ctx, "3", "actually about vector math"); err != nil {
		t.Fatalf("rag: %v", err)
	}

	got, err := repo.Search(ctx, "vector", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("search hits: want=3 got=%d", len(got))
	}
}

func TestSettingRepoUpsert(t *testing.T) {
	db := testDB(t)
	repo := NewSettingRepo(db, mustTestLogger(t))
	ctx := context.Background()

	got, err := repo.Get(ctx, "scan_time", "02:00")
	if err != nil {
		t.Fatalf("get default: %v", err)
	}
	if got != "02:00" {
		t.Fatalf("default: want=02:00 got=%s", got)
	}

	if err := repo.Set(ctx, "scan_time", "04:30"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := repo.Set(ctx, "scan_time", "05:45"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err = repo.Get(ctx, "scan_time", "02:00")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "05:45" {
		t.Fatalf("value: want=05:45 got=%s", got)
	}
}

func TestNewsSourceRepoLifecycle(t *testing.T) {
	db := testDB(t)
	repo := NewNewsSourceRepo(db, mustTestLogger(t))
	ctx := context.Background()

	if err := repo.Add(ctx, "Trending", "https://github.com/trending"); err != nil {
		t.Fatalf("add: %v", err)
	}
	sources, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("sources: want=1 got=%d", len(sources))
	}

	src := sources[0]
	if err := repo.TouchScanned(ctx, src.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err := repo.Get(ctx, src.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastScanned == nil {
		t.Fatalf("last_scanned should be set after touch")
	}

	if err := repo.Delete(ctx, src.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, src.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
}
