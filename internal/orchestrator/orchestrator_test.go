package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/config"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/services"
	"github.com/repolens/repolens-backend/internal/sse"
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

// fakeProjectRepo is an in-memory ProjectRepo sufficient for orchestration
// tests.
type fakeProjectRepo struct {
	mu       sync.Mutex
	projects map[string]*types.Project
	backlog  []*types.Project
	counts   map[string]int64
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{
		projects: make(map[string]*types.Project),
		counts:   make(map[string]int64),
	}
}

func (r *fakeProjectRepo) Upsert(ctx context.Context, p *types.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.projects[p.ID] = &cp
	return nil
}

func (r *fakeProjectRepo) Get(ctx context.Context, id string) (*types.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProjectRepo) Exists(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.projects[id]
	return ok, nil
}

func (r *fakeProjectRepo) GetByCategory(ctx context.Context, category string, limit int) ([]*types.Project, error) {
	return nil, nil
}

func (r *fakeProjectRepo) All(ctx context.Context) ([]*types.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Project
	for _, p := range r.projects {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeProjectRepo) GetBacklog(ctx context.Context, limit int, excludeModel string) ([]*types.Project, error) {
	if len(r.backlog) > limit {
		return r.backlog[:limit], nil
	}
	return r.backlog, nil
}

func (r *fakeProjectRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, id)
	return nil
}

func (r *fakeProjectRepo) Search(ctx context.Context, query string, limit int) ([]*types.Project, error) {
	return nil, nil
}

func (r *fakeProjectRepo) CountPending(ctx context.Context, excludeModel string) (int64, error) {
	return int64(len(r.backlog)), nil
}

func (r *fakeProjectRepo) CountByCategory(ctx context.Context) (map[string]int64, error) {
	return r.counts, nil
}

func (r *fakeProjectRepo) UpdateCategory(ctx context.Context, id, category string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.projects[id]; ok {
		p.Category = category
	}
	return nil
}

func (r *fakeProjectRepo) UpdateAnalysis(ctx context.Context, id string, analysis types.Analysis, modelName string) error {
	return nil
}
func (r *fakeProjectRepo) UpdateRAGSummary(ctx context.Context, id, summary string) error  { return nil }
func (r *fakeProjectRepo) UpdateScreenshot(ctx context.Context, id, path string) error     { return nil }
func (r *fakeProjectRepo) UpdateVisualSummary(ctx context.Context, id, summary string) error {
	return nil
}
func (r *fakeProjectRepo) UpdateTutorial(ctx context.Context, id, tutorial string) error { return nil }
func (r *fakeProjectRepo) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects = make(map[string]*types.Project)
	return nil
}

type fakeScanEventRepo struct {
	mu     sync.Mutex
	logged []string
}

func (r *fakeScanEventRepo) Log(ctx context.Context, category string, found, newCount int, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logged = append(r.logged, category)
	return nil
}

func (r *fakeScanEventRepo) Recent(ctx context.Context, limit int) ([]*types.ScanEvent, error) {
	return nil, nil
}

type fakeNewsSourceRepo struct{}

func (r *fakeNewsSourceRepo) List(ctx context.Context) ([]*types.NewsSource, error) { return nil, nil }
func (r *fakeNewsSourceRepo) Get(ctx context.Context, id uint) (*types.NewsSource, error) {
	return nil, apperr.ErrNotFound
}
func (r *fakeNewsSourceRepo) Add(ctx context.Context, name, url string) error { return nil }
func (r *fakeNewsSourceRepo) Delete(ctx context.Context, id uint) error       { return nil }
func (r *fakeNewsSourceRepo) TouchScanned(ctx context.Context, id uint) error { return nil }

// fakeGithub records which categories were searched, in order.
type fakeGithub struct {
	mu       sync.Mutex
	searched []string
	results  map[string][]*types.Project
	crawled  []*types.Project
}

func (g *fakeGithub) SearchByKeywords(ctx context.Context, keywords []string, category string) []*types.Project {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searched = append(g.searched, category)
	return g.results[category]
}

func (g *fakeGithub) SearchRemote(ctx context.Context, query string, limit int) []*types.Project {
	return g.results["remote"]
}

func (g *fakeGithub) GetTrending(ctx context.Context) []*types.Project {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searched = append(g.searched, "trending")
	return g.results["trending"]
}

func (g *fakeGithub) GetNewReleases(ctx context.Context) []*types.Project {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searched = append(g.searched, "new_releases")
	return g.results["new_releases"]
}

func (g *fakeGithub) FetchByURL(ctx context.Context, pageURL string) (*types.Project, error) {
	return &types.Project{ID: "fetched", FullName: "owner/fetched", Category: "manual", URL: pageURL}, nil
}

func (g *fakeGithub) CrawlExternalPage(ctx context.Context, pageURL string) ([]*types.Project, error) {
	return g.crawled, nil
}

func (g *fakeGithub) GetReadme(ctx context.Context, fullName string) string { return "" }

// fakePipeline counts enrichments and can block to hold the run slot open.
type fakePipeline struct {
	mu      sync.Mutex
	count   int
	block   chan struct{}
	fail    map[string]error
	entered chan struct{}
}

func (p *fakePipeline) EnrichProject(ctx context.Context, project *types.Project) error {
	if p.entered != nil {
		select {
		case p.entered <- struct{}{}:
		default:
		}
	}
	if p.block != nil {
		<-p.block
	}
	if err := p.fail[project.ID]; err != nil {
		return err
	}
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
	return nil
}

func (p *fakePipeline) enriched() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

type fakeArchive struct{}

func (a *fakeArchive) ExportCatalog(ctx context.Context) (string, error) { return "data/archive/test", nil }
func (a *fakeArchive) SaveTutorial(project *types.Project) (string, error) {
	return "data/tutorials/test.md", nil
}

func testConfig() *config.Config {
	return &config.Config{
		Categories: []config.Category{
			{ID: "big", Name: "Big", Keywords: []string{"big"}},
			{ID: "small", Name: "Small", Keywords: []string{"small"}},
			{ID: "trending", Name: "Trending"},
			{ID: "manual", Name: "Manual"},
		},
		Models: config.Models{Classifier: "test-model"},
		Scan: config.ScanConfig{
			FullScanBatch: 50,
			AnalysisBatch: 100,
		},
	}
}

func newTestOrchestrator(t *testing.T, projects *fakeProjectRepo, gh *fakeGithub, pipe services.PipelineService) (*Orchestrator, *fakeScanEventRepo) {
	t.Helper()
	log := mustTestLogger(t)
	scans := &fakeScanEventRepo{}
	orch := New(
		log,
		testConfig(),
		projects,
		scans,
		&fakeNewsSourceRepo{},
		gh,
		nil,
		nil,
		pipe,
		&fakeArchive{},
		sse.NewHub(log),
	)
	return orch, scans
}

func TestRunBatchAnalysisSingleFlight(t *testing.T) {
	projects := newFakeProjectRepo()
	projects.backlog = []*types.Project{{ID: "1", FullName: "a/one"}}

	pipe := &fakePipeline{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	orch, _ := newTestOrchestrator(t, projects, &fakeGithub{results: map[string][]*types.Project{}}, pipe)

	done := make(chan error, 1)
	go func() {
		_, err := orch.RunBatchAnalysis(context.Background())
		done <- err
	}()

	select {
	case <-pipe.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for batch to start")
	}

	if _, err := orch.RunBatchAnalysis(context.Background()); !errors.Is(err, apperr.ErrBusy) {
		t.Fatalf("second trigger: want ErrBusy got %v", err)
	}
	if _, err := orch.RunFullScan(context.Background()); !errors.Is(err, apperr.ErrBusy) {
		t.Fatalf("full scan during batch: want ErrBusy got %v", err)
	}
	if _, err := orch.RunNewsScan(context.Background()); !errors.Is(err, apperr.ErrBusy) {
		t.Fatalf("news scan during batch: want ErrBusy got %v", err)
	}

	close(pipe.block)
	if err := <-done; err != nil {
		t.Fatalf("first batch failed: %v", err)
	}

	// Slot released; a new gated task is accepted again.
	if _, err := orch.RunBatchAnalysis(context.Background()); err != nil {
		t.Fatalf("batch after release: %v", err)
	}
}

func TestRunBatchAnalysisStopsBetweenEntries(t *testing.T) {
	projects := newFakeProjectRepo()
	for i := 0; i < 5; i++ {
		projects.backlog = append(projects.backlog, &types.Project{ID: string(rune('a' + i))})
	}

	pipe := &fakePipeline{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	orch, _ := newTestOrchestrator(t, projects, &fakeGithub{results: map[string][]*types.Project{}}, pipe)

	done := make(chan int, 1)
	go func() {
		n, _ := orch.RunBatchAnalysis(context.Background())
		done <- n
	}()

	<-pipe.entered
	orch.Stop()
	close(pipe.block)

	n := <-done
	if n >= 5 {
		t.Fatalf("stop flag ignored: %d of 5 entries processed", n)
	}
	if n < 1 {
		t.Fatalf("entry in flight should complete, got %d", n)
	}
}

func TestRunBatchAnalysisAbsorbsEntryFailures(t *testing.T) {
	projects := newFakeProjectRepo()
	projects.backlog = []*types.Project{
		{ID: "ok1"}, {ID: "bad"}, {ID: "ok2"},
	}
	pipe := &fakePipeline{fail: map[string]error{"bad": errors.New("boom")}}
	orch, _ := newTestOrchestrator(t, projects, &fakeGithub{results: map[string][]*types.Project{}}, pipe)

	n, err := orch.RunBatchAnalysis(context.Background())
	if err != nil {
		t.Fatalf("RunBatchAnalysis: %v", err)
	}
	if n != 2 {
		t.Fatalf("enriched: want=2 got=%d", n)
	}
}

func TestRunBatchAnalysisAbortsOnQuota(t *testing.T) {
	projects := newFakeProjectRepo()
	projects.backlog = []*types.Project{
		{ID: "ok1"}, {ID: "quota"}, {ID: "ok2"},
	}
	pipe := &fakePipeline{fail: map[string]error{"quota": &apperr.QuotaError{StatusCode: 429}}}
	orch, _ := newTestOrchestrator(t, projects, &fakeGithub{results: map[string][]*types.Project{}}, pipe)

	n, err := orch.RunBatchAnalysis(context.Background())
	if !apperr.IsQuota(err) {
		t.Fatalf("want quota error, got %v", err)
	}
	if n != 1 {
		t.Fatalf("enriched before abort: want=1 got=%d", n)
	}
}

func TestRunCategoryScanUnknownCategory(t *testing.T) {
	orch, _ := newTestOrchestrator(t, newFakeProjectRepo(), &fakeGithub{results: map[string][]*types.Project{}}, &fakePipeline{})

	_, _, err := orch.RunCategoryScan(context.Background(), "nope")
	var unknown *apperr.UnknownCategoryError
	if !errors.As(err, &unknown) {
		t.Fatalf("want UnknownCategoryError, got %v", err)
	}
	if unknown.Category != "nope" {
		t.Fatalf("error category: want=nope got=%s", unknown.Category)
	}
}

func TestRunCategoryScanUpsertsAndLogs(t *testing.T) {
	projects := newFakeProjectRepo()
	_ = projects.Upsert(context.Background(), &types.Project{ID: "1", Category: "big"})

	gh := &fakeGithub{results: map[string][]*types.Project{
		"big": {
			{ID: "1", FullName: "a/known", Category: "big"},
			{ID: "2", FullName: "a/fresh", Category: "big"},
		},
	}}
	orch, scans := newTestOrchestrator(t, projects, gh, &fakePipeline{})

	found, added, err := orch.RunCategoryScan(context.Background(), "big")
	if err != nil {
		t.Fatalf("RunCategoryScan: %v", err)
	}
	if found != 2 || added != 1 {
		t.Fatalf("want found=2 added=1, got found=%d added=%d", found, added)
	}
	if len(scans.logged) != 1 || scans.logged[0] != "big" {
		t.Fatalf("scan event not recorded: %v", scans.logged)
	}
}

func TestFullScanOrdersCategoriesAscending(t *testing.T) {
	projects := newFakeProjectRepo()
	projects.counts = map[string]int64{"big": 10, "small": 1, "trending": 5}

	gh := &fakeGithub{results: map[string][]*types.Project{
		"small": {
			{ID: "s1", FullName: "a/s1", Category: "small"},
			{ID: "s2", FullName: "a/s2", Category: "small"},
		},
	}}
	orch, _ := newTestOrchestrator(t, projects, gh, &fakePipeline{})

	result, err := orch.RunFullScan(context.Background())
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}
	if result.CategoriesScanned != 3 {
		t.Fatalf("categories scanned: want=3 got=%d", result.CategoriesScanned)
	}
	if result.PerCategory["small"] != 2 || result.PerCategory["big"] != 0 || result.PerCategory["trending"] != 0 {
		t.Fatalf("per-category counts: got %v", result.PerCategory)
	}
	if len(result.PerCategory) != 3 {
		t.Fatalf("per-category breadth: want=3 got=%d", len(result.PerCategory))
	}

	want := []string{"small", "trending", "big"}
	if len(gh.searched) != len(want) {
		t.Fatalf("searched categories: want=%v got=%v", want, gh.searched)
	}
	for i := range want {
		if gh.searched[i] != want[i] {
			t.Fatalf("scan order: want=%v got=%v", want, gh.searched)
		}
	}
	if result.ArchiveDir == "" {
		t.Fatalf("full scan should archive the catalog")
	}
}

func TestSearchHybridDeduplicates(t *testing.T) {
	projects := newFakeProjectRepo()
	gh := &fakeGithub{results: map[string][]*types.Project{
		"remote": {
			{ID: "r1", FullName: "a/remote"},
		},
	}}
	orch, _ := newTestOrchestrator(t, projects, gh, &fakePipeline{})

	got, err := orch.SearchHybrid(context.Background(), "anything", 10)
	if err != nil {
		t.Fatalf("SearchHybrid: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("remote-only search: got %d results", len(got))
	}
}

func TestProgressInvariant(t *testing.T) {
	orch, _ := newTestOrchestrator(t, newFakeProjectRepo(), &fakeGithub{results: map[string][]*types.Project{}}, &fakePipeline{})

	orch.setProgress(Progress{Task: "x", Total: 2, Done: 9})
	p := orch.GetProgress()
	if p.Done > p.Total {
		t.Fatalf("done exceeds total: %+v", p)
	}

	orch.setProgress(Progress{Task: "x", Total: 2})
	orch.setCurrent("a")
	orch.stepProgress()
	orch.stepProgress()
	orch.stepProgress()
	p = orch.GetProgress()
	if p.Done != 2 {
		t.Fatalf("done capped at total: want=2 got=%d", p.Done)
	}
	if p.Current != "a" {
		t.Fatalf("current: want=a got=%s", p.Current)
	}
}

func TestProgressCountsOnlyCompletedEntries(t *testing.T) {
	projects := newFakeProjectRepo()
	projects.backlog = []*types.Project{
		{ID: "1", FullName: "a/one"},
		{ID: "2", FullName: "a/two"},
	}

	pipe := &fakePipeline{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	orch, _ := newTestOrchestrator(t, projects, &fakeGithub{results: map[string][]*types.Project{}}, pipe)

	done := make(chan struct{})
	go func() {
		_, _ = orch.RunBatchAnalysis(context.Background())
		close(done)
	}()

	select {
	case <-pipe.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for batch to start")
	}

	// First entry is in flight: it is reported as current but not done.
	p := orch.GetProgress()
	if p.Done != 0 {
		t.Fatalf("in-flight entry counted as done: %+v", p)
	}
	if p.Current != "a/one" {
		t.Fatalf("current entry: want=a/one got=%s", p.Current)
	}

	close(pipe.block)
	<-done
}

func TestAddProjectByLink(t *testing.T) {
	projects := newFakeProjectRepo()
	orch, _ := newTestOrchestrator(t, projects, &fakeGithub{results: map[string][]*types.Project{}}, &fakePipeline{})

	p, err := orch.AddProjectByLink(context.Background(), "https://github.com/owner/fetched")
	if err != nil {
		t.Fatalf("AddProjectByLink: %v", err)
	}
	if exists, _ := projects.Exists(context.Background(), p.ID); !exists {
		t.Fatalf("fetched project was not cataloged")
	}
}
