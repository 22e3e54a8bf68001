package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/config"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/repos"
	"github.com/repolens/repolens-backend/internal/services"
	"github.com/repolens/repolens-backend/internal/sse"
	"github.com/repolens/repolens-backend/internal/types"
)

// GithubClient is the slice of the fetch layer the orchestrator drives.
type GithubClient interface {
	SearchByKeywords(ctx context.Context, keywords []string, category string) []*types.Project
	SearchRemote(ctx context.Context, query string, limit int) []*types.Project
	GetTrending(ctx context.Context) []*types.Project
	GetNewReleases(ctx context.Context) []*types.Project
	FetchByURL(ctx context.Context, pageURL string) (*types.Project, error)
	CrawlExternalPage(ctx context.Context, pageURL string) ([]*types.Project, error)
	GetReadme(ctx context.Context, fullName string) string
}

// Progress is a live snapshot of the running task. Done never exceeds Total.
type Progress struct {
	Task    string `json:"task"`
	Total   int    `json:"total"`
	Done    int    `json:"done"`
	Current string `json:"current"`
}

// Status is the orchestrator's externally visible state.
type Status struct {
	Running  bool   `json:"running"`
	Task     string `json:"task,omitempty"`
	Pending  int64  `json:"pending"`
	Stopping bool   `json:"stopping"`
}

// FullScanResult aggregates the outcome of one complete catalog refresh.
// PerCategory holds the found count for every category scanned.
type FullScanResult struct {
	NewsFound         int            `json:"news_found"`
	CategoriesScanned int            `json:"categories_scanned"`
	PerCategory       map[string]int `json:"per_category"`
	ProjectsFound     int            `json:"projects_found"`
	ProjectsNew       int            `json:"projects_new"`
	Analyzed          int            `json:"analyzed"`
	ArchiveDir        string         `json:"archive_dir,omitempty"`
	Errors            []string       `json:"errors,omitempty"`
}

// Orchestrator owns every long-running task. Exactly one gated task runs at a
// time: the run slot is a weighted semaphore of capacity one acquired with
// TryAcquire, so a second trigger fails fast with ErrBusy instead of queueing.
type Orchestrator struct {
	log      *logger.Logger
	cfg      *config.Config
	projects repos.ProjectRepo
	scans    repos.ScanEventRepo
	sources  repos.NewsSourceRepo
	github   GithubClient
	analyzer services.AnalyzerService
	content  services.ContentService
	pipeline services.PipelineService
	archive  services.ArchiveService
	hub      *sse.Hub

	slot     *semaphore.Weighted
	stopping atomic.Bool

	mu       sync.Mutex
	progress Progress
}

func New(
	log *logger.Logger,
	cfg *config.Config,
	projects repos.ProjectRepo,
	scans repos.ScanEventRepo,
	sources repos.NewsSourceRepo,
	github GithubClient,
	analyzer services.AnalyzerService,
	content services.ContentService,
	pipeline services.PipelineService,
	archive services.ArchiveService,
	hub *sse.Hub,
) *Orchestrator {
	return &Orchestrator{
		log:      log.With("component", "Orchestrator"),
		cfg:      cfg,
		projects: projects,
		scans:    scans,
		sources:  sources,
		github:   github,
		analyzer: analyzer,
		content:  content,
		pipeline: pipeline,
		archive:  archive,
		hub:      hub,
		slot:     semaphore.NewWeighted(1),
	}
}

// acquire claims the run slot or fails with ErrBusy. The stop flag is cleared
// on a successful claim so a stop request never leaks into the next run.
func (o *Orchestrator) acquire(task string) error {
	if !o.slot.TryAcquire(1) {
		return apperr.ErrBusy
	}
	o.stopping.Store(false)
	o.setProgress(Progress{Task: task})
	return nil
}

func (o *Orchestrator) release() {
	o.setProgress(Progress{})
	o.slot.Release(1)
}

func (o *Orchestrator) setProgress(p Progress) {
	if p.Done > p.Total {
		p.Done = p.Total
	}
	o.mu.Lock()
	o.progress = p
	o.mu.Unlock()
}

func (o *Orchestrator) setCurrent(current string) {
	o.mu.Lock()
	o.progress.Current = current
	o.mu.Unlock()
}

func (o *Orchestrator) stepProgress() {
	o.mu.Lock()
	if o.progress.Done < o.progress.Total {
		o.progress.Done++
	}
	o.mu.Unlock()
}

// GetProgress returns a copy of the live progress snapshot.
func (o *Orchestrator) GetProgress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// Stop requests cooperative cancellation. The running task observes the flag
// between entries; the entry in flight completes and commits.
func (o *Orchestrator) Stop() {
	o.stopping.Store(true)
	o.hub.Notify("Stop requested, finishing current entry", sse.LevelWarning)
}

func (o *Orchestrator) Status(ctx context.Context) Status {
	pending, err := o.projects.CountPending(ctx, o.cfg.Models.Classifier)
	if err != nil {
		o.log.Error("Failed to count pending projects", "error", err)
	}
	o.mu.Lock()
	task := o.progress.Task
	o.mu.Unlock()
	return Status{
		Running:  task != "",
		Task:     task,
		Pending:  pending,
		Stopping: o.stopping.Load(),
	}
}

// RunFullScan refreshes the whole catalog: discovery crawl, category scans
// ordered by current size ascending so thin categories are filled first, one
// enrichment batch over the backlog, then a disk archive. Stage failures are
// collected in the result; later stages still run.
func (o *Orchestrator) RunFullScan(ctx context.Context) (*FullScanResult, error) {
	if err := o.acquire("full_scan"); err != nil {
		return nil, err
	}
	defer o.release()

	o.hub.Notify("Full scan started", sse.LevelInfo)
	result := &FullScanResult{PerCategory: make(map[string]int)}

	newsFound, err := o.newsScan(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("news scan: %v", err))
		o.hub.Notify("News scan failed: "+err.Error(), sse.LevelError)
	}
	result.NewsFound = newsFound

	for _, category := range o.scanOrder(ctx) {
		if o.stopping.Load() || ctx.Err() != nil {
			o.hub.Notify("Full scan stopped during category phase", sse.LevelWarning)
			return result, nil
		}
		found, added, err := o.scanCategory(ctx, category)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("category %s: %v", category.ID, err))
			continue
		}
		result.CategoriesScanned++
		result.PerCategory[category.ID] = found
		result.ProjectsFound += found
		result.ProjectsNew += added
	}

	analyzed, err := o.analyzeBacklog(ctx, o.cfg.Scan.FullScanBatch)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("analysis: %v", err))
	}
	result.Analyzed = analyzed

	dir, err := o.archive.ExportCatalog(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("archive: %v", err))
	}
	result.ArchiveDir = dir

	o.hub.Notify(fmt.Sprintf("Full scan done: %d found, %d new, %d analyzed", result.ProjectsFound, result.ProjectsNew, result.Analyzed), sse.LevelSuccess)
	return result, nil
}

// scanOrder returns the keyword-driven categories ordered by how many entries
// they already hold, ascending.
func (o *Orchestrator) scanOrder(ctx context.Context) []config.Category {
	counts, err := o.projects.CountByCategory(ctx)
	if err != nil {
		o.log.Error("Failed to count categories, using config order", "error", err)
		counts = map[string]int64{}
	}
	var order []config.Category
	for _, cat := range o.cfg.Categories {
		if len(cat.Keywords) > 0 || cat.ID == "trending" || cat.ID == "new_releases" {
			order = append(order, cat)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i].ID] < counts[order[j].ID]
	})
	return order
}

// RunCategoryScan scans one category on demand. It does not take the run
// slot, so a manual scan can proceed while enrichment runs.
func (o *Orchestrator) RunCategoryScan(ctx context.Context, categoryID string) (found, added int, err error) {
	cat := o.cfg.Category(categoryID)
	if cat == nil {
		return 0, 0, &apperr.UnknownCategoryError{Category: categoryID}
	}
	return o.scanCategory(ctx, *cat)
}

func (o *Orchestrator) scanCategory(ctx context.Context, cat config.Category) (found, added int, err error) {
	o.hub.Notify("Scanning category "+cat.Name, sse.LevelInfo)

	var projects []*types.Project
	switch cat.ID {
	case "trending":
		projects = o.github.GetTrending(ctx)
	case "new_releases":
		projects = o.github.GetNewReleases(ctx)
	default:
		projects = o.github.SearchByKeywords(ctx, cat.Keywords, cat.ID)
	}

	for _, project := range projects {
		exists, err := o.projects.Exists(ctx, project.ID)
		if err != nil {
			return found, added, err
		}
		if err := o.projects.Upsert(ctx, project); err != nil {
			return found, added, err
		}
		found++
		if !exists {
			added++
		}
	}

	status := "completed"
	if found == 0 {
		status = "empty"
	}
	if err := o.scans.Log(ctx, cat.ID, found, added, status); err != nil {
		o.log.Error("Failed to record scan event", "category", cat.ID, "error", err)
	}
	o.hub.Notify(fmt.Sprintf("Category %s: %d found, %d new", cat.Name, found, added), sse.LevelSuccess)
	return found, added, nil
}

// RunNewsScan crawls the configured discovery pages and catalogs repository
// links not seen before. Single-flight gated; RunFullScan runs the same
// crawl inside its own slot via newsScan.
func (o *Orchestrator) RunNewsScan(ctx context.Context) (int, error) {
	if err := o.acquire("news_scan"); err != nil {
		return 0, err
	}
	defer o.release()
	return o.newsScan(ctx)
}

func (o *Orchestrator) newsScan(ctx context.Context) (int, error) {
	type source struct {
		id   uint
		name string
		url  string
	}
	var targets []source

	stored, err := o.sources.List(ctx)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool)
	for _, s := range stored {
		targets = append(targets, source{id: s.ID, name: s.Name, url: s.URL})
		seen[s.URL] = true
	}
	for _, url := range o.cfg.DiscoveryURLs {
		if !seen[url] {
			targets = append(targets, source{name: url, url: url})
		}
	}

	total := 0
	for _, src := range targets {
		if o.stopping.Load() || ctx.Err() != nil {
			break
		}
		projects, err := o.github.CrawlExternalPage(ctx, src.url)
		if err != nil {
			o.log.Warn("Discovery crawl failed", "source", src.name, "error", err)
			o.hub.Notify("Crawl failed for "+src.name, sse.LevelWarning)
			continue
		}
		added := 0
		for _, project := range projects {
			exists, err := o.projects.Exists(ctx, project.ID)
			if err != nil {
				return total, err
			}
			if exists {
				continue
			}
			if err := o.projects.Upsert(ctx, project); err != nil {
				return total, err
			}
			added++
		}
		total += added
		if src.id != 0 {
			if err := o.sources.TouchScanned(ctx, src.id); err != nil {
				o.log.Warn("Failed to touch news source", "source", src.name, "error", err)
			}
		}
		o.hub.Notify(fmt.Sprintf("Discovery %s: %d new links", src.name, added), sse.LevelInfo)
	}
	return total, nil
}

// RunBatchAnalysis enriches up to the configured batch of backlog entries.
// Single-flight gated.
func (o *Orchestrator) RunBatchAnalysis(ctx context.Context) (int, error) {
	if err := o.acquire("batch_analysis"); err != nil {
		return 0, err
	}
	defer o.release()

	o.hub.Notify("Batch analysis started", sse.LevelInfo)
	n, err := o.analyzeBacklog(ctx, o.cfg.Scan.AnalysisBatch)
	if err != nil {
		return n, err
	}
	o.hub.Notify(fmt.Sprintf("Batch analysis done: %d projects enriched", n), sse.LevelSuccess)
	return n, nil
}

// analyzeBacklog runs the enrichment pipeline over the oldest pending
// entries. Per-entry failures are absorbed so one broken repository cannot
// poison the batch; quota errors abort since every later entry would hit the
// same wall.
func (o *Orchestrator) analyzeBacklog(ctx context.Context, limit int) (int, error) {
	backlog, err := o.projects.GetBacklog(ctx, limit, o.cfg.Models.Classifier)
	if err != nil {
		return 0, err
	}
	o.setProgress(Progress{Task: o.GetProgress().Task, Total: len(backlog)})

	done := 0
	for i, project := range backlog {
		if o.stopping.Load() || ctx.Err() != nil {
			o.hub.Notify(fmt.Sprintf("Analysis stopped after %d of %d", done, len(backlog)), sse.LevelWarning)
			return done, nil
		}
		o.setCurrent(project.FullName)
		o.reclassify(ctx, project)
		if err := o.pipeline.EnrichProject(ctx, project); err != nil {
			if apperr.IsQuota(err) {
				o.hub.Notify("Quota exhausted, aborting batch", sse.LevelError)
				return done, err
			}
			o.log.Error("Enrichment failed", "project", project.FullName, "error", err)
			o.hub.Notify("Enrichment failed for "+project.FullName, sse.LevelError)
			continue
		}
		done++
		o.stepProgress()
		if i < len(backlog)-1 && o.cfg.Scan.EntryDelay > 0 {
			timer := time.NewTimer(o.cfg.Scan.EntryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return done, nil
			case <-timer.C:
			}
		}
	}
	return done, nil
}

// reclassify moves discovery and manually added entries into a configured
// category before enrichment so they surface in normal category listings.
// Best effort: a failed or unknown classification leaves the entry where it
// is.
func (o *Orchestrator) reclassify(ctx context.Context, project *types.Project) {
	switch project.Category {
	case "news", "manual", "manual_scraped":
	default:
		return
	}
	var ids []string
	for _, cat := range o.cfg.Categories {
		if len(cat.Keywords) > 0 {
			ids = append(ids, cat.ID)
		}
	}
	category, err := o.analyzer.ClassifyProject(ctx, project, ids)
	if err != nil || o.cfg.Category(category) == nil {
		return
	}
	if err := o.projects.UpdateCategory(ctx, project.ID, category); err != nil {
		o.log.Warn("Failed to reclassify entry", "project", project.FullName, "error", err)
		return
	}
	project.Category = category
}

// AddProjectByLink fetches one repository by page URL and catalogs it.
func (o *Orchestrator) AddProjectByLink(ctx context.Context, pageURL string) (*types.Project, error) {
	project, err := o.github.FetchByURL(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if err := o.projects.Upsert(ctx, project); err != nil {
		return nil, err
	}
	o.hub.Notify("Added "+project.FullName, sse.LevelSuccess)
	return project, nil
}

// AnalyzeSingle runs the full enrichment pipeline for one entry. Gated, so it
// cannot interleave with a batch run against the same entry.
func (o *Orchestrator) AnalyzeSingle(ctx context.Context, id string) (*types.Project, error) {
	if err := o.acquire("analyze_single"); err != nil {
		return nil, err
	}
	defer o.release()

	project, err := o.projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	o.setProgress(Progress{Task: "analyze_single", Total: 1, Current: project.FullName})
	o.reclassify(ctx, project)
	if err := o.pipeline.EnrichProject(ctx, project); err != nil {
		return nil, err
	}
	return o.projects.Get(ctx, id)
}

// GenerateTutorial produces (or returns the stored) deployment tutorial for
// one entry and exports it to disk.
func (o *Orchestrator) GenerateTutorial(ctx context.Context, id string) (string, error) {
	project, err := o.projects.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if project.AITutorial == "" {
		readme := o.github.GetReadme(ctx, project.FullName)
		tutorial, err := o.content.GenerateTutorial(ctx, project, readme, project.AIVisualSummary)
		if err != nil {
			return "", err
		}
		if err := o.projects.UpdateTutorial(ctx, project.ID, tutorial); err != nil {
			return "", err
		}
		project.AITutorial = tutorial
	}
	if _, err := o.archive.SaveTutorial(project); err != nil {
		o.log.Warn("Tutorial export failed", "project", project.FullName, "error", err)
	}
	return project.AITutorial, nil
}

// SearchHybrid merges local catalog matches with live remote results. Local
// entries rank first; remote duplicates of cataloged entries are dropped.
func (o *Orchestrator) SearchHybrid(ctx context.Context, query string, limit int) ([]*types.Project, error) {
	local, err := o.projects.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	merged := make([]*types.Project, 0, limit)
	seen := make(map[string]bool, limit)
	for _, p := range local {
		merged = append(merged, p)
		seen[p.ID] = true
	}
	if len(merged) < limit {
		for _, p := range o.github.SearchRemote(ctx, query, limit-len(merged)) {
			if seen[p.ID] {
				continue
			}
			merged = append(merged, p)
			seen[p.ID] = true
			if len(merged) >= limit {
				break
			}
		}
	}
	return merged, nil
}

// RefineSearch advances the conversational search refinement loop.
func (o *Orchestrator) RefineSearch(ctx context.Context, history []services.ChatTurn) (services.IntentResult, error) {
	return o.analyzer.RefineSearchIntent(ctx, history)
}

// Recommend picks the best fit among local candidates for a requirement.
func (o *Orchestrator) Recommend(ctx context.Context, query string, limit int) (string, []*types.Project, error) {
	candidates, err := o.SearchHybrid(ctx, query, limit)
	if err != nil {
		return "", nil, err
	}
	deref := make([]types.Project, len(candidates))
	for i, p := range candidates {
		deref[i] = *p
	}
	text, err := o.content.RecommendSolution(ctx, query, deref)
	if err != nil {
		return "", nil, err
	}
	return text, candidates, nil
}

// ResetAllData wipes the catalog. Gated so it cannot race a running scan.
func (o *Orchestrator) ResetAllData(ctx context.Context) error {
	if err := o.acquire("reset"); err != nil {
		return err
	}
	defer o.release()

	if err := o.projects.Clear(ctx); err != nil {
		return err
	}
	o.hub.Notify("Catalog cleared", sse.LevelWarning)
	return nil
}
