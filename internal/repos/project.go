package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/types"
)

// fetchColumns are the columns an upsert may overwrite. AI-derived columns
// are deliberately absent: a rescan must never clear prior enrichment.
var fetchColumns = []string{
	"name", "full_name", "category", "stars", "forks", "description",
	"url", "homepage", "language", "topics", "created_at", "updated_at",
	"last_scanned",
}

type ProjectRepo interface {
	Upsert(ctx context.Context, project *types.Project) error
	Get(ctx context.Context, id string) (*types.Project, error)
	Exists(ctx context.Context, id string) (bool, error)
	GetByCategory(ctx context.Context, category string, limit int) ([]*types.Project, error)
	All(ctx context.Context) ([]*types.Project, error)
	GetBacklog(ctx context.Context, limit int, excludeModel string) ([]*types.Project, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]*types.Project, error)
	CountPending(ctx context.Context, excludeModel string) (int64, error)
	CountByCategory(ctx context.Context) (map[string]int64, error)
	UpdateCategory(ctx context.Context, id string, category string) error
	UpdateAnalysis(ctx context.Context, id string, analysis types.Analysis, modelName string) error
	UpdateRAGSummary(ctx context.Context, id string, summary string) error
	UpdateScreenshot(ctx context.Context, id string, path string) error
	UpdateVisualSummary(ctx context.Context, id string, summary string) error
	UpdateTutorial(ctx context.Context, id string, tutorial string) error
	Clear(ctx context.Context) error
}

type projectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return &projectRepo{db: db, log: baseLog.With("repo", "ProjectRepo")}
}

func (r *projectRepo) Upsert(ctx context.Context, project *types.Project) error {
	now := time.Now()
	project.LastScanned = &now

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(fetchColumns),
	}).Create(project).Error
}

func (r *projectRepo) Get(ctx context.Context, id string) (*types.Project, error) {
	var project types.Project
	err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *projectRepo) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&types.Project{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *projectRepo) GetByCategory(ctx context.Context, category string, limit int) ([]*types.Project, error) {
	var results []*types.Project
	if err := r.db.WithContext(ctx).
		Where("category = ?", category).
		Order("stars DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *projectRepo) All(ctx context.Context) ([]*types.Project, error) {
	var results []*types.Project
	if err := r.db.WithContext(ctx).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetBacklog returns entries still lacking enrichment from the current
// producing model, oldest scans first.
func (r *projectRepo) GetBacklog(ctx context.Context, limit int, excludeModel string) ([]*types.Project, error) {
	var results []*types.Project
	if err := r.db.WithContext(ctx).
		Where("ai_summary IS NULL OR ai_summary = '' OR ai_model_name <> ?", excludeModel).
		Order("last_scanned ASC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *projectRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&types.Project{}, "id = ?", id).Error
}

func (r *projectRepo) Search(ctx context.Context, query string, limit int) ([]*types.Project, error) {
	var results []*types.Project
	pattern := "%" + query + "%"
	if err := r.db.WithContext(ctx).
		Where("name LIKE ? OR description LIKE ? OR ai_rag_summary LIKE ?", pattern, pattern, pattern).
		Order("stars DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *projectRepo) CountPending(ctx context.Context, excludeModel string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&types.Project{}).
		Where("ai_summary IS NULL OR ai_summary = '' OR ai_model_name <> ?", excludeModel).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *projectRepo) CountByCategory(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Category string
		Count    int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&types.Project{}).
		Select("category, COUNT(*) as count").
		Group("category").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, rw := range rows {
		counts[rw.Category] = rw.Count
	}
	return counts, nil
}

func (r *projectRepo) UpdateCategory(ctx context.Context, id string, category string) error {
	return r.updateColumn(ctx, id, "category", category)
}

func (r *projectRepo) UpdateAnalysis(ctx context.Context, id string, analysis types.Analysis, modelName string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&types.Project{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"ai_summary":     analysis.Summary,
			"ai_tech_stack":  mustJSON(analysis.TechStack),
			"ai_use_cases":   mustJSON(analysis.UseCases),
			"ai_difficulty":  analysis.Difficulty,
			"ai_quick_start": analysis.QuickStart,
			"ai_model_name":  modelName,
			"last_analyzed":  now,
		}).Error
}

func (r *projectRepo) UpdateRAGSummary(ctx context.Context, id string, summary string) error {
	return r.updateColumn(ctx, id, "ai_rag_summary", summary)
}

func (r *projectRepo) UpdateScreenshot(ctx context.Context, id string, path string) error {
	return r.updateColumn(ctx, id, "screenshot", path)
}

func (r *projectRepo) UpdateVisualSummary(ctx context.Context, id string, summary string) error {
	return r.updateColumn(ctx, id, "ai_visual_summary", summary)
}

func (r *projectRepo) UpdateTutorial(ctx context.Context, id string, tutorial string) error {
	return r.updateColumn(ctx, id, "ai_tutorial", tutorial)
}

func (r *projectRepo) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("1 = 1").Delete(&types.Project{}).Error
}

func (r *projectRepo) updateColumn(ctx context.Context, id, column string, value any) error {
	return r.db.WithContext(ctx).
		Model(&types.Project{}).
		Where("id = ?", id).
		Update(column, value).Error
}
