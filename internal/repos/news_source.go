package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/types"
)

type NewsSourceRepo interface {
	List(ctx context.Context) ([]*types.NewsSource, error)
	Get(ctx context.Context, id uint) (*types.NewsSource, error)
	Add(ctx context.Context, name, url string) error
	Delete(ctx context.Context, id uint) error
	TouchScanned(ctx context.Context, id uint) error
}

type newsSourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNewsSourceRepo(db *gorm.DB, baseLog *logger.Logger) NewsSourceRepo {
	return &newsSourceRepo{db: db, log: baseLog.With("repo", "NewsSourceRepo")}
}

func (r *newsSourceRepo) List(ctx context.Context) ([]*types.NewsSource, error) {
	var results []*types.NewsSource
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *newsSourceRepo) Get(ctx context.Context, id uint) (*types.NewsSource, error) {
	var source types.NewsSource
	err := r.db.WithContext(ctx).First(&source, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &source, nil
}

func (r *newsSourceRepo) Add(ctx context.Context, name, url string) error {
	err := r.db.WithContext(ctx).Create(&types.NewsSource{Name: name, URL: url}).Error
	if err != nil {
		// Duplicate URLs are expected when re-seeding defaults.
		r.log.Debug("Add news source failed (may already exist)", "url", url, "error", err)
	}
	return err
}

func (r *newsSourceRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&types.NewsSource{}, "id = ?", id).Error
}

func (r *newsSourceRepo) TouchScanned(ctx context.Context, id uint) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&types.NewsSource{}).
		Where("id = ?", id).
		Update("last_scanned", now).Error
}
