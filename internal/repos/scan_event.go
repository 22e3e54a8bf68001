package repos

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/types"
)

type ScanEventRepo interface {
	Log(ctx context.Context, category string, found, newCount int, status string) error
	Recent(ctx context.Context, limit int) ([]*types.ScanEvent, error)
}

type scanEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScanEventRepo(db *gorm.DB, baseLog *logger.Logger) ScanEventRepo {
	return &scanEventRepo{db: db, log: baseLog.With("repo", "ScanEventRepo")}
}

func (r *scanEventRepo) Log(ctx context.Context, category string, found, newCount int, status string) error {
	event := &types.ScanEvent{
		Category:      category,
		ProjectsFound: found,
		ProjectsNew:   newCount,
		Status:        status,
		ScanTime:      time.Now(),
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *scanEventRepo) Recent(ctx context.Context, limit int) ([]*types.ScanEvent, error) {
	var results []*types.ScanEvent
	if err := r.db.WithContext(ctx).
		Order("scan_time DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
