package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/types"
)

type SettingRepo interface {
	Get(ctx context.Context, key, defaultVal string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type settingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSettingRepo(db *gorm.DB, baseLog *logger.Logger) SettingRepo {
	return &settingRepo{db: db, log: baseLog.With("repo", "SettingRepo")}
}

func (r *settingRepo) Get(ctx context.Context, key, defaultVal string) (string, error) {
	var setting types.Setting
	err := r.db.WithContext(ctx).First(&setting, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaultVal, nil
	}
	if err != nil {
		return defaultVal, err
	}
	return setting.Value, nil
}

func (r *settingRepo) Set(ctx context.Context, key, value string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&types.Setting{Key: key, Value: value}).Error
}
