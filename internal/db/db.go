package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/types"
	"github.com/repolens/repolens-backend/internal/utils"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// New connects to Postgres when POSTGRES_HOST is configured, otherwise falls
// back to a local sqlite file so the service runs without external infra.
func New(log *logger.Logger) (*Service, error) {
	serviceLog := log.With("service", "DBService")

	host := utils.GetEnv("POSTGRES_HOST", "", log)

	var (
		conn *gorm.DB
		err  error
	)
	gormCfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
	}

	if host != "" {
		port := utils.GetEnv("POSTGRES_PORT", "5432", log)
		user := utils.GetEnv("POSTGRES_USER", "postgres", log)
		password := utils.GetEnv("POSTGRES_PASSWORD", "", log)
		name := utils.GetEnv("POSTGRES_NAME", "repolens", log)

		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
		serviceLog.Info("Connecting to Postgres...", "host", host, "db", name)
		conn, err = gorm.Open(postgres.Open(dsn), gormCfg)
	} else {
		path := utils.GetEnv("SQLITE_PATH", "data/repolens.db", log)
		serviceLog.Info("POSTGRES_HOST not set, using sqlite", "path", path)
		conn, err = gorm.Open(sqlite.Open(path), gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &Service{db: conn, log: serviceLog}, nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	return s.db.AutoMigrate(
		&types.Project{},
		&types.ScanEvent{},
		&types.NewsSource{},
		&types.Setting{},
	)
}

func (s *Service) DB() *gorm.DB {
	return s.db
}
