package db

import (
	"fmt"

	"github.com/netly/taskctl/internal/config"
	"github.com/netly/taskctl/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func NewPostgresConnection(cfg config.DatabaseConfig) (*gorm.DB, error) {
	database, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return database, nil
}

func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.TaskRun{}); err != nil {
		return err
	}

	// At most one live RUNNING row per task type
	return db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_task_runs_one_running
		ON task_runs (type)
		WHERE status = 'RUNNING' AND deleted_at IS NULL
	`).Error
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
