package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"cvStudio/internal/catalog"
	"cvStudio/internal/config"
)

// InitDatabase 使用配置初始化 PostgreSQL 连接，并返回 GORM 数据库实例。
func InitDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// Migrate 执行全部模型的自动迁移。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// SeedTemplates 将渲染器注册表同步到 templates 表，已存在的行只更新展示字段，
// 不覆盖 worker 写入的 preview_image_key。
func SeedTemplates(ctx context.Context, db *gorm.DB) error {
	for _, tpl := range catalog.All() {
		row := Template{
			Key:           tpl.Key,
			Name:          tpl.Name,
			Category:      string(tpl.Category),
			PriceCents:    tpl.PriceCents,
			Currency:      tpl.Currency,
			DefaultAccent: tpl.DefaultAccent,
		}
		err := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "category", "price_cents", "currency", "default_accent", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("seed template %q: %w", tpl.Key, err)
		}
	}
	return nil
}
