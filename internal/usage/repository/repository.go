package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/noxloop/digiforge/internal/usage/domain"
)

type repository struct{}

func New() domain.Repository { return &repository{} }

func (r *repository) Insert(ctx context.Context, db *gorm.DB, rec *domain.UsageRecord) error {
	return db.WithContext(ctx).Create(rec).Error
}

func (r *repository) ListByWorkspace(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID, limit int) ([]domain.UsageRecord, error) {
	var records []domain.UsageRecord
	err := db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) SumSince(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw(`SELECT COALESCE(SUM(credits), 0) FROM usage_records WHERE workspace_id = ? AND created_at >= ?`,
			workspaceID, since).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
