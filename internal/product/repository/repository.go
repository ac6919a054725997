package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/noxloop/digiforge/internal/product/domain"
)

type repository struct{}

func New() domain.Repository { return &repository{} }

func (r *repository) Insert(ctx context.Context, db *gorm.DB, p *domain.Product) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repository) FindByPublicID(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID, publicID string) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).
		Where("workspace_id = ? AND public_id = ?", workspaceID, publicID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListByWorkspace(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID, limit int) ([]domain.Product, error) {
	var products []domain.Product
	err := db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repository) DeleteByPublicID(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID, publicID string) (bool, error) {
	res := db.WithContext(ctx).
		Where("workspace_id = ? AND public_id = ?", workspaceID, publicID).
		Delete(&domain.Product{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
