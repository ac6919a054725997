package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/noxloop/digiforge/internal/campaign/domain"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, c *domain.Campaign) error
	FindByPublicID(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID, publicID string) (*domain.Campaign, error)
	ListByWorkspace(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID, limit int) ([]domain.Campaign, error)
}

type repository struct{}

func New() Repository { return &repository{} }

func (r *repository) Insert(ctx context.Context, db *gorm.DB, c *domain.Campaign) error {
	return db.WithContext(ctx).Create(c).Error
}

func (r *repository) FindByPublicID(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID, publicID string) (*domain.Campaign, error) {
	var c domain.Campaign
	err := db.WithContext(ctx).
		Where("workspace_id = ? AND public_id = ?", workspaceID, publicID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) ListByWorkspace(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID, limit int) ([]domain.Campaign, error) {
	var campaigns []domain.Campaign
	err := db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&campaigns).Error
	if err != nil {
		return nil, err
	}
	return campaigns, nil
}
