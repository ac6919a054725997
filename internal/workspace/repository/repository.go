package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/noxloop/digiforge/internal/workspace/domain"
)

type repository struct{}

func New() domain.Repository { return &repository{} }

func (r *repository) Insert(ctx context.Context, db *gorm.DB, ws *domain.Workspace) error {
	return db.WithContext(ctx).Create(ws).Error
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Workspace, error) {
	var ws domain.Workspace
	err := db.WithContext(ctx).Where("id = ?", id).First(&ws).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *repository) FindOldestByOwner(ctx context.Context, db *gorm.DB, ownerID string) (*domain.Workspace, error) {
	var ws domain.Workspace
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		First(&ws).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *repository) ListByOwner(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Workspace, error) {
	var workspaces []domain.Workspace
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&workspaces).Error
	if err != nil {
		return nil, err
	}
	return workspaces, nil
}

func (r *repository) Balance(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var credits int64
	err := db.WithContext(ctx).
		Raw(`SELECT credits FROM workspaces WHERE id = ?`, id).
		Scan(&credits).Error
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.WithContext(ctx).Model(&domain.Workspace{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, domain.ErrNotFound
	}
	return credits, nil
}

// DecrementIfSufficient is the whole point of the ledger: the balance check
// and the decrement happen in one statement, so two concurrent charges can
// never both pass a stale check.
func (r *repository) DecrementIfSufficient(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE workspaces SET credits = credits - ? WHERE id = ? AND credits >= ?`,
		amount, id, amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Increment(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE workspaces SET credits = credits + ? WHERE id = ?`,
		amount, id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repository) SetPlanAndIncrement(ctx context.Context, db *gorm.DB, id snowflake.ID, planID string, amount int64) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE workspaces SET plan = ?, credits = credits + ? WHERE id = ?`,
		planID, amount, id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
