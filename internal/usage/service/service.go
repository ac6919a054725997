package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/usage/domain"
)

const defaultListLimit = 50

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  domain.Repository
}

type usageService struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &usageService{
		db:    p.DB,
		log:   p.Log.Named("usage.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *usageService) Record(ctx context.Context, workspaceID snowflake.ID, userID, action string, credits int64, metadata map[string]any) error {
	var raw []byte
	if metadata != nil {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		raw = encoded
	}
	rec := &domain.UsageRecord{
		ID:          s.genID.Generate(),
		WorkspaceID: workspaceID,
		UserID:      userID,
		Action:      action,
		Credits:     credits,
		Metadata:    raw,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, rec); err != nil {
		return err
	}
	s.log.Info("usage recorded",
		zap.String("workspace_id", workspaceID.String()),
		zap.String("action", action),
		zap.Int64("credits", credits),
	)
	return nil
}

func (s *usageService) ListByWorkspace(ctx context.Context, workspaceID snowflake.ID, limit int) ([]domain.UsageRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}
	return s.repo.ListByWorkspace(ctx, s.db, workspaceID, limit)
}

func (s *usageService) TotalSince(ctx context.Context, workspaceID snowflake.ID, since time.Time) (int64, error) {
	return s.repo.SumSince(ctx, s.db, workspaceID, since)
}
