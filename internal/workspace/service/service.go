package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/metrics"
	"github.com/noxloop/digiforge/internal/workspace/domain"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	Repo    domain.Repository
	Metrics *metrics.Metrics
}

type workspaceService struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	genID   *snowflake.Node
	repo    domain.Repository
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &workspaceService{
		db:      p.DB,
		log:     p.Log.Named("workspace.service"),
		clock:   p.Clock,
		genID:   p.GenID,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *workspaceService) Create(ctx context.Context, name, ownerID, plan string, credits int64) (*domain.Workspace, error) {
	if credits < 0 {
		return nil, domain.ErrInvalidAmount
	}
	ws := &domain.Workspace{
		ID:        s.genID.Generate(),
		Name:      name,
		OwnerID:   ownerID,
		Plan:      plan,
		Credits:   credits,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, ws); err != nil {
		return nil, err
	}
	s.log.Info("workspace created",
		zap.String("workspace_id", ws.ID.String()),
		zap.String("plan", plan),
		zap.Int64("credits", credits),
	)
	return ws, nil
}

func (s *workspaceService) Get(ctx context.Context, id snowflake.ID) (*domain.Workspace, error) {
	return s.repo.Find(ctx, s.db, id)
}

func (s *workspaceService) PrimaryForUser(ctx context.Context, userID string) (*domain.Workspace, error) {
	return s.repo.FindOldestByOwner(ctx, s.db, userID)
}

func (s *workspaceService) ListForUser(ctx context.Context, userID string) ([]domain.Workspace, error) {
	return s.repo.ListByOwner(ctx, s.db, userID)
}

func (s *workspaceService) Sufficient(ctx context.Context, id snowflake.ID, amount int64) (bool, int64, error) {
	if amount < 0 {
		return false, 0, domain.ErrInvalidAmount
	}
	balance, err := s.repo.Balance(ctx, s.db, id)
	if err != nil {
		return false, 0, err
	}
	return balance >= amount, balance, nil
}

func (s *workspaceService) Charge(ctx context.Context, id snowflake.ID, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	updated, err := s.repo.DecrementIfSufficient(ctx, s.db, id, amount)
	if err != nil {
		return err
	}
	if !updated {
		// Distinguish a missing workspace from an insufficient balance.
		if _, err := s.repo.Find(ctx, s.db, id); err != nil {
			return err
		}
		return domain.ErrInsufficientCredit
	}
	s.metrics.CreditsChargedTotal.Add(float64(amount))
	s.log.Info("credits charged",
		zap.String("workspace_id", id.String()),
		zap.Int64("amount", amount),
	)
	return nil
}

func (s *workspaceService) Grant(ctx context.Context, id snowflake.ID, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := s.repo.Increment(ctx, s.db, id, amount); err != nil {
		return err
	}
	s.metrics.CreditsGrantedTotal.Add(float64(amount))
	s.log.Info("credits granted",
		zap.String("workspace_id", id.String()),
		zap.Int64("amount", amount),
	)
	return nil
}

func (s *workspaceService) ActivatePlan(ctx context.Context, tx *gorm.DB, id snowflake.ID, planID string, credits int64) error {
	if credits < 0 {
		return domain.ErrInvalidAmount
	}
	if err := s.repo.SetPlanAndIncrement(ctx, tx, id, planID, credits); err != nil {
		return err
	}
	s.metrics.CreditsGrantedTotal.Add(float64(credits))
	return nil
}
