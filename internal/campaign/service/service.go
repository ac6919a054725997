package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/noxloop/digiforge/internal/campaign/domain"
	"github.com/noxloop/digiforge/internal/campaign/repository"
	"github.com/noxloop/digiforge/internal/clock"
	gendomain "github.com/noxloop/digiforge/internal/generation/domain"
	"github.com/noxloop/digiforge/internal/guard"
	"github.com/noxloop/digiforge/internal/llm"
	"github.com/noxloop/digiforge/internal/metrics"
	"github.com/noxloop/digiforge/internal/notify"
	"github.com/noxloop/digiforge/internal/rag"
	usagedomain "github.com/noxloop/digiforge/internal/usage/domain"
	workspacedomain "github.com/noxloop/digiforge/internal/workspace/domain"
	"github.com/noxloop/digiforge/pkg/ident"
)

const listLimit = 100

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Guard      *guard.Guard
	Workspaces workspacedomain.Service
	Usage      usagedomain.Service
	LLM        llm.Client
	RAG        rag.Client
	Repo       repository.Repository
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
}

type campaignService struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	guard      *guard.Guard
	workspaces workspacedomain.Service
	usage      usagedomain.Service
	llm        llm.Client
	builder    *builder
	repo       repository.Repository
	notifier   notify.Notifier
	metrics    *metrics.Metrics
}

func NewService(p Params) domain.Service {
	log := p.Log.Named("campaign.service")
	return &campaignService{
		db:         p.DB,
		log:        log,
		clock:      p.Clock,
		genID:      p.GenID,
		guard:      p.Guard,
		workspaces: p.Workspaces,
		usage:      p.Usage,
		llm:        p.LLM,
		builder:    newBuilder(p.LLM, p.RAG, log, p.Metrics),
		repo:       p.Repo,
		notifier:   p.Notifier,
		metrics:    p.Metrics,
	}
}

// Generate assembles a campaign through the gated pipeline. Slot failures
// are absorbed into the artifact; the request only fails on guard refusal,
// insufficient credit, or provider unavailability.
func (s *campaignService) Generate(ctx context.Context, req domain.Request) (*domain.Campaign, error) {
	if abuse := s.guard.CheckCreditAbuse(req.UserID); !abuse.Allowed {
		s.metrics.RateLimitedTotal.WithLabelValues(guard.ActionGenerate).Inc()
		return nil, fmt.Errorf("%w: %s", guard.ErrAbuseCeiling, abuse.Reason)
	}

	ok, balance, err := s.workspaces.Sufficient(ctx, req.WorkspaceID, domain.Cost)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: required %d, available %d",
			workspacedomain.ErrInsufficientCredit, domain.Cost, balance)
	}

	if !s.llm.Available(ctx) {
		return nil, gendomain.ErrUnavailable
	}

	cfg := domain.Config{
		Niche:     req.Niche,
		Product:   req.Product,
		Offer:     req.Offer,
		Price:     req.Price,
		Objective: req.Objective,
		Tone:      req.Tone,
		Channel:   req.Channel,
		Language:  req.Language,
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	useRAG := true
	if req.UseRAG != nil {
		useRAG = *req.UseRAG
	}

	assets, ragUsed := s.builder.assemble(ctx, cfg, useRAG)

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	assetsJSON, err := json.Marshal(assets)
	if err != nil {
		return nil, err
	}

	if err := s.workspaces.Charge(ctx, req.WorkspaceID, domain.Cost); err != nil {
		return nil, err
	}

	campaign := &domain.Campaign{
		ID:          s.genID.Generate(),
		PublicID:    ident.PublicID("camp_"),
		WorkspaceID: req.WorkspaceID,
		UserID:      req.UserID,
		Config:      cfgJSON,
		Assets:      assetsJSON,
		RAGUsed:     ragUsed,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, campaign); err != nil {
		if grantErr := s.workspaces.Grant(ctx, req.WorkspaceID, domain.Cost); grantErr != nil {
			s.log.Error("refund after failed persist",
				zap.String("workspace_id", req.WorkspaceID.String()),
				zap.Error(grantErr),
			)
		}
		return nil, err
	}

	s.guard.RecordCreditUsage(req.UserID, domain.Cost)
	if err := s.usage.Record(ctx, req.WorkspaceID, req.UserID, usagedomain.ActionCampaignGeneration, domain.Cost,
		map[string]any{"campaign_id": campaign.PublicID}); err != nil {
		s.log.Error("usage record failed", zap.Error(err))
	}

	s.notifier.CampaignCreated(ctx, campaign.PublicID, req.WorkspaceID.String(), req.UserID, cfg.Channel)

	s.metrics.GenerationsTotal.WithLabelValues("campaign").Inc()
	s.metrics.CampaignsTotal.Inc()
	s.log.Info("campaign assembled",
		zap.String("campaign_id", campaign.PublicID),
		zap.String("workspace_id", req.WorkspaceID.String()),
		zap.String("channel", cfg.Channel),
		zap.Bool("rag_used", ragUsed),
	)
	return campaign, nil
}

func (s *campaignService) List(ctx context.Context, workspaceID snowflake.ID) ([]domain.Campaign, error) {
	return s.repo.ListByWorkspace(ctx, s.db, workspaceID, listLimit)
}

func (s *campaignService) Get(ctx context.Context, workspaceID snowflake.ID, campaignID string) (*domain.Campaign, error) {
	return s.repo.FindByPublicID(ctx, s.db, workspaceID, campaignID)
}

func (s *campaignService) ExportArchive(ctx context.Context, workspaceID snowflake.ID, campaignID string) (*domain.Export, error) {
	campaign, err := s.repo.FindByPublicID(ctx, s.db, workspaceID, campaignID)
	if err != nil {
		return nil, err
	}

	files, err := exportFiles(campaign)
	if err != nil {
		return nil, err
	}
	archive, err := buildArchive(files)
	if err != nil {
		return nil, err
	}

	if err := s.usage.Record(ctx, workspaceID, campaign.UserID, usagedomain.ActionExport, 0,
		map[string]any{"campaign_id": campaignID, "type": "zip"}); err != nil {
		s.log.Error("usage record failed", zap.Error(err))
	}

	exportID := "exp_" + ulid.Make().String()
	s.notifier.ExportGenerated(ctx, exportID, workspaceID.String(), campaign.UserID, "campaign_zip", len(archive))

	return &domain.Export{
		ExportID: exportID,
		Filename: fmt.Sprintf("campaign_%s.zip", campaignID),
		Archive:  archive,
	}, nil
}
