package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/generation/domain"
	"github.com/noxloop/digiforge/internal/guard"
	"github.com/noxloop/digiforge/internal/llm"
	"github.com/noxloop/digiforge/internal/metrics"
	productdomain "github.com/noxloop/digiforge/internal/product/domain"
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
	Products   productdomain.Repository
	Metrics    *metrics.Metrics
}

type generationService struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	guard      *guard.Guard
	workspaces workspacedomain.Service
	usage      usagedomain.Service
	llm        llm.Client
	rag        rag.Client
	products   productdomain.Repository
	metrics    *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &generationService{
		db:         p.DB,
		log:        p.Log.Named("generation.service"),
		clock:      p.Clock,
		genID:      p.GenID,
		guard:      p.Guard,
		workspaces: p.Workspaces,
		usage:      p.Usage,
		llm:        p.LLM,
		rag:        p.RAG,
		products:   p.Products,
		metrics:    p.Metrics,
	}
}

// GenerateProduct runs the gated pipeline: abuse ceiling, balance
// sufficiency, provider availability, generation, then charge and trail.
// Credits are charged with a conditional decrement, so a concurrent drain of
// the balance between the sufficiency check and the charge fails the request
// instead of driving the balance negative.
func (s *generationService) GenerateProduct(ctx context.Context, req domain.ProductRequest) (*productdomain.Product, error) {
	if abuse := s.guard.CheckCreditAbuse(req.UserID); !abuse.Allowed {
		s.metrics.RateLimitedTotal.WithLabelValues(guard.ActionGenerate).Inc()
		return nil, fmt.Errorf("%w: %s", guard.ErrAbuseCeiling, abuse.Reason)
	}

	ok, balance, err := s.workspaces.Sufficient(ctx, req.WorkspaceID, domain.ProductCost)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: required %d, available %d",
			workspacedomain.ErrInsufficientCredit, domain.ProductCost, balance)
	}

	if !s.llm.Available(ctx) {
		return nil, domain.ErrUnavailable
	}

	prompt := buildProductPrompt(req.ProductType, req.Topic, req.TargetAudience, req.Tone, req.Language)
	if docs := s.rag.Retrieve(ctx, req.Topic+" "+req.TargetAudience, 0); len(docs) > 0 {
		prompt = rag.FormatContext(docs) + "\n\n" + prompt
	}

	content, err := s.llm.Generate(ctx, prompt, productSystemPrompt, 0)
	if err != nil {
		s.log.Error("product generation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrFailed, err)
	}

	if err := s.workspaces.Charge(ctx, req.WorkspaceID, domain.ProductCost); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	product := &productdomain.Product{
		ID:             s.genID.Generate(),
		PublicID:       ident.PublicID("prod_"),
		WorkspaceID:    req.WorkspaceID,
		UserID:         req.UserID,
		Title:          req.Title,
		Description:    req.Description,
		ProductType:    req.ProductType,
		Topic:          req.Topic,
		TargetAudience: req.TargetAudience,
		Tone:           req.Tone,
		Language:       req.Language,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.products.Insert(ctx, s.db, product); err != nil {
		// The charge already went through; hand the credits back rather than
		// leaving the workspace billed for nothing.
		if grantErr := s.workspaces.Grant(ctx, req.WorkspaceID, domain.ProductCost); grantErr != nil {
			s.log.Error("refund after failed persist",
				zap.String("workspace_id", req.WorkspaceID.String()),
				zap.Error(grantErr),
			)
		}
		return nil, err
	}

	s.guard.RecordCreditUsage(req.UserID, domain.ProductCost)
	if err := s.usage.Record(ctx, req.WorkspaceID, req.UserID, usagedomain.ActionGeneration, domain.ProductCost,
		map[string]any{"product_id": product.PublicID, "type": product.ProductType}); err != nil {
		s.log.Error("usage record failed", zap.Error(err))
	}

	s.metrics.GenerationsTotal.WithLabelValues("product").Inc()
	s.log.Info("product generated",
		zap.String("product_id", product.PublicID),
		zap.String("workspace_id", req.WorkspaceID.String()),
		zap.String("type", product.ProductType),
	)
	return product, nil
}

func (s *generationService) ListProducts(ctx context.Context, workspaceID snowflake.ID) ([]productdomain.Product, error) {
	return s.products.ListByWorkspace(ctx, s.db, workspaceID, listLimit)
}

func (s *generationService) GetProduct(ctx context.Context, workspaceID snowflake.ID, productID string) (*productdomain.Product, error) {
	return s.products.FindByPublicID(ctx, s.db, workspaceID, productID)
}

func (s *generationService) DeleteProduct(ctx context.Context, workspaceID snowflake.ID, productID string) error {
	deleted, err := s.products.DeleteByPublicID(ctx, s.db, workspaceID, productID)
	if err != nil {
		return err
	}
	if !deleted {
		return productdomain.ErrNotFound
	}
	s.log.Info("product deleted",
		zap.String("product_id", productID),
		zap.String("workspace_id", workspaceID.String()),
	)
	return nil
}
