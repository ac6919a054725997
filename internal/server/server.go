package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	campaigndomain "github.com/noxloop/digiforge/internal/campaign/domain"
	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/config"
	generationdomain "github.com/noxloop/digiforge/internal/generation/domain"
	"github.com/noxloop/digiforge/internal/guard"
	"github.com/noxloop/digiforge/internal/llm"
	"github.com/noxloop/digiforge/internal/metrics"
	"github.com/noxloop/digiforge/internal/notify"
	paymentsdomain "github.com/noxloop/digiforge/internal/payments/domain"
	"github.com/noxloop/digiforge/internal/plan"
	"github.com/noxloop/digiforge/internal/rag"
	usagedomain "github.com/noxloop/digiforge/internal/usage/domain"
	workspacedomain "github.com/noxloop/digiforge/internal/workspace/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log.Named("http")))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))

	return r
}

func registerGin(log *zap.Logger, m *metrics.Metrics) *gin.Engine {
	return NewEngine(log, m)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	guard         *guard.Guard
	metrics       *metrics.Metrics
	catalog       *plan.Catalog
	workspaceSvc  workspacedomain.Service
	usageSvc      usagedomain.Service
	generationSvc generationdomain.Service
	campaignSvc   campaigndomain.Service
	paymentSvc    paymentsdomain.Service
	llmClient     llm.Client
	ragClient     rag.Client
	notifier      notify.Notifier
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Guard         *guard.Guard
	Metrics       *metrics.Metrics
	Catalog       *plan.Catalog
	WorkspaceSvc  workspacedomain.Service
	UsageSvc      usagedomain.Service
	GenerationSvc generationdomain.Service
	CampaignSvc   campaigndomain.Service
	PaymentSvc    paymentsdomain.Service
	LLMClient     llm.Client
	RAGClient     rag.Client
	Notifier      notify.Notifier
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("server"),
		genID:         p.GenID,
		clock:         p.Clock,
		guard:         p.Guard,
		metrics:       p.Metrics,
		catalog:       p.Catalog,
		workspaceSvc:  p.WorkspaceSvc,
		usageSvc:      p.UsageSvc,
		generationSvc: p.GenerationSvc,
		campaignSvc:   p.CampaignSvc,
		paymentSvc:    p.PaymentSvc,
		llmClient:     p.LLMClient,
		ragClient:     p.RAGClient,
		notifier:      p.Notifier,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.GlobalRateLimit())
	api.Use(s.IdentityRequired())

	api.GET("/status", s.getStatus)

	api.POST("/workspaces", s.createWorkspace)
	api.GET("/workspaces", s.listWorkspaces)
	api.GET("/workspaces/:workspace_id", s.getWorkspace)
	api.GET("/workspaces/:workspace_id/usage", s.listUsage)

	api.POST("/workspaces/:workspace_id/products/generate", s.generateProduct)
	api.GET("/workspaces/:workspace_id/products", s.listProducts)
	api.GET("/workspaces/:workspace_id/products/:product_id", s.getProduct)
	api.DELETE("/workspaces/:workspace_id/products/:product_id", s.deleteProduct)

	api.POST("/workspaces/:workspace_id/campaigns/generate", s.generateCampaign)
	api.GET("/workspaces/:workspace_id/campaigns", s.listCampaigns)
	api.GET("/workspaces/:workspace_id/campaigns/:campaign_id", s.getCampaign)
	api.GET("/workspaces/:workspace_id/campaigns/:campaign_id/export", s.exportCampaign)

	api.GET("/billing/plans", s.listPlans)
	api.POST("/billing/checkout/stripe", s.checkoutStripe)
	api.POST("/billing/checkout/paypal", s.checkoutPayPal)
	api.POST("/billing/confirm/stripe", s.confirmStripe)
	api.POST("/billing/confirm/paypal", s.confirmPayPal)
	api.GET("/billing/history", s.paymentHistory)
}

// Webhook deliveries authenticate with the provider signature, not a user
// identity, and must not consume the caller's rate budget.
func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/stripe", s.stripeWebhook)
}
