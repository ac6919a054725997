package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/config"
	"github.com/noxloop/digiforge/internal/metrics"
	"github.com/noxloop/digiforge/internal/notify"
	"github.com/noxloop/digiforge/internal/payments/domain"
	"github.com/noxloop/digiforge/internal/plan"
	"github.com/noxloop/digiforge/internal/providers/email"
	workspacedomain "github.com/noxloop/digiforge/internal/workspace/domain"
	"github.com/noxloop/digiforge/pkg/ident"
)

// Fallbacks applied when provider metadata is missing or unparseable.
const (
	defaultPlanID  = "starter"
	defaultCredits = 50
)

const historyLimit = 50

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Catalog    *plan.Catalog
	Repo       domain.Repository
	Workspaces workspacedomain.Service
	Stripe     domain.StripeClient
	PayPal     domain.PayPalClient
	Mailer     *email.Mailer
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
}

type paymentService struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.Config
	catalog    *plan.Catalog
	repo       domain.Repository
	workspaces workspacedomain.Service
	stripe     domain.StripeClient
	paypal     domain.PayPalClient
	mailer     *email.Mailer
	notifier   notify.Notifier
	metrics    *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &paymentService{
		db:         p.DB,
		log:        p.Log.Named("payments.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Config,
		catalog:    p.Catalog,
		repo:       p.Repo,
		workspaces: p.Workspaces,
		stripe:     p.Stripe,
		paypal:     p.PayPal,
		mailer:     p.Mailer,
		notifier:   p.Notifier,
		metrics:    p.Metrics,
	}
}

func (s *paymentService) checkoutParams(userID, email, planID, originURL string) (domain.CheckoutParams, error) {
	selected, err := s.catalog.Get(planID)
	if err != nil {
		return domain.CheckoutParams{}, err
	}
	if !s.catalog.Purchasable(planID) {
		return domain.CheckoutParams{}, plan.ErrNotPurchasable
	}

	origin := strings.TrimRight(originURL, "/")
	if origin == "" {
		origin = s.cfg.FrontendURL
	}

	return domain.CheckoutParams{
		UserID:     userID,
		Email:      email,
		PlanID:     selected.ID,
		PlanName:   selected.Name,
		PriceCents: selected.PriceCents,
		Credits:    selected.CreditsMonthly,
		SuccessURL: origin + "/settings?payment=success",
		CancelURL:  origin + "/settings?payment=cancelled",
	}, nil
}

func (s *paymentService) CheckoutStripe(ctx context.Context, userID, email, planID, originURL string) (*domain.Checkout, error) {
	params, err := s.checkoutParams(userID, email, planID, originURL)
	if err != nil {
		return nil, err
	}

	checkout, err := s.stripe.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, err
	}

	s.log.Info("stripe checkout created",
		zap.String("user_id", userID),
		zap.String("plan_id", planID),
		zap.String("session_id", checkout.ProviderID),
	)
	return checkout, nil
}

func (s *paymentService) CheckoutPayPal(ctx context.Context, userID, planID, originURL string) (*domain.Checkout, error) {
	params, err := s.checkoutParams(userID, "", planID, originURL)
	if err != nil {
		return nil, err
	}

	checkout, err := s.paypal.CreateOrder(ctx, params)
	if err != nil {
		return nil, err
	}

	s.log.Info("paypal order created",
		zap.String("user_id", userID),
		zap.String("plan_id", planID),
		zap.String("order_id", checkout.ProviderID),
	)
	return checkout, nil
}

// grant applies plan + credits to the user's primary workspace and records the
// payment, all inside tx. The duplicate check runs inside the same transaction
// so two racing confirmations cannot both grant.
func (s *paymentService) grant(ctx context.Context, tx *gorm.DB, payment *domain.PaymentTransaction) (*domain.ConfirmResult, error) {
	existing, err := s.repo.FindByProviderID(ctx, tx, payment.Provider, payment.ProviderID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return &domain.ConfirmResult{
			Status:  domain.ConfirmStatusAlreadyProcessed,
			PlanID:  existing.PlanID,
			Credits: existing.Credits,
		}, nil
	}

	workspace, err := s.workspaces.PrimaryForUser(ctx, payment.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace for user %s: %w", payment.UserID, err)
	}
	if err := s.workspaces.ActivatePlan(ctx, tx, workspace.ID, payment.PlanID, payment.Credits); err != nil {
		return nil, err
	}

	workspaceID := workspace.ID
	payment.WorkspaceID = &workspaceID
	if err := s.repo.InsertPayment(ctx, tx, payment); err != nil {
		return nil, err
	}

	return &domain.ConfirmResult{
		Status:  domain.ConfirmStatusSuccess,
		PlanID:  payment.PlanID,
		Credits: payment.Credits,
	}, nil
}

func (s *paymentService) ConfirmStripe(ctx context.Context, userID, email, name, sessionID string) (*domain.ConfirmResult, error) {
	session, err := s.stripe.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.PaymentStatus != "paid" {
		return nil, fmt.Errorf("%w: status %q", domain.ErrNotCompleted, session.PaymentStatus)
	}

	planID, credits := s.resolveGrant(session.Metadata["plan_id"], session.Metadata["credits"])

	payment := &domain.PaymentTransaction{
		ID:          s.genID.Generate(),
		PublicID:    ident.PublicID("pay_"),
		Provider:    domain.ProviderStripe,
		ProviderID:  session.ID,
		UserID:      userID,
		PlanID:      planID,
		AmountCents: session.AmountCents,
		Credits:     credits,
		Status:      domain.StatusCompleted,
		CreatedAt:   s.clock.Now(),
	}

	result, err := s.confirmGrant(ctx, payment)
	if err != nil {
		return nil, err
	}

	if result.Status == domain.ConfirmStatusSuccess {
		s.afterGrant(ctx, payment, email, name)
	}
	return result, nil
}

// confirmGrant runs grant in its own transaction. When a concurrent
// confirmation commits between the in-tx duplicate check and the insert, the
// loser's transaction rolls back on the (provider, provider_id) constraint;
// the committed row is then re-read and reported as already processed.
func (s *paymentService) confirmGrant(ctx context.Context, payment *domain.PaymentTransaction) (*domain.ConfirmResult, error) {
	var result *domain.ConfirmResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.grant(ctx, tx, payment)
		return err
	})
	if errors.Is(err, domain.ErrDuplicate) {
		return s.recordedOutcome(ctx, payment.Provider, payment.ProviderID)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// recordedOutcome reports the committed grant for a provider transaction.
func (s *paymentService) recordedOutcome(ctx context.Context, provider, providerID string) (*domain.ConfirmResult, error) {
	existing, err := s.repo.FindByProviderID(ctx, s.db, provider, providerID)
	if err != nil {
		return nil, err
	}
	return &domain.ConfirmResult{
		Status:  domain.ConfirmStatusAlreadyProcessed,
		PlanID:  existing.PlanID,
		Credits: existing.Credits,
	}, nil
}

func (s *paymentService) ConfirmPayPal(ctx context.Context, userID, email, name, orderID string) (*domain.ConfirmResult, error) {
	// Check before capturing so a replayed confirmation does not hit the
	// capture endpoint a second time.
	existing, err := s.repo.FindByProviderID(ctx, s.db, domain.ProviderPayPal, orderID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return &domain.ConfirmResult{
			Status:  domain.ConfirmStatusAlreadyProcessed,
			PlanID:  existing.PlanID,
			Credits: existing.Credits,
		}, nil
	}

	capture, err := s.paypal.CaptureOrder(ctx, orderID)
	if err != nil {
		// A crash between capture and grant on a previous attempt leaves the
		// order captured but unrecorded, and the provider rejects a second
		// capture. Order retrieval recovers the grant in that case.
		order, getErr := s.paypal.GetOrder(ctx, orderID)
		if getErr != nil || order.Status != "COMPLETED" {
			return nil, err
		}
		s.log.Info("recovered captured order via retrieval", zap.String("order_id", orderID))
		capture = &domain.CaptureResult{
			OrderID:     order.OrderID,
			Status:      order.Status,
			PayerEmail:  order.PayerEmail,
			AmountCents: order.AmountCents,
			UserID:      order.UserID,
			PlanID:      order.PlanID,
			Credits:     order.Credits,
		}
	}
	if capture.Status != "COMPLETED" {
		return nil, fmt.Errorf("%w: status %q", domain.ErrNotCompleted, capture.Status)
	}

	planID := capture.PlanID
	if planID == "" {
		planID = defaultPlanID
	}
	credits := capture.Credits
	if credits <= 0 {
		credits = s.planCredits(planID)
	}

	payment := &domain.PaymentTransaction{
		ID:          s.genID.Generate(),
		PublicID:    ident.PublicID("pay_"),
		Provider:    domain.ProviderPayPal,
		ProviderID:  capture.OrderID,
		UserID:      userID,
		PlanID:      planID,
		AmountCents: capture.AmountCents,
		Credits:     credits,
		Status:      domain.StatusCompleted,
		CreatedAt:   s.clock.Now(),
	}

	result, err := s.confirmGrant(ctx, payment)
	if err != nil {
		return nil, err
	}

	if result.Status == domain.ConfirmStatusSuccess {
		s.afterGrant(ctx, payment, email, name)
	}
	return result, nil
}

func (s *paymentService) HandleStripeWebhook(ctx context.Context, payload []byte, signatureHeader string) (*domain.ConfirmResult, error) {
	if err := s.stripe.VerifyWebhook(payload, signatureHeader); err != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues("invalid_signature").Inc()
		return nil, err
	}

	event, err := s.stripe.ParseEvent(payload)
	if err != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	if event.EventType != "checkout.session.completed" {
		s.metrics.WebhookEventsTotal.WithLabelValues("ignored").Inc()
		return &domain.ConfirmResult{Status: domain.ConfirmStatusIgnored}, nil
	}

	userID := event.Metadata["user_id"]
	planID, credits := s.resolveGrant(event.Metadata["plan_id"], event.Metadata["credits"])

	payment := &domain.PaymentTransaction{
		ID:          s.genID.Generate(),
		PublicID:    ident.PublicID("pay_"),
		Provider:    domain.ProviderStripe,
		ProviderID:  event.SessionID,
		UserID:      userID,
		PlanID:      planID,
		AmountCents: event.AmountCents,
		Credits:     credits,
		Status:      domain.StatusCompleted,
		ViaWebhook:  true,
		CreatedAt:   s.clock.Now(),
	}

	var result *domain.ConfirmResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertEvent(ctx, tx, &domain.WebhookEvent{
			ID:          s.genID.Generate(),
			EventID:     event.EventID,
			EventType:   event.EventType,
			ProcessedAt: s.clock.Now(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			result = &domain.ConfirmResult{Status: domain.ConfirmStatusAlreadyProcessed}
			return nil
		}

		if userID == "" {
			// Event is recorded so the delivery is not retried, but there is
			// nothing to grant without an owning user.
			s.log.Warn("webhook session without user metadata",
				zap.String("event_id", event.EventID),
				zap.String("session_id", event.SessionID),
			)
			result = &domain.ConfirmResult{Status: domain.ConfirmStatusIgnored}
			return nil
		}

		result, err = s.grant(ctx, tx, payment)
		return err
	})
	if errors.Is(err, domain.ErrDuplicate) {
		// A confirm call committed the grant while this delivery was in
		// flight. The event insert rolled back with the grant, so a retried
		// delivery lands in the duplicate branch above.
		s.metrics.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
		return s.recordedOutcome(ctx, payment.Provider, payment.ProviderID)
	}
	if err != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	switch result.Status {
	case domain.ConfirmStatusSuccess:
		s.metrics.WebhookEventsTotal.WithLabelValues("processed").Inc()
		s.afterGrant(ctx, payment, "", "")
	case domain.ConfirmStatusAlreadyProcessed:
		s.metrics.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
	default:
		s.metrics.WebhookEventsTotal.WithLabelValues("ignored").Inc()
	}
	return result, nil
}

func (s *paymentService) History(ctx context.Context, userID string) ([]domain.PaymentTransaction, error) {
	return s.repo.ListByUser(ctx, s.db, userID, historyLimit)
}

func (s *paymentService) Status() domain.ProviderStatus {
	return domain.ProviderStatus{
		StripeEnabled: s.stripe.Enabled(),
		PayPalEnabled: s.paypal.Enabled(),
		PayPalMode:    s.cfg.PayPal.Mode,
	}
}

// afterGrant runs the non-transactional side effects of a successful grant.
// Failures here are logged by the collaborators themselves and never undo the
// payment.
func (s *paymentService) afterGrant(ctx context.Context, payment *domain.PaymentTransaction, toEmail, name string) {
	s.metrics.PaymentsTotal.WithLabelValues(payment.Provider).Inc()

	planName := payment.PlanID
	if p, err := s.catalog.Get(payment.PlanID); err == nil {
		planName = p.Name
	}
	if toEmail != "" {
		s.mailer.PaymentSuccess(ctx, toEmail, name, planName, payment.AmountCents, payment.Credits, payment.PublicID)
	}
	s.notifier.PaymentSucceeded(ctx, payment.PublicID, payment.UserID, payment.AmountCents, "eur", payment.PlanID)

	s.log.Info("payment reconciled",
		zap.String("payment_id", payment.PublicID),
		zap.String("provider", payment.Provider),
		zap.String("user_id", payment.UserID),
		zap.String("plan_id", payment.PlanID),
		zap.Int64("credits", payment.Credits),
		zap.Bool("via_webhook", payment.ViaWebhook),
	)
}

func (s *paymentService) resolveGrant(planMeta, creditsMeta string) (string, int64) {
	planID := planMeta
	if planID == "" {
		planID = defaultPlanID
	}
	credits, err := strconv.ParseInt(creditsMeta, 10, 64)
	if err != nil || credits <= 0 {
		credits = s.planCredits(planID)
	}
	return planID, credits
}

func (s *paymentService) planCredits(planID string) int64 {
	if p, err := s.catalog.Get(planID); err == nil {
		return p.CreditsMonthly
	}
	return defaultCredits
}
