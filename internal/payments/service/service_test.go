package service_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/config"
	"github.com/noxloop/digiforge/internal/metrics"
	"github.com/noxloop/digiforge/internal/notify"
	"github.com/noxloop/digiforge/internal/payments/domain"
	"github.com/noxloop/digiforge/internal/payments/repository"
	"github.com/noxloop/digiforge/internal/payments/service"
	"github.com/noxloop/digiforge/internal/plan"
	"github.com/noxloop/digiforge/internal/providers/email"
	workspacedomain "github.com/noxloop/digiforge/internal/workspace/domain"
	workspacerepo "github.com/noxloop/digiforge/internal/workspace/repository"
	workspaceservice "github.com/noxloop/digiforge/internal/workspace/service"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE workspaces (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			plan TEXT NOT NULL,
			credits BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE payments (
			id BIGINT PRIMARY KEY,
			public_id TEXT NOT NULL UNIQUE,
			provider TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			workspace_id BIGINT,
			plan_id TEXT NOT NULL,
			amount_cents BIGINT NOT NULL,
			credits BIGINT NOT NULL,
			status TEXT NOT NULL,
			via_webhook BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			CONSTRAINT ux_payments_provider_id UNIQUE (provider, provider_id)
		)`,
		`CREATE TABLE webhook_events (
			id BIGINT PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			processed_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

type stubStripe struct {
	enabled   bool
	session   *domain.SessionDetails
	verifyErr error
	event     *domain.WebhookEventPayload
	parseErr  error
	checkout  *domain.Checkout
}

func (s *stubStripe) Enabled() bool { return s.enabled }

func (s *stubStripe) CreateCheckoutSession(ctx context.Context, p domain.CheckoutParams) (*domain.Checkout, error) {
	if s.checkout == nil {
		return nil, domain.ErrProviderDisabled
	}
	return s.checkout, nil
}

func (s *stubStripe) GetSession(ctx context.Context, sessionID string) (*domain.SessionDetails, error) {
	if s.session == nil {
		return nil, domain.ErrProviderUnavailable
	}
	return s.session, nil
}

func (s *stubStripe) VerifyWebhook(payload []byte, signatureHeader string) error {
	return s.verifyErr
}

func (s *stubStripe) ParseEvent(payload []byte) (*domain.WebhookEventPayload, error) {
	if s.parseErr != nil {
		return nil, s.parseErr
	}
	return s.event, nil
}

type stubPayPal struct {
	enabled       bool
	capture       *domain.CaptureResult
	order         *domain.OrderDetails
	checkout      *domain.Checkout
	captureCalls  int
	getOrderCalls int
}

func (s *stubPayPal) Enabled() bool { return s.enabled }

func (s *stubPayPal) CreateOrder(ctx context.Context, p domain.CheckoutParams) (*domain.Checkout, error) {
	if s.checkout == nil {
		return nil, domain.ErrProviderDisabled
	}
	return s.checkout, nil
}

func (s *stubPayPal) GetOrder(ctx context.Context, orderID string) (*domain.OrderDetails, error) {
	s.getOrderCalls++
	if s.order == nil {
		return nil, domain.ErrProviderUnavailable
	}
	return s.order, nil
}

func (s *stubPayPal) CaptureOrder(ctx context.Context, orderID string) (*domain.CaptureResult, error) {
	s.captureCalls++
	if s.capture == nil {
		return nil, domain.ErrProviderUnavailable
	}
	return s.capture, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Send(ctx context.Context, eventType string, payload map[string]any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
	return true
}

func (n *recordingNotifier) CampaignCreated(ctx context.Context, campaignID, workspaceID, userID, channel string) {
	n.Send(ctx, notify.EventCampaignCreated, nil)
}

func (n *recordingNotifier) ExportGenerated(ctx context.Context, exportID, workspaceID, userID, exportType string, sizeBytes int) {
	n.Send(ctx, notify.EventExportGenerated, nil)
}

func (n *recordingNotifier) PaymentSucceeded(ctx context.Context, paymentID, userID string, amountCents int64, currency, planID string) {
	n.Send(ctx, notify.EventPaymentSucceeded, nil)
}

func (n *recordingNotifier) Status() notify.Status { return notify.Status{} }

func (n *recordingNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e == eventType {
			total++
		}
	}
	return total
}

type fixture struct {
	svc        domain.Service
	workspaces workspacedomain.Service
	db         *gorm.DB
	stripe     *stubStripe
	paypal     *stubPayPal
	notifier   *recordingNotifier
	clock      *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithRepo(t, repository.New())
}

func newFixtureWithRepo(t *testing.T, repo domain.Repository) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	m := metrics.New()

	workspaces := workspaceservice.NewService(workspaceservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   clk,
		GenID:   node,
		Repo:    workspacerepo.New(),
		Metrics: m,
	})

	stripeStub := &stubStripe{enabled: true}
	paypalStub := &stubPayPal{enabled: true}
	notifier := &recordingNotifier{}

	cfg := config.Config{FrontendURL: "http://localhost:3000"}
	cfg.PayPal.Mode = "sandbox"

	svc := service.NewService(service.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Config:     cfg,
		Catalog:    plan.NewCatalog(),
		Repo:       repo,
		Workspaces: workspaces,
		Stripe:     stripeStub,
		PayPal:     paypalStub,
		Mailer:     email.NewMailerFromConfig(email.NoOpProvider{}, zap.NewNop(), clk),
		Notifier:   notifier,
		Metrics:    m,
	})

	return &fixture{
		svc:        svc,
		workspaces: workspaces,
		db:         db,
		stripe:     stripeStub,
		paypal:     paypalStub,
		notifier:   notifier,
		clock:      clk,
	}
}

func (f *fixture) seedWorkspace(t *testing.T, userID string) *workspacedomain.Workspace {
	t.Helper()
	ws, err := f.workspaces.Create(context.Background(), "acme", userID, "free", 10)
	require.NoError(t, err)
	return ws
}

func paidSession(id string, metadata map[string]string) *domain.SessionDetails {
	return &domain.SessionDetails{
		ID:            id,
		PaymentStatus: "paid",
		CustomerEmail: "buyer@example.com",
		AmountCents:   2999,
		Metadata:      metadata,
	}
}

func TestConfirmStripeGrantsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ws := f.seedWorkspace(t, "user-1")

	f.stripe.session = paidSession("cs_1", map[string]string{
		"user_id": "user-1", "plan_id": "pro", "credits": "200",
	})

	result, err := f.svc.ConfirmStripe(ctx, "user-1", "buyer@example.com", "Buyer", "cs_1")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmStatusSuccess, result.Status)
	assert.Equal(t, "pro", result.PlanID)
	assert.Equal(t, int64(200), result.Credits)

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "pro", got.Plan)
	assert.Equal(t, int64(210), got.Credits)

	// Replaying the confirmation must not grant again.
	again, err := f.svc.ConfirmStripe(ctx, "user-1", "buyer@example.com", "Buyer", "cs_1")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmStatusAlreadyProcessed, again.Status)

	got, err = f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(210), got.Credits)

	assert.Equal(t, 1, f.notifier.count(notify.EventPaymentSucceeded))
}

func TestConfirmStripeConcurrentGrantsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ws := f.seedWorkspace(t, "user-1")

	f.stripe.session = paidSession("cs_race", map[string]string{
		"user_id": "user-1", "plan_id": "starter", "credits": "50",
	})

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan string, attempts)
	wg.Add(attempts)
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			result, err := f.svc.ConfirmStripe(ctx, "user-1", "", "", "cs_race")
			errs <- err
			if err == nil {
				results <- result.Status
			}
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	// Every racer reports an outcome: one grants, the rest see the recorded
	// payment. None may surface an error.
	for err := range errs {
		require.NoError(t, err)
	}

	successes, duplicates := 0, 0
	for status := range results {
		switch status {
		case domain.ConfirmStatusSuccess:
			successes++
		case domain.ConfirmStatusAlreadyProcessed:
			duplicates++
		default:
			t.Fatalf("unexpected status %q", status)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, duplicates)

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.Credits)
}

func TestConfirmStripeRejectsUnpaidSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkspace(t, "user-1")

	f.stripe.session = &domain.SessionDetails{
		ID:            "cs_unpaid",
		PaymentStatus: "unpaid",
	}

	_, err := f.svc.ConfirmStripe(ctx, "user-1", "", "", "cs_unpaid")
	assert.ErrorIs(t, err, domain.ErrNotCompleted)

	var count int64
	require.NoError(t, f.db.Table("payments").Count(&count).Error)
	assert.Zero(t, count)
}

func TestConfirmStripeMetadataDefaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ws := f.seedWorkspace(t, "user-1")

	f.stripe.session = paidSession("cs_bare", map[string]string{})

	result, err := f.svc.ConfirmStripe(ctx, "user-1", "", "", "cs_bare")
	require.NoError(t, err)
	assert.Equal(t, "starter", result.PlanID)
	assert.Equal(t, int64(50), result.Credits)

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "starter", got.Plan)
	assert.Equal(t, int64(60), got.Credits)
}

func TestConfirmPayPalGrantsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ws := f.seedWorkspace(t, "user-1")

	f.paypal.capture = &domain.CaptureResult{
		OrderID:     "ORDER-1",
		Status:      "COMPLETED",
		PayerEmail:  "buyer@example.com",
		AmountCents: 999,
		UserID:      "user-1",
		PlanID:      "starter",
		Credits:     50,
	}

	result, err := f.svc.ConfirmPayPal(ctx, "user-1", "buyer@example.com", "Buyer", "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmStatusSuccess, result.Status)
	assert.Equal(t, 1, f.paypal.captureCalls)

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "starter", got.Plan)
	assert.Equal(t, int64(60), got.Credits)

	// A second confirmation short-circuits before the capture call.
	again, err := f.svc.ConfirmPayPal(ctx, "user-1", "", "", "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmStatusAlreadyProcessed, again.Status)
	assert.Equal(t, 1, f.paypal.captureCalls)
}

func TestConfirmPayPalRejectsIncompleteCapture(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkspace(t, "user-1")

	f.paypal.capture = &domain.CaptureResult{OrderID: "ORDER-2", Status: "PENDING"}

	_, err := f.svc.ConfirmPayPal(ctx, "user-1", "", "", "ORDER-2")
	assert.ErrorIs(t, err, domain.ErrNotCompleted)
}

func TestConfirmPayPalCustomIDFallbacks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ws := f.seedWorkspace(t, "user-1")

	// Capture carries no plan or credit segments at all.
	f.paypal.capture = &domain.CaptureResult{
		OrderID: "ORDER-3",
		Status:  "COMPLETED",
		UserID:  "user-1",
	}

	result, err := f.svc.ConfirmPayPal(ctx, "user-1", "", "", "ORDER-3")
	require.NoError(t, err)
	assert.Equal(t, "starter", result.PlanID)
	assert.Equal(t, int64(50), result.Credits)

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.Credits)
}

func completedEvent(eventID, sessionID string) *domain.WebhookEventPayload {
	return &domain.WebhookEventPayload{
		EventID:     eventID,
		EventType:   "checkout.session.completed",
		SessionID:   sessionID,
		AmountCents: 999,
		Metadata: map[string]string{
			"user_id": "user-1", "plan_id": "starter", "credits": "50",
		},
	}
}

func TestWebhookProcessesDeliveryOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ws := f.seedWorkspace(t, "user-1")

	f.stripe.event = completedEvent("evt_1", "cs_hook")

	result, err := f.svc.HandleStripeWebhook(ctx, []byte(`{}`), "t=1,v1=ok")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmStatusSuccess, result.Status)

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.Credits)

	var payment domain.PaymentTransaction
	require.NoError(t, f.db.Where("provider_id = ?", "cs_hook").First(&payment).Error)
	assert.True(t, payment.ViaWebhook)

	// Same event id delivered again: recorded once, granted once.
	again, err := f.svc.HandleStripeWebhook(ctx, []byte(`{}`), "t=1,v1=ok")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmStatusAlreadyProcessed, again.Status)

	got, err = f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.Credits)
}

func TestWebhookAfterConfirmDoesNotDoubleGrant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ws := f.seedWorkspace(t, "user-1")

	f.stripe.session = paidSession("cs_both", map[string]string{
		"user_id": "user-1", "plan_id": "starter", "credits": "50",
	})
	_, err := f.svc.ConfirmStripe(ctx, "user-1", "", "", "cs_both")
	require.NoError(t, err)

	// A fresh event id for the session the confirm path already settled.
	f.stripe.event = completedEvent("evt_fresh", "cs_both")
	result, err := f.svc.HandleStripeWebhook(ctx, []byte(`{}`), "t=1,v1=ok")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmStatusAlreadyProcessed, result.Status)

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.Credits)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkspace(t, "user-1")

	f.stripe.verifyErr = domain.ErrInvalidSignature
	f.stripe.event = completedEvent("evt_bad", "cs_bad")

	_, err := f.svc.HandleStripeWebhook(ctx, []byte(`{}`), "t=1,v1=bad")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	var events int64
	require.NoError(t, f.db.Table("webhook_events").Count(&events).Error)
	assert.Zero(t, events)
	var payments int64
	require.NoError(t, f.db.Table("payments").Count(&payments).Error)
	assert.Zero(t, payments)
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.stripe.event = &domain.WebhookEventPayload{
		EventID:   "evt_other",
		EventType: "invoice.paid",
	}

	result, err := f.svc.HandleStripeWebhook(ctx, []byte(`{}`), "t=1,v1=ok")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmStatusIgnored, result.Status)
}

func TestWebhookWithoutUserMetadataIsRecordedButNotGranted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ws := f.seedWorkspace(t, "user-1")

	event := completedEvent("evt_nouser", "cs_nouser")
	event.Metadata = map[string]string{}
	f.stripe.event = event

	result, err := f.svc.HandleStripeWebhook(ctx, []byte(`{}`), "t=1,v1=ok")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmStatusIgnored, result.Status)

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Credits)

	// The delivery itself is on file, so a replay is a duplicate.
	again, err := f.svc.HandleStripeWebhook(ctx, []byte(`{}`), "t=1,v1=ok")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmStatusAlreadyProcessed, again.Status)
}

func TestCheckoutValidatesPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CheckoutStripe(ctx, "user-1", "a@b.c", "platinum", "")
	assert.ErrorIs(t, err, plan.ErrUnknownPlan)

	_, err = f.svc.CheckoutStripe(ctx, "user-1", "a@b.c", "free", "")
	assert.ErrorIs(t, err, plan.ErrNotPurchasable)

	_, err = f.svc.CheckoutPayPal(ctx, "user-1", "free", "")
	assert.ErrorIs(t, err, plan.ErrNotPurchasable)

	f.stripe.checkout = &domain.Checkout{URL: "https://pay", ProviderID: "cs_ok", Provider: domain.ProviderStripe}
	checkout, err := f.svc.CheckoutStripe(ctx, "user-1", "a@b.c", "pro", "https://app.example.com")
	require.NoError(t, err)
	assert.Equal(t, "cs_ok", checkout.ProviderID)
}

func TestHistoryReturnsNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkspace(t, "user-1")

	f.stripe.session = paidSession("cs_h1", map[string]string{"user_id": "user-1", "plan_id": "starter", "credits": "50"})
	_, err := f.svc.ConfirmStripe(ctx, "user-1", "", "", "cs_h1")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.stripe.session = paidSession("cs_h2", map[string]string{"user_id": "user-1", "plan_id": "pro", "credits": "200"})
	_, err = f.svc.ConfirmStripe(ctx, "user-1", "", "", "cs_h2")
	require.NoError(t, err)

	history, err := f.svc.History(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "cs_h2", history[0].ProviderID)
	assert.Equal(t, "cs_h1", history[1].ProviderID)

	other, err := f.svc.History(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStatusReflectsProviderConfig(t *testing.T) {
	f := newFixture(t)
	status := f.svc.Status()
	assert.True(t, status.StripeEnabled)
	assert.True(t, status.PayPalEnabled)
	assert.Equal(t, "sandbox", status.PayPalMode)
}

// blindRepo hides existing payment rows from one duplicate check, mimicking a
// concurrent confirmation that commits after this transaction's check ran.
type blindRepo struct {
	domain.Repository
	blind atomic.Bool
}

func (r *blindRepo) FindByProviderID(ctx context.Context, db *gorm.DB, provider, providerID string) (*domain.PaymentTransaction, error) {
	if r.blind.CompareAndSwap(true, false) {
		return nil, domain.ErrNotFound
	}
	return r.Repository.FindByProviderID(ctx, db, provider, providerID)
}

func TestConfirmStripeLostInsertRaceReportsAlreadyProcessed(t *testing.T) {
	ctx := context.Background()
	repo := &blindRepo{Repository: repository.New()}
	f := newFixtureWithRepo(t, repo)
	ws := f.seedWorkspace(t, "user-1")

	f.stripe.session = paidSession("cs_lost", map[string]string{
		"user_id": "user-1", "plan_id": "starter", "credits": "50",
	})

	first, err := f.svc.ConfirmStripe(ctx, "user-1", "", "", "cs_lost")
	require.NoError(t, err)
	require.Equal(t, domain.ConfirmStatusSuccess, first.Status)

	// The loser's duplicate check misses the committed row; its insert then
	// hits the unique key and the whole grant rolls back. The caller still
	// gets the recorded outcome with the winner's plan and credits.
	repo.blind.Store(true)
	second, err := f.svc.ConfirmStripe(ctx, "user-1", "", "", "cs_lost")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmStatusAlreadyProcessed, second.Status)
	assert.Equal(t, "starter", second.PlanID)
	assert.Equal(t, int64(50), second.Credits)

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.Credits)
	assert.Equal(t, 1, f.notifier.count(notify.EventPaymentSucceeded))
}

func TestWebhookLostInsertRaceReportsAlreadyProcessed(t *testing.T) {
	ctx := context.Background()
	repo := &blindRepo{Repository: repository.New()}
	f := newFixtureWithRepo(t, repo)
	ws := f.seedWorkspace(t, "user-1")

	f.stripe.session = paidSession("cs_wh_lost", map[string]string{
		"user_id": "user-1", "plan_id": "starter", "credits": "50",
	})
	result, err := f.svc.ConfirmStripe(ctx, "user-1", "", "", "cs_wh_lost")
	require.NoError(t, err)
	require.Equal(t, domain.ConfirmStatusSuccess, result.Status)

	f.stripe.event = &domain.WebhookEventPayload{
		EventID:     "evt_lost",
		EventType:   "checkout.session.completed",
		SessionID:   "cs_wh_lost",
		AmountCents: 999,
		Metadata:    map[string]string{"user_id": "user-1", "plan_id": "starter", "credits": "50"},
	}

	repo.blind.Store(true)
	delivered, err := f.svc.HandleStripeWebhook(ctx, []byte("{}"), "sig")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmStatusAlreadyProcessed, delivered.Status)

	// The event insert rolled back with the failed grant, so a retried
	// delivery reconciles through the duplicate branch rather than this one.
	var events int64
	require.NoError(t, f.db.Table("webhook_events").Count(&events).Error)
	assert.Equal(t, int64(0), events)

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.Credits)
}

func TestInsertPaymentTranslatesUniqueViolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	repo := repository.New()

	payment := &domain.PaymentTransaction{
		ID:         1001,
		PublicID:   "pay_one",
		Provider:   domain.ProviderStripe,
		ProviderID: "cs_same",
		UserID:     "user-1",
		PlanID:     "starter",
		Credits:    50,
		Status:     domain.StatusCompleted,
		CreatedAt:  f.clock.Now(),
	}
	require.NoError(t, repo.InsertPayment(ctx, f.db, payment))

	dup := *payment
	dup.ID = 1002
	dup.PublicID = "pay_two"
	assert.ErrorIs(t, repo.InsertPayment(ctx, f.db, &dup), domain.ErrDuplicate)
}

func TestConfirmPayPalRecoversCapturedOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ws := f.seedWorkspace(t, "user-1")

	// Capture fails because the order was captured on a previous attempt that
	// crashed before recording the payment. Retrieval reports it COMPLETED.
	f.paypal.capture = nil
	f.paypal.order = &domain.OrderDetails{
		OrderID:     "ord_rec",
		Status:      "COMPLETED",
		PayerEmail:  "buyer@example.com",
		UserID:      "user-1",
		PlanID:      "pro",
		Credits:     200,
		AmountCents: 2999,
	}

	result, err := f.svc.ConfirmPayPal(ctx, "user-1", "buyer@example.com", "Buyer", "ord_rec")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmStatusSuccess, result.Status)
	assert.Equal(t, "pro", result.PlanID)
	assert.Equal(t, 1, f.paypal.getOrderCalls)

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(210), got.Credits)
}

func TestConfirmPayPalCaptureFailureWithoutCompletedOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkspace(t, "user-1")

	f.paypal.capture = nil
	f.paypal.order = &domain.OrderDetails{OrderID: "ord_open", Status: "CREATED"}

	_, err := f.svc.ConfirmPayPal(ctx, "user-1", "", "", "ord_open")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)

	var count int64
	require.NoError(t, f.db.Table("payments").Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
