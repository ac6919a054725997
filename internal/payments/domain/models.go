// Package domain defines payment reconciliation: transactions keyed by the
// provider's own identifier, webhook events keyed by their event id, and the
// exactly-once grant invariant both enforce.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

var (
	ErrNotCompleted        = errors.New("payment_not_completed")
	ErrInvalidSignature    = errors.New("invalid_signature")
	ErrProviderDisabled    = errors.New("provider_disabled")
	ErrProviderUnavailable = errors.New("provider_unavailable")
	ErrNotFound            = errors.New("payment_not_found")
	ErrDuplicate           = errors.New("duplicate_payment")
)

// PaymentTransaction records one reconciled provider transaction. The unique
// (provider, provider_id) pair is the idempotency key: at most one grant is
// ever applied per provider transaction.
type PaymentTransaction struct {
	ID          snowflake.ID  `json:"-" gorm:"primaryKey"`
	PublicID    string        `json:"payment_id" gorm:"type:text;not null;uniqueIndex"`
	Provider    string        `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payments_provider_id,priority:1"`
	ProviderID  string        `json:"provider_id" gorm:"type:text;not null;uniqueIndex:ux_payments_provider_id,priority:2"`
	UserID      string        `json:"user_id" gorm:"type:text;not null;index"`
	WorkspaceID *snowflake.ID `json:"workspace_id,omitempty"`
	PlanID      string        `json:"plan_id" gorm:"type:text;not null"`
	AmountCents int64         `json:"amount_cents" gorm:"not null"`
	Credits     int64         `json:"credits" gorm:"not null"`
	Status      string        `json:"status" gorm:"type:text;not null"`
	ViaWebhook  bool          `json:"via_webhook" gorm:"not null;default:false"`
	CreatedAt   time.Time     `json:"created_at" gorm:"not null"`
}

func (PaymentTransaction) TableName() string { return "payments" }

// WebhookEvent marks a processed webhook delivery. Insertion happens in the
// same transaction as the grant, so a replayed delivery is a pure no-op.
type WebhookEvent struct {
	ID          snowflake.ID `json:"-" gorm:"primaryKey"`
	EventID     string       `json:"event_id" gorm:"type:text;not null;uniqueIndex"`
	EventType   string       `json:"event_type" gorm:"type:text;not null"`
	ProcessedAt time.Time    `json:"processed_at" gorm:"not null"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

// CheckoutParams feeds provider checkout creation.
type CheckoutParams struct {
	UserID     string
	Email      string
	PlanID     string
	PlanName   string
	PriceCents int64
	Credits    int64
	SuccessURL string
	CancelURL  string
}

// Checkout is the provider redirect handed back to the caller.
type Checkout struct {
	URL        string `json:"url"`
	ProviderID string `json:"provider_id"`
	Provider   string `json:"provider"`
}

// SessionDetails is the authoritative state fetched from provider A.
type SessionDetails struct {
	ID            string
	PaymentStatus string
	CustomerEmail string
	AmountCents   int64
	Metadata      map[string]string
}

// CaptureResult is the authoritative capture outcome from provider B,
// including the identity fields unpacked from the order's custom id.
type CaptureResult struct {
	OrderID     string
	Status      string
	PayerEmail  string
	AmountCents int64
	UserID      string
	PlanID      string
	Credits     int64
}

// WebhookEventPayload is a verified, parsed provider A event.
type WebhookEventPayload struct {
	EventID     string
	EventType   string
	SessionID   string
	AmountCents int64
	Metadata    map[string]string
}

type StripeClient interface {
	Enabled() bool
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Checkout, error)
	GetSession(ctx context.Context, sessionID string) (*SessionDetails, error)
	// VerifyWebhook checks the signature header against the payload and
	// returns ErrInvalidSignature on any mismatch.
	VerifyWebhook(payload []byte, signatureHeader string) error
	ParseEvent(payload []byte) (*WebhookEventPayload, error)
}

type PayPalClient interface {
	Enabled() bool
	CreateOrder(ctx context.Context, p CheckoutParams) (*Checkout, error)
	GetOrder(ctx context.Context, orderID string) (*OrderDetails, error)
	CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error)
}

// OrderDetails is a provider B order as reported by order retrieval.
type OrderDetails struct {
	OrderID     string
	Status      string
	PayerEmail  string
	UserID      string
	PlanID      string
	Credits     int64
	AmountCents int64
}

// ConfirmResult is returned by every reconciliation path. A duplicate
// submission reports the previously recorded outcome, not an error.
type ConfirmResult struct {
	Status  string `json:"status"`
	PlanID  string `json:"plan"`
	Credits int64  `json:"credits"`
}

const (
	ConfirmStatusSuccess          = "success"
	ConfirmStatusAlreadyProcessed = "already_processed"
	ConfirmStatusIgnored          = "ignored"
)

type ProviderStatus struct {
	StripeEnabled bool   `json:"stripe_enabled"`
	PayPalEnabled bool   `json:"paypal_enabled"`
	PayPalMode    string `json:"paypal_mode,omitempty"`
}

type Service interface {
	CheckoutStripe(ctx context.Context, userID, email, planID, originURL string) (*Checkout, error)
	CheckoutPayPal(ctx context.Context, userID, planID, originURL string) (*Checkout, error)
	ConfirmStripe(ctx context.Context, userID, email, name, sessionID string) (*ConfirmResult, error)
	ConfirmPayPal(ctx context.Context, userID, email, name, orderID string) (*ConfirmResult, error)
	// HandleStripeWebhook verifies, records, and reconciles one delivery.
	HandleStripeWebhook(ctx context.Context, payload []byte, signatureHeader string) (*ConfirmResult, error)
	History(ctx context.Context, userID string) ([]PaymentTransaction, error)
	Status() ProviderStatus
}

type Repository interface {
	FindByProviderID(ctx context.Context, db *gorm.DB, provider, providerID string) (*PaymentTransaction, error)
	InsertPayment(ctx context.Context, db *gorm.DB, p *PaymentTransaction) error
	ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]PaymentTransaction, error)
	// InsertEvent records a webhook event id; reports false when the id was
	// already present.
	InsertEvent(ctx context.Context, db *gorm.DB, e *WebhookEvent) (bool, error)
}
