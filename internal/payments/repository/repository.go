package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/noxloop/digiforge/internal/payments/domain"
)

type repository struct{}

func New() domain.Repository { return &repository{} }

func (r *repository) FindByProviderID(ctx context.Context, db *gorm.DB, provider, providerID string) (*domain.PaymentTransaction, error) {
	var payment domain.PaymentTransaction
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_id = ?", provider, providerID).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// InsertPayment returns ErrDuplicate when (provider, provider_id) is already
// recorded, so a confirmation that loses a race to a concurrent one can report
// the committed outcome instead of an error.
func (r *repository) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.PaymentTransaction) error {
	err := db.WithContext(ctx).Create(payment).Error
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	return err
}

// isUniqueViolation matches the constraint errors of the drivers in use:
// gorm's translated form, postgres SQLSTATE 23505, and sqlite's message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

func (r *repository) ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.PaymentTransaction, error) {
	var payments []domain.PaymentTransaction
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// InsertEvent records a webhook event once. A false return means the event id
// was already on file and the caller must treat the delivery as a duplicate.
func (r *repository) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) (bool, error) {
	result := db.WithContext(ctx).Exec(`
		INSERT INTO webhook_events (id, event_id, event_type, processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING
	`, event.ID, event.EventID, event.EventType, event.ProcessedAt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
