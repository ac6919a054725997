// Package domain holds the workspace model and the credit ledger contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Workspace is the billing tenant. Credits is the single contended field:
// every mutation must be an atomic delta at the storage layer, never a
// read-modify-write in application code.
type Workspace struct {
	ID        snowflake.ID `json:"workspace_id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	OwnerID   string       `json:"owner_id" gorm:"type:text;not null;index"`
	Plan      string       `json:"plan" gorm:"type:text;not null"`
	Credits   int64        `json:"credits" gorm:"not null;default:0"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (Workspace) TableName() string { return "workspaces" }

var (
	ErrNotFound           = errors.New("workspace_not_found")
	ErrInsufficientCredit = errors.New("insufficient_credit")
	ErrInvalidAmount      = errors.New("invalid_amount")
)

type Service interface {
	Create(ctx context.Context, name, ownerID, plan string, credits int64) (*Workspace, error)
	Get(ctx context.Context, id snowflake.ID) (*Workspace, error)
	// PrimaryForUser resolves the workspace a payment grant lands in: the
	// oldest workspace owned by the user.
	PrimaryForUser(ctx context.Context, userID string) (*Workspace, error)
	ListForUser(ctx context.Context, userID string) ([]Workspace, error)

	// Sufficient reports whether the balance covers amount, along with the
	// current balance for error reporting.
	Sufficient(ctx context.Context, id snowflake.ID, amount int64) (bool, int64, error)
	// Charge decrements the balance only if it covers amount, in one
	// conditional statement. Returns ErrInsufficientCredit otherwise.
	Charge(ctx context.Context, id snowflake.ID, amount int64) error
	// Grant increments the balance unconditionally.
	Grant(ctx context.Context, id snowflake.ID, amount int64) error
	// ActivatePlan sets the plan and grants credits inside the caller's
	// transaction, so payment reconciliation commits the grant and the
	// transaction record atomically.
	ActivatePlan(ctx context.Context, tx *gorm.DB, id snowflake.ID, planID string, credits int64) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, ws *Workspace) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Workspace, error)
	FindOldestByOwner(ctx context.Context, db *gorm.DB, ownerID string) (*Workspace, error)
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID string) ([]Workspace, error)
	Balance(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	// DecrementIfSufficient applies `credits = credits - amount` guarded by
	// `credits >= amount`; reports whether a row was updated.
	DecrementIfSufficient(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error)
	Increment(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) error
	SetPlanAndIncrement(ctx context.Context, db *gorm.DB, id snowflake.ID, planID string, amount int64) error
}
