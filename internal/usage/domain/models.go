// Package domain defines the append-only usage trail. Records are written
// after a successful charge and never updated or deleted.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionGeneration         = "generation"
	ActionCampaignGeneration = "campaign_generation"
	ActionExport             = "export"
)

type UsageRecord struct {
	ID          snowflake.ID   `json:"usage_id" gorm:"primaryKey"`
	WorkspaceID snowflake.ID   `json:"workspace_id" gorm:"not null;index"`
	UserID      string         `json:"user_id" gorm:"type:text;not null"`
	Action      string         `json:"action" gorm:"type:text;not null"`
	Credits     int64          `json:"credits_used" gorm:"not null"`
	Metadata    datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null"`
}

func (UsageRecord) TableName() string { return "usage_records" }

type Service interface {
	Record(ctx context.Context, workspaceID snowflake.ID, userID, action string, credits int64, metadata map[string]any) error
	ListByWorkspace(ctx context.Context, workspaceID snowflake.ID, limit int) ([]UsageRecord, error)
	// TotalSince sums credits recorded for a workspace at or after the cutoff.
	TotalSince(ctx context.Context, workspaceID snowflake.ID, since time.Time) (int64, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rec *UsageRecord) error
	ListByWorkspace(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID, limit int) ([]UsageRecord, error)
	SumSince(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID, since time.Time) (int64, error)
}
