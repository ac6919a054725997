// Package domain defines campaign artifacts: a config snapshot plus five
// independently generated asset slots, always assembled even when individual
// slots fail to parse.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Cost is charged per assembled campaign.
const Cost = 3

const (
	SlotLandingCopy   = "landing_copy"
	SlotAdVariations  = "ad_variations"
	SlotCreativeIdeas = "creative_ideas"
	SlotEmailSequence = "email_sequence"
	SlotChecklist     = "checklist"
)

var ErrNotFound = errors.New("campaign_not_found")

// Config is the input snapshot embedded in the stored campaign.
type Config struct {
	Niche     string `json:"niche"`
	Product   string `json:"product"`
	Offer     string `json:"offer"`
	Price     string `json:"price"`
	Objective string `json:"objective"`
	Tone      string `json:"tone"`
	Channel   string `json:"channel"`
	Language  string `json:"language"`
}

// Assets holds the five slot values. LandingCopy is an object on success or
// an {error, raw} shape on parse failure; the four list slots are coerced to
// empty arrays whenever parsing does not yield an array.
type Assets struct {
	LandingCopy   any   `json:"landing_copy"`
	AdVariations  []any `json:"ad_variations"`
	CreativeIdeas []any `json:"creative_ideas"`
	EmailSequence []any `json:"email_sequence"`
	Checklist     []any `json:"checklist"`
}

type Campaign struct {
	ID          snowflake.ID   `json:"-" gorm:"primaryKey"`
	PublicID    string         `json:"campaign_id" gorm:"type:text;not null;uniqueIndex"`
	WorkspaceID snowflake.ID   `json:"workspace_id" gorm:"not null;index"`
	UserID      string         `json:"user_id" gorm:"type:text;not null"`
	Config      datatypes.JSON `json:"config" gorm:"type:jsonb"`
	Assets      datatypes.JSON `json:"assets" gorm:"type:jsonb"`
	RAGUsed     bool           `json:"rag_used" gorm:"column:rag_used;not null"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null"`
}

func (Campaign) TableName() string { return "campaigns" }

type Request struct {
	WorkspaceID snowflake.ID `json:"-"`
	UserID      string       `json:"-"`
	Niche       string       `json:"niche" binding:"required"`
	Product     string       `json:"product" binding:"required"`
	Offer       string       `json:"offer" binding:"required"`
	Price       string       `json:"price"`
	Objective   string       `json:"objective"`
	Tone        string       `json:"tone"`
	Channel     string       `json:"channel" binding:"required"`
	Language    string       `json:"language"`
	UseRAG      *bool        `json:"use_rag"`
}

// Export is a packaged campaign bundle.
type Export struct {
	ExportID string
	Filename string
	Archive  []byte
}

type Service interface {
	Generate(ctx context.Context, req Request) (*Campaign, error)
	List(ctx context.Context, workspaceID snowflake.ID) ([]Campaign, error)
	Get(ctx context.Context, workspaceID snowflake.ID, campaignID string) (*Campaign, error)
	// ExportArchive renders the campaign into a zip: campaign.json plus one
	// markdown document per slot. File membership is deterministic.
	ExportArchive(ctx context.Context, workspaceID snowflake.ID, campaignID string) (*Export, error)
}
