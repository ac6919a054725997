// Package domain defines generated product artifacts and their store.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	TypeEbook    = "ebook"
	TypeGuide    = "guide"
	TypeCourse   = "course"
	TypeTemplate = "template"
)

var ErrNotFound = errors.New("product_not_found")

// Product is one generated piece of content. PublicID is the external handle
// ("prod_" prefix); the snowflake ID stays internal to the database.
type Product struct {
	ID             snowflake.ID `json:"-" gorm:"primaryKey"`
	PublicID       string       `json:"product_id" gorm:"type:text;not null;uniqueIndex"`
	WorkspaceID    snowflake.ID `json:"workspace_id" gorm:"not null;index"`
	UserID         string       `json:"user_id" gorm:"type:text;not null"`
	Title          string       `json:"title" gorm:"type:text;not null"`
	Description    string       `json:"description" gorm:"type:text"`
	ProductType    string       `json:"product_type" gorm:"type:text;not null"`
	Topic          string       `json:"topic" gorm:"type:text;not null"`
	TargetAudience string       `json:"target_audience" gorm:"type:text"`
	Tone           string       `json:"tone" gorm:"type:text"`
	Language       string       `json:"language" gorm:"type:text"`
	Content        string       `json:"content" gorm:"type:text"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Product) error
	FindByPublicID(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID, publicID string) (*Product, error)
	ListByWorkspace(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID, limit int) ([]Product, error)
	DeleteByPublicID(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID, publicID string) (bool, error)
}
