// Package domain defines the credit-gated generation pipeline contract:
// guard passage, sufficiency, availability, generation, charge, usage trail.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	productdomain "github.com/noxloop/digiforge/internal/product/domain"
)

// ProductCost is charged per successful product generation.
const ProductCost = 5

var (
	ErrUnavailable = errors.New("generation_unavailable")
	ErrFailed      = errors.New("generation_failed")
)

type ProductRequest struct {
	WorkspaceID    snowflake.ID `json:"-"`
	UserID         string       `json:"-"`
	Title          string       `json:"title" binding:"required"`
	Description    string       `json:"description"`
	ProductType    string       `json:"product_type" binding:"required"`
	Topic          string       `json:"topic" binding:"required"`
	TargetAudience string       `json:"target_audience"`
	Tone           string       `json:"tone"`
	Language       string       `json:"language"`
}

type Service interface {
	GenerateProduct(ctx context.Context, req ProductRequest) (*productdomain.Product, error)
	ListProducts(ctx context.Context, workspaceID snowflake.ID) ([]productdomain.Product, error)
	GetProduct(ctx context.Context, workspaceID snowflake.ID, productID string) (*productdomain.Product, error)
	DeleteProduct(ctx context.Context, workspaceID snowflake.ID, productID string) error
}
