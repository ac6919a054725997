// Package plan holds the static subscription catalog. Plans are code, not
// data: the set changes with a deploy, and checkout validates against this
// table before any provider round trip.
package plan

import (
	"errors"

	"go.uber.org/fx"
)

const (
	Free       = "free"
	Starter    = "starter"
	Pro        = "pro"
	Enterprise = "enterprise"
)

const (
	FeatureUnlimitedExports   = "unlimited_exports"
	FeaturePriorityGeneration = "priority_generation"
	FeatureCustomTemplates    = "custom_templates"
	FeatureAPIAccess          = "api_access"
	FeatureWhiteLabel         = "white_label"
	FeatureRAGAccess          = "rag_access"
)

var (
	ErrUnknownPlan    = errors.New("unknown_plan")
	ErrNotPurchasable = errors.New("plan_not_purchasable")
)

type Plan struct {
	ID             string   `json:"plan_id"`
	Name           string   `json:"name"`
	PriceCents     int64    `json:"price_cents"`
	Currency       string   `json:"currency"`
	CreditsMonthly int64    `json:"credits_monthly"`
	Features       []string `json:"features"`
	MaxWorkspaces  int      `json:"max_workspaces"`
	MaxMembers     int      `json:"max_members_per_workspace"`
}

// Catalog resolves plan IDs. Ordering of List is stable for API responses.
type Catalog struct {
	plans []Plan
	byID  map[string]Plan
}

func NewCatalog() *Catalog {
	plans := []Plan{
		{
			ID:             Free,
			Name:           "Free",
			PriceCents:     0,
			Currency:       "eur",
			CreditsMonthly: 10,
			Features:       []string{},
			MaxWorkspaces:  1,
			MaxMembers:     1,
		},
		{
			ID:             Starter,
			Name:           "Starter",
			PriceCents:     999,
			Currency:       "eur",
			CreditsMonthly: 50,
			Features:       []string{FeatureCustomTemplates},
			MaxWorkspaces:  3,
			MaxMembers:     3,
		},
		{
			ID:             Pro,
			Name:           "Pro",
			PriceCents:     2999,
			Currency:       "eur",
			CreditsMonthly: 200,
			Features: []string{
				FeatureUnlimitedExports,
				FeaturePriorityGeneration,
				FeatureCustomTemplates,
				FeatureRAGAccess,
			},
			MaxWorkspaces:  10,
			MaxMembers:     10,
		},
		{
			ID:             Enterprise,
			Name:           "Enterprise",
			PriceCents:     9999,
			Currency:       "eur",
			CreditsMonthly: 1000,
			Features: []string{
				FeatureUnlimitedExports,
				FeaturePriorityGeneration,
				FeatureCustomTemplates,
				FeatureAPIAccess,
				FeatureWhiteLabel,
				FeatureRAGAccess,
			},
			MaxWorkspaces:  100,
			MaxMembers:     100,
		},
	}

	byID := make(map[string]Plan, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
	}
	return &Catalog{plans: plans, byID: byID}
}

func (c *Catalog) Get(id string) (Plan, error) {
	p, ok := c.byID[id]
	if !ok {
		return Plan{}, ErrUnknownPlan
	}
	return p, nil
}

func (c *Catalog) List() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// Purchasable reports whether checkout may be started for the plan. The free
// tier is assigned, never bought.
func (c *Catalog) Purchasable(id string) bool {
	p, ok := c.byID[id]
	return ok && p.PriceCents > 0
}

var Module = fx.Module("plan",
	fx.Provide(NewCatalog),
)
