package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noxloop/digiforge/internal/plan"
)

func TestCatalogLookup(t *testing.T) {
	c := plan.NewCatalog()

	p, err := c.Get(plan.Starter)
	require.NoError(t, err)
	assert.Equal(t, "Starter", p.Name)
	assert.Equal(t, int64(999), p.PriceCents)
	assert.Equal(t, int64(50), p.CreditsMonthly)
	assert.Equal(t, "eur", p.Currency)

	_, err = c.Get("platinum")
	assert.ErrorIs(t, err, plan.ErrUnknownPlan)
}

func TestCatalogListIsStableAndCopied(t *testing.T) {
	c := plan.NewCatalog()

	plans := c.List()
	require.Len(t, plans, 4)
	assert.Equal(t, plan.Free, plans[0].ID)
	assert.Equal(t, plan.Starter, plans[1].ID)
	assert.Equal(t, plan.Pro, plans[2].ID)
	assert.Equal(t, plan.Enterprise, plans[3].ID)

	plans[0].Name = "mutated"
	again := c.List()
	assert.Equal(t, "Free", again[0].Name)
}

func TestPurchasable(t *testing.T) {
	c := plan.NewCatalog()

	assert.False(t, c.Purchasable(plan.Free))
	assert.True(t, c.Purchasable(plan.Starter))
	assert.True(t, c.Purchasable(plan.Enterprise))
	assert.False(t, c.Purchasable("platinum"))
}

func TestMonthlyCreditsGrowWithTier(t *testing.T) {
	c := plan.NewCatalog()

	var prev int64 = -1
	for _, p := range c.List() {
		assert.Greater(t, p.CreditsMonthly, prev, "plan %s", p.ID)
		prev = p.CreditsMonthly
	}
}
