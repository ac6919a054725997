package migration_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noxloop/digiforge/internal/migration"
	paymentsdomain "github.com/noxloop/digiforge/internal/payments/domain"
	workspacedomain "github.com/noxloop/digiforge/internal/workspace/domain"
)

func TestBuildSchemaOnSqlite(t *testing.T) {
	dsn := fmt.Sprintf("file:memdb_schema_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, migration.BuildSchema(db))

	ws := &workspacedomain.Workspace{
		ID:        1,
		Name:      "acme",
		OwnerID:   "user-1",
		Plan:      "free",
		Credits:   10,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(ws).Error)

	payment := &paymentsdomain.PaymentTransaction{
		ID:         2,
		PublicID:   "pay_aaa",
		Provider:   "stripe",
		ProviderID: "cs_1",
		UserID:     "user-1",
		PlanID:     "starter",
		Credits:    50,
		Status:     "completed",
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, db.Create(payment).Error)

	// The (provider, provider_id) idempotency key must survive the gorm
	// schema path too.
	dup := *payment
	dup.ID = 3
	dup.PublicID = "pay_bbb"
	assert.Error(t, db.Create(&dup).Error)

	var count int64
	require.NoError(t, db.Model(&paymentsdomain.PaymentTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
