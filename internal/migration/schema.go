package migration

import (
	"gorm.io/gorm"

	campaigndomain "github.com/noxloop/digiforge/internal/campaign/domain"
	paymentsdomain "github.com/noxloop/digiforge/internal/payments/domain"
	productdomain "github.com/noxloop/digiforge/internal/product/domain"
	usagedomain "github.com/noxloop/digiforge/internal/usage/domain"
	workspacedomain "github.com/noxloop/digiforge/internal/workspace/domain"
)

// BuildSchema creates the schema through gorm for drivers the versioned SQL
// migrations do not target (sqlite local runs). Postgres deployments apply
// the embedded migrations instead.
func BuildSchema(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&workspacedomain.Workspace{},
		&usagedomain.UsageRecord{},
		&productdomain.Product{},
		&campaigndomain.Campaign{},
		&paymentsdomain.PaymentTransaction{},
		&paymentsdomain.WebhookEvent{},
	)
}
