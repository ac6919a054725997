// Package seed bootstraps a demo workspace for local and self-hosted setups
// so the Studio is usable immediately after first start.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	workspacedomain "github.com/noxloop/digiforge/internal/workspace/domain"
)

const (
	demoWorkspaceName = "Demo Workspace"
	demoOwnerID       = "demo@digiforge.local"
	demoPlan          = "free"
	demoCredits       = 10
)

// EnsureDemoWorkspace creates the demo workspace if the owner has none yet.
// It is safe to run on every startup.
func EnsureDemoWorkspace(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&workspacedomain.Workspace{}).
			Where("owner_id = ?", demoOwnerID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		return tx.Create(&workspacedomain.Workspace{
			ID:        node.Generate(),
			Name:      demoWorkspaceName,
			OwnerID:   demoOwnerID,
			Plan:      demoPlan,
			Credits:   demoCredits,
			CreatedAt: time.Now().UTC(),
		}).Error
	})
}
