package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/noxloop/digiforge/internal/config"
	"github.com/noxloop/digiforge/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else if err := BuildSchema(conn); err != nil {
			return err
		}

		if cfg.SeedDemoWorkspace {
			return seed.EnsureDemoWorkspace(conn)
		}
		return nil
	}),
)
