package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/noxloop/digiforge/internal/campaign"
	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/config"
	"github.com/noxloop/digiforge/internal/generation"
	"github.com/noxloop/digiforge/internal/guard"
	"github.com/noxloop/digiforge/internal/llm"
	"github.com/noxloop/digiforge/internal/logger"
	"github.com/noxloop/digiforge/internal/metrics"
	"github.com/noxloop/digiforge/internal/migration"
	"github.com/noxloop/digiforge/internal/notify"
	"github.com/noxloop/digiforge/internal/payments"
	"github.com/noxloop/digiforge/internal/plan"
	"github.com/noxloop/digiforge/internal/providers/email"
	"github.com/noxloop/digiforge/internal/rag"
	"github.com/noxloop/digiforge/internal/server"
	"github.com/noxloop/digiforge/internal/usage"
	"github.com/noxloop/digiforge/internal/workspace"
	"github.com/noxloop/digiforge/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		clock.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		// Collaborators
		llm.Module,
		rag.Module,
		notify.Module,
		email.Module,

		// Functional domains
		guard.Module,
		plan.Module,
		workspace.Module,
		usage.Module,
		generation.Module,
		campaign.Module,
		payments.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
