package campaign

import (
	"go.uber.org/fx"

	"github.com/noxloop/digiforge/internal/campaign/repository"
	"github.com/noxloop/digiforge/internal/campaign/service"
)

var Module = fx.Module("campaign",
	fx.Provide(
		repository.New,
		service.NewService,
	),
)
