package workspace

import (
	"go.uber.org/fx"

	"github.com/noxloop/digiforge/internal/workspace/repository"
	"github.com/noxloop/digiforge/internal/workspace/service"
)

var Module = fx.Module("workspace",
	fx.Provide(
		repository.New,
		service.NewService,
	),
)
