package rate

import (
	"github.com/landgov/parcelledger/internal/rate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rate",
	fx.Provide(
		service.NewService,
		func(s *service.Service) service.Resolver { return s },
	),
)
