package penalty

import "go.uber.org/fx"

var Module = fx.Module("penalty",
	fx.Provide(NewCalculator),
)
