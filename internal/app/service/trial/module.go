package trial

import "go.uber.org/fx"

// Module exposes the trial engine via Fx.
var Module = fx.Options(
	fx.Provide(NewGormStore),
	fx.Provide(NewService),
)
