package blocking

import (
	"go.uber.org/fx"

	"github.com/voxloop/trialguard/internal/app/service/trial"
)

// Module exposes the blocking adapter via Fx, including its binding to the
// trial engine's NumberBlocker port.
var Module = fx.Options(
	fx.Provide(NewGormNumberStore),
	fx.Provide(NewService),
	fx.Provide(func(s *Service) trial.NumberBlocker { return s }),
)
