package leaderboard

import (
	"smallbiznis-challenge/pkg/httpapi"
	"smallbiznis-challenge/services/submission"

	"go.uber.org/fx"
)

var Module = fx.Module("leaderboard",
	fx.Provide(
		NewService,
		func(s *Service) submission.Invalidator { return s },
	),
)

var HTTPModule = fx.Module("leaderboard.http",
	fx.Provide(httpapi.AsRoutes(NewHandler)),
)
