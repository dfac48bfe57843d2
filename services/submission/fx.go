package submission

import (
	"smallbiznis-challenge/pkg/httpapi"
	"smallbiznis-challenge/services/challenge"

	"go.uber.org/fx"
)

var Module = fx.Module("submission",
	fx.Provide(
		NewService,
		func(s *Service) challenge.SubmissionCounter { return s },
	),
)

var HTTPModule = fx.Module("submission.http",
	fx.Provide(httpapi.AsRoutes(NewHandler)),
)
