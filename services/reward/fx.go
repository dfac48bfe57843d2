package reward

import (
	"smallbiznis-challenge/pkg/client"
	"smallbiznis-challenge/pkg/httpapi"
	"smallbiznis-challenge/services/leaderboard"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("reward",
	fx.Provide(
		client.NewLedgerClient,
		NewGRPCLedger,
		func(s *leaderboard.Service) Finalizer { return s },
		NewService,
	),
)

var HTTPModule = fx.Module("reward.http",
	fx.Provide(httpapi.AsRoutes(NewHandler)),
)

var WorkerModule = fx.Module("reward.worker",
	fx.Provide(NewTask),
	fx.Invoke(func(t *Task, mux *asynq.ServeMux) { t.Register(mux) }),
)
