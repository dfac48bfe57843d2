package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-challenge/pkg/celengine"
	"smallbiznis-challenge/pkg/config"
	"smallbiznis-challenge/pkg/db"
	"smallbiznis-challenge/pkg/gen"
	"smallbiznis-challenge/pkg/hashistack/secretmanager"
	"smallbiznis-challenge/pkg/logger"
	"smallbiznis-challenge/pkg/otelcol"
	"smallbiznis-challenge/pkg/profiling"
	"smallbiznis-challenge/pkg/redis"
	"smallbiznis-challenge/pkg/task"
	"smallbiznis-challenge/services/identity"
	"smallbiznis-challenge/services/leaderboard"
	"smallbiznis-challenge/services/reward"
	"smallbiznis-challenge/services/scheduler"
)

// The worker finalizes ended challenges and credits their rewards.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		celengine.Module,
		identity.Module,
		leaderboard.Module,
		reward.Module,
		task.Client,
		task.Server,
		reward.WorkerModule,
		scheduler.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
