package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-challenge/pkg/authz"
	"smallbiznis-challenge/pkg/celengine"
	"smallbiznis-challenge/pkg/config"
	"smallbiznis-challenge/pkg/db"
	"smallbiznis-challenge/pkg/featureflags"
	"smallbiznis-challenge/pkg/gen"
	"smallbiznis-challenge/pkg/hashistack/secretmanager"
	"smallbiznis-challenge/pkg/hashistack/servicediscover"
	"smallbiznis-challenge/pkg/health"
	"smallbiznis-challenge/pkg/httpapi"
	"smallbiznis-challenge/pkg/logger"
	"smallbiznis-challenge/pkg/otelcol"
	"smallbiznis-challenge/pkg/profiling"
	"smallbiznis-challenge/pkg/redis"
	"smallbiznis-challenge/pkg/sequence"
	"smallbiznis-challenge/pkg/server"
	"smallbiznis-challenge/pkg/task"
	"smallbiznis-challenge/services/challenge"
	"smallbiznis-challenge/services/identity"
	"smallbiznis-challenge/services/leaderboard"
	"smallbiznis-challenge/services/reward"
	"smallbiznis-challenge/services/submission"
)

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
		sequence.Module,
		featureflags.Module,
		celengine.Module,
		authz.Module,
		task.Client,
		identity.Module,
		challenge.Module,
		challenge.HTTPModule,
		submission.Module,
		submission.HTTPModule,
		leaderboard.Module,
		leaderboard.HTTPModule,
		reward.Module,
		reward.HTTPModule,
		health.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		server.ProvideGRPCServer,
		servicediscover.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger.Named("fx")}
})
