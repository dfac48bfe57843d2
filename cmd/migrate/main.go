package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smallbiznis-challenge/pkg/config"
	"smallbiznis-challenge/pkg/db"
	"smallbiznis-challenge/pkg/hashistack/secretmanager"
	"smallbiznis-challenge/pkg/logger"
	"smallbiznis-challenge/services/challenge"
	"smallbiznis-challenge/services/reward"
	"smallbiznis-challenge/services/submission"
)

// Creates or updates the tables owned by the challenge engine. User profiles
// belong to the identity service and are not migrated here.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		fx.Invoke(migrate),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	_ = app.Stop(context.Background())
}

func migrate(db *gorm.DB) error {
	models := []any{
		&challenge.Challenge{},
		&submission.Submission{},
		&reward.Grant{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		zap.L().Error("failed to migrate", zap.Error(err))
		return err
	}
	zap.L().Info("migration completed", zap.Int("tables", len(models)))
	return nil
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
