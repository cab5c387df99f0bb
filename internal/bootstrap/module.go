package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"dataflag/internal/bootstrap/config"
	"dataflag/internal/bootstrap/database"
	"dataflag/internal/bootstrap/logging"
	"dataflag/internal/domain/dataflag"
	sqliterepo "dataflag/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "dataflag/internal/infrastructure/persistence/sqlite/uow"
	"dataflag/internal/ports"
	"dataflag/internal/usecase/flagging"
	"dataflag/internal/usecase/voting"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(provideClientInfo),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewDataflagRepository,
			fx.As(new(ports.DataflagRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(flagging.NewService),
	fx.Provide(voting.NewService),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideClientInfo(cfg config.Config) dataflag.ClientInfo {
	return dataflag.ClientInfo{
		Name:    cfg.Client.Name,
		Version: cfg.Client.Version,
	}
}
