package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-events/pkg/config"
	"github.com/angelmondragon/packfinderz-events/pkg/db"
	"github.com/angelmondragon/packfinderz-events/pkg/db/models"
	"github.com/angelmondragon/packfinderz-events/pkg/logger"
)

// MaybeRunDev prepares the events schema at startup. SQLite databases are always
// auto-migrated from the models; Postgres applies the embedded goose migrations only
// in dev with PACKFINDERZ_AUTO_MIGRATE on.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	ctx = logg.WithField(ctx, "driver", client.Driver())

	if client.Driver() == config.DBDriverSQLite {
		logg.Info(ctx, "auto-migrating sqlite event schema")
		if err := client.DB().WithContext(ctx).AutoMigrate(&models.EventRecord{}); err != nil {
			return fmt.Errorf("auto-migrating sqlite schema: %w", err)
		}
		return nil
	}

	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, client.Driver(), EmbeddedFS(), logg)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	applied, err := runner.Up(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", applied), "event schema migrations complete")
	return nil
}
