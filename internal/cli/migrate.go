package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/marksync/internal/config"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/store/postgres"
	"github.com/MrSnakeDoc/marksync/internal/utils"
)

// NewMigrateCommand creates the migrate command. Only the Postgres backend
// has a schema; the Redis backend needs none.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the Postgres schema and change trigger",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.BackendDriver != config.DriverPostgres {
				return write(cmd.OutOrStdout(), rootOpts.Format,
					map[string]any{"migrated": false, "backend": cfg.BackendDriver},
					fmt.Sprintf("nothing to migrate for the %s backend", cfg.BackendDriver))
			}

			log := logger.New(cfg.LogLevel, cfg.PrettyLog)
			store, err := postgres.Open(cmd.Context(), cfg.PostgresDSN, cfg.PostgresConnectTimeout, log)
			if err != nil {
				return err
			}
			defer utils.CloseLogged(store, "postgres", log)

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), rootOpts.Format,
				map[string]any{"migrated": true, "backend": cfg.BackendDriver},
				"schema applied")
		},
	}
}
