package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/catalog"
	"github.com/sells-group/catalog-importer/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the catalog and session store schemas",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		ctx := cmd.Context()

		pool, err := db.Connect(ctx, cfg.Catalog.DatabaseURL, &db.PoolConfig{MaxConns: 2})
		if err != nil {
			return eris.Wrap(err, "connect catalog database")
		}
		defer pool.Close()

		if err := catalog.NewPostgres(pool).Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate catalog")
		}
		zap.L().Info("catalog schema up to date")

		// The session store migrates on open.
		st, err := initSessionStore(ctx)
		if err != nil {
			return err
		}
		_ = st.Close()
		zap.L().Info("session store schema up to date", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
