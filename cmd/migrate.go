package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tierpeak/apollo-middleman/internal/config"
	"github.com/tierpeak/apollo-middleman/internal/db"
)

var migrateTarget string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create journal tables (mysql | clickhouse | all)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		targets := map[string]config.DatabaseConfig{}
		switch migrateTarget {
		case db.DriverMySQL:
			targets[db.DriverMySQL] = cfg.Journal.MySQL.DatabaseConfig
		case db.DriverClickHouse:
			targets[db.DriverClickHouse] = cfg.Archive.ClickHouse
		case "all":
			targets[db.DriverMySQL] = cfg.Journal.MySQL.DatabaseConfig
			targets[db.DriverClickHouse] = cfg.Archive.ClickHouse
		default:
			return fmt.Errorf("unknown migrate target %q", migrateTarget)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		for _, driver := range []string{db.DriverMySQL, db.DriverClickHouse} {
			dc, ok := targets[driver]
			if !ok {
				continue
			}

			var opener = db.NewMySQLConnection
			if driver == db.DriverClickHouse {
				opener = db.NewClickHouseConnection
			}
			sqlDB, err := opener(sqlOpts(dc))
			if err != nil {
				return fmt.Errorf("open %s: %w", driver, err)
			}

			applied, err := db.Migrate(ctx, sqlDB, driver)
			_ = sqlDB.Close()
			if err != nil {
				return fmt.Errorf("migrate %s: %w", driver, err)
			}

			for _, f := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), ">> %s: applied %s\n", driver, f)
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), ">> Migration complete")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateTarget, "target", "all", "database to migrate: mysql | clickhouse | all")
}
