package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fatture/internal/cli"
	"fatture/internal/gateway/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQLite migrations",
	Long: `Apply pending SQLite migrations to SQLITE_DB_PATH, or to --db when given.
The server applies them on start as well; this command is for upgrading a
database without starting it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("db")
		if path == "" {
			if err := cli.LoadEnvFile(); err != nil {
				return err
			}
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			path = cfg.SQLiteDBPath
		}
		if err := sqlite.RunMigrations(path); err != nil {
			return fmt.Errorf("migrate %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database %s is up to date\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("db", "", "SQLite database file")
}
