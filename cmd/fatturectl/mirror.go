package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fatture/internal/backend"
	"fatture/internal/services"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Copy the primary store into Google Sheets once",
	Long: `Make every sheet of GOOGLE_SPREADSHEET_ID equal to the matching table of
the primary store. Rows missing from the store are deleted from the sheet.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		if e.cfg.DataBackend == string(backend.SheetsBackend) {
			return fmt.Errorf("the primary store already is Google Sheets")
		}

		bc, err := backend.FromAppConfig(e.cfg)
		if err != nil {
			return err
		}
		bc.Type = backend.SheetsBackend
		dst, err := backend.NewFactory(e.logger).CreateBackend(ctx, bc)
		if err != nil {
			return fmt.Errorf("open spreadsheet: %w", err)
		}
		defer dst.Close()

		p := services.NewMirrorProcessor(e.backend.Gateway, dst.Gateway, services.DefaultMirrorConfig(), e.logger)
		st, err := p.SyncOnce(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "inserted %d, updated %d, deleted %d\n", st.Inserted, st.Updated, st.Deleted)
		return err
	},
}

func init() {
	rootCmd.AddCommand(mirrorCmd)
}
