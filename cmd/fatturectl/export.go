package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"fatture/internal/core"
	"fatture/internal/export"
	"fatture/internal/filter"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export expenses as CSV or every table as JSON",
	Example: `  # Full JSON backup into the current directory
  fatturectl export

  # Business expenses of the first quarter as CSV on stdout
  fatturectl export --format csv --from 2025-01-01 --to 2025-03-31 --business-only -o -`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("format", "json", "Output format: json or csv")
	exportCmd.Flags().StringP("output", "o", "", "Output file, - for stdout (default: generated name)")
	exportCmd.Flags().String("category", "", "CSV only: category id or name")
	exportCmd.Flags().String("from", "", "CSV only: first date, YYYY-MM-DD")
	exportCmd.Flags().String("to", "", "CSV only: last date, YYYY-MM-DD")
	exportCmd.Flags().Bool("business-only", false, "CSV only: business expenses only")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	if format != "json" && format != "csv" {
		return fmt.Errorf("unknown format %q: must be json or csv", format)
	}

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	l, err := e.ledger(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	if output == "" {
		kind := "fatture-backup"
		if format == "csv" {
			kind = "expenses"
		}
		output = export.Filename(kind, now, format)
	}

	var w io.Writer = cmd.OutOrStdout()
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		st := filter.State{}
		st.Category, _ = cmd.Flags().GetString("category")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		st.From, st.To = core.Date(from), core.Date(to)
		st.BusinessOnly, _ = cmd.Flags().GetBool("business-only")

		expenses := filter.Records(l.Expenses.All(), st)
		sort.SliceStable(expenses, func(i, j int) bool { return expenses[i].Date > expenses[j].Date })
		if err := export.ExpensesCSV(w, expenses); err != nil {
			return err
		}
		e.logger.Info("Exported expenses", "count", len(expenses), "output", output)
		return nil
	}

	snap, err := export.Collect(now, l.Clients, l.Invoices, l.Settings, l.Expenses, l.Categories, l.Balance)
	if err != nil {
		return err
	}
	if err := snap.JSON(w); err != nil {
		return err
	}
	e.logger.Info("Exported backup", "output", output)
	return nil
}
