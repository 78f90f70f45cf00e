package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"gastos/internal/cli"
	"gastos/internal/core"
	"gastos/internal/dashboard"
	applog "gastos/internal/log"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

func fetchCmd() *cobra.Command {
	var (
		asJSON  bool
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Load the dataset and print it",
		Long: `Load the dataset through the cache and print one line per month.
With --refresh the cache is bypassed and rewritten.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ds, err := cli.BuildDataset(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := ds.Close(); err != nil {
					logger.Warn("Closing backend failed", applog.FieldError, err)
				}
			}()

			load := ds.Service.Load
			if refresh {
				load = ds.Service.Refresh
			}
			records, err := load(ctx)
			if err != nil {
				return fmt.Errorf("load dataset: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			st := ds.Service.State()
			printRecords(cmd.OutOrStdout(), records)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d months from %s\n", len(records), st.Source)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the records as JSON")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "skip the cache and fetch from the source")
	return cmd
}

func printRecords(out io.Writer, records []core.MonthlyRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
		headerStyle.Render("Month"),
		headerStyle.Render("Categories"),
		headerStyle.Render("Total"),
		headerStyle.Render("Largest"))

	for _, r := range records {
		sum := dashboard.Summarize(r, nil)
		total := dashboard.FormatCurrency(sum.SelectedTotal)
		if sum.SheetTotal != nil {
			total = dashboard.FormatCurrency(*sum.SheetTotal)
		}
		largest := "-"
		if sum.Top != nil {
			largest = fmt.Sprintf("%s (%s)", sum.Top.Name, dashboard.FormatCurrency(sum.Top.Amount))
		}
		fmt.Fprintf(w, "%s %d\t%d\t%s\t%s\n",
			dashboard.MonthName(r.Month), r.Year, len(r.Categories), total, largest)
	}
}
