package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gastos/internal/cli"
	applog "gastos/internal/log"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the dataset cache",
	}
	cmd.AddCommand(cacheStatusCmd())
	cmd.AddCommand(cacheClearCmd())
	cmd.AddCommand(cacheRefreshCmd())
	return cmd
}

// withDataset builds the dataset for one command and closes it afterwards.
func withDataset(ctx context.Context, fn func(*cli.Dataset) error) error {
	ds, err := cli.BuildDataset(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Warn("Closing backend failed", applog.FieldError, err)
		}
	}()
	return fn(ds)
}

func cacheStatusCmd() *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the cached envelope and the refresh history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			return withDataset(ctx, func(ds *cli.Dataset) error {
				store := ds.Service.Store()
				fmt.Fprintf(out, "backend: %s\nttl:     %s\n", cfg.CacheBackend, store.TTL())
				if !store.Enabled() {
					fmt.Fprintln(out, "cache disabled")
					return nil
				}

				st, ok := store.Status(ctx)
				if !ok {
					fmt.Fprintln(out, "no cached dataset")
				} else {
					state := "valid"
					if !st.Valid {
						state = "expired"
					}
					fmt.Fprintf(out, "stored:  %s (%s ago, %s)\nmonths:  %d\n",
						st.StoredAt.Format(time.RFC3339), st.Age.Round(time.Second), state, st.Records)
				}

				repo := ds.Backend.Repository
				if repo == nil || history <= 0 {
					return nil
				}
				entries, err := repo.RecentRefreshes(ctx, history)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					return nil
				}

				fmt.Fprintln(out)
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				defer w.Flush()
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					headerStyle.Render("When"),
					headerStyle.Render("Source"),
					headerStyle.Render("Months"),
					headerStyle.Render("Error"))
				for _, e := range entries {
					errText := e.Error
					if errText == "" {
						errText = "-"
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
						e.RefreshedAt.Format(time.RFC3339), e.Source, e.Records, errText)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&history, "history", 10, "refresh history entries to show (sqlite cache only)")
	return cmd
}

func cacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the cached dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDataset(cmd.Context(), func(ds *cli.Dataset) error {
				ds.Service.Store().Clear(cmd.Context())
				fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
				return nil
			})
		},
	}
}

func cacheRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch from the source and rewrite the cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDataset(cmd.Context(), func(ds *cli.Dataset) error {
				records, err := ds.Service.Refresh(cmd.Context())
				if err != nil {
					return fmt.Errorf("refresh dataset: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cached %d months\n", len(records))
				return nil
			})
		},
	}
}
