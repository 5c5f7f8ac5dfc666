package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-practice/backend/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit    int
		scenario string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past practice sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logCloser, err := bootstrap()
			if err != nil {
				return err
			}
			defer logCloser.Close()

			repo, err := store.NewSQLite(cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("open history store: %w", err)
			}
			defer repo.Close()

			var summaries []store.Summary
			if scenario != "" {
				summaries, err = repo.ListByScenario(cmd.Context(), scenario, limit)
			} else {
				summaries, err = repo.List(cmd.Context(), limit)
			}
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			return printSummaries(cmd.OutOrStdout(), summaries)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of sessions to show (0 for all)")
	cmd.Flags().StringVar(&scenario, "scenario", "", "only show sessions for this scenario id")
	return cmd
}

func printSummaries(out io.Writer, summaries []store.Summary) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(out, "no sessions recorded")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tSCENARIO\tDIFFICULTY\tSCORE\tDURATION")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID,
			s.Date.Local().Format("2006-01-02 15:04"),
			s.ScenarioID,
			s.Difficulty,
			s.Score,
			(time.Duration(s.Duration) * time.Second).String(),
		)
	}
	return tw.Flush()
}
