package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"personaquiz"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show finished quizzes (sqlite store only)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		lister, ok := a.store.(interface {
			Results(ctx context.Context, limit int) ([]personaquiz.ResultRecord, error)
		})
		if !ok {
			return fmt.Errorf("history needs the sqlite store (--store sqlite), current store is %s", a.cfg.Store)
		}
		results, err := lister.Results(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, mutedStyle.Render("No finished quizzes yet."))
			return nil
		}
		for _, r := range results {
			fmt.Fprintf(out, "%s  %s  %s\n",
				mutedStyle.Render(r.CreatedAt.Local().Format("2006-01-02 15:04")),
				promptStyle.Render(r.Type),
				r.Name)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of results to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
