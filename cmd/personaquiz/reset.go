package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the saved quiz progress",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Saved progress cleared."))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
