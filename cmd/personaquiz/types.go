package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"personaquiz"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the sixteen personality types",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		types, err := personaquiz.PersonalityTypes()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			t, ok := types[normalizeCode(args[0])]
			if !ok {
				return fmt.Errorf("unknown personality type %q", args[0])
			}
			fmt.Fprintln(out, titleStyle.Render(t.Code+" · "+t.Name))
			fmt.Fprintln(out, t.Description)
			return nil
		}
		for _, code := range personaquiz.TypeCodes(types) {
			t := types[code]
			fmt.Fprintf(out, "%s  %s\n", promptStyle.Render(t.Code), t.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(typesCmd)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
