package main

import (
	"time"

	"github.com/spf13/cobra"
)

var revalueAsOf string

// revalueCmd represents the revalue command
var revalueCmd = &cobra.Command{
	Use:   "revalue [account-id]...",
	Short: "Restate foreign-currency accounts in the reporting currency",
	Long: `Revalue marks each named account, or every account in the chart, at the
rate in force at --as-of and posts the unrealized gain or loss since the
previous mark. The first run for an account only records the mark.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := parseDate(revalueAsOf)
		if err != nil {
			return err
		}
		if asOf.IsZero() {
			asOf = time.Now().UTC()
		}
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		entries, err := e.Service.Revalue(cmd.Context(), args, asOf)
		if err != nil {
			return err
		}
		return printEntries(cmd.OutOrStdout(), entries)
	},
}

func init() {
	rootCmd.AddCommand(revalueCmd)

	revalueCmd.Flags().StringVar(&revalueAsOf, "as-of", "", "Revaluation date (default now).")
}
