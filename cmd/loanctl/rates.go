package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var rateAt string
var baseFilter, quoteFilter string

func code(s string) money.Code {
	return money.Code(strings.ToUpper(strings.TrimSpace(s)))
}

// ratesCmd represents the rates command
var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Record and look up exchange rates",
}

var rateRecordCmd = &cobra.Command{
	Use:   "record <base> <quote> <rate>",
	Short: "Record units of quote per unit of base from --at on",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		rate, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("rate %q: %w", args[2], err)
		}
		at, err := parseDate(rateAt)
		if err != nil {
			return err
		}
		if at.IsZero() {
			at = time.Now().UTC()
		}
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		r := models.ExchangeRate{Base: code(args[0]), Quote: code(args[1]), Rate: rate, AsOf: at}
		if err := e.Service.RecordRate(cmd.Context(), r); err != nil {
			return err
		}
		return printRates(cmd.OutOrStdout(), []models.ExchangeRate{r})
	},
}

var rateGetCmd = &cobra.Command{
	Use:   "get <base> <quote>",
	Short: "Print the rate in force at --at, derived or fetched if none is recorded",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := parseDate(rateAt)
		if err != nil {
			return err
		}
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		r, err := e.Service.Rate(cmd.Context(), code(args[0]), code(args[1]), at)
		if err != nil {
			return err
		}
		return printRates(cmd.OutOrStdout(), []models.ExchangeRate{r})
	},
}

var rateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded rates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		rates, err := e.Service.Rates(cmd.Context(), code(baseFilter), code(quoteFilter))
		if err != nil {
			return err
		}
		if rates == nil {
			rates = []models.ExchangeRate{}
		}
		return printRates(cmd.OutOrStdout(), rates)
	},
}

func init() {
	rootCmd.AddCommand(ratesCmd)
	ratesCmd.AddCommand(rateRecordCmd, rateGetCmd, rateListCmd)

	rateRecordCmd.Flags().StringVar(&rateAt, "at", "", "Time the rate takes effect (default now).")
	rateGetCmd.Flags().StringVar(&rateAt, "at", "", "Time of the lookup (default now).")
	rateListCmd.Flags().StringVar(&baseFilter, "base", "", "Only rates with this base currency.")
	rateListCmd.Flags().StringVar(&quoteFilter, "quote", "", "Only rates with this quote currency.")
}

func printRates(w io.Writer, rates []models.ExchangeRate) error {
	if wantJSON(w) {
		return printJSON(w, rates)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "AS OF\tPAIR\tRATE")
	for _, r := range rates {
		fmt.Fprintf(tw, "%s\t%s/%s\t%s\n", r.AsOf.Format(time.RFC3339), r.Base, r.Quote, r.Rate)
	}
	return tw.Flush()
}
