package main

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/mcclellann/loanledger/pkg/posting"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var principal, currency, nominalRate string
var termCount, periodDays int
var period, dayCount, compounding, method, rounding string
var firstPayment string
var showHistory bool

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Generate an amortization schedule without posting anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		first, err := parseDate(firstPayment)
		if err != nil {
			return err
		}
		rate, err := decimal.NewFromString(nominalRate)
		if err != nil {
			return fmt.Errorf("rate %q: %w", nominalRate, err)
		}

		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		terms, err := posting.Terms{
			Principal:        principal,
			Currency:         money.Code(currency),
			NominalRate:      rate,
			TermCount:        termCount,
			Period:           period,
			PeriodDays:       periodDays,
			DayCount:         dayCount,
			Compounding:      compounding,
			FirstPaymentDate: first,
			Rounding:         rounding,
			Method:           method,
		}.Resolve(e.Service.Catalog())
		if err != nil {
			return err
		}
		sch, err := e.Service.GenerateSchedule(cmd.Context(), terms)
		if err != nil {
			return err
		}
		return printSchedules(cmd.OutOrStdout(), sch)
	},
}

// loanCmd represents the loan command
var loanCmd = &cobra.Command{
	Use:   "loan <loan-id>",
	Short: "Show the current schedule of a loan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loanID, err := parseUUID(args[0])
		if err != nil {
			return err
		}
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if showHistory {
			history, err := e.Service.ScheduleHistory(cmd.Context(), loanID)
			if err != nil {
				return err
			}
			return printSchedules(cmd.OutOrStdout(), history...)
		}
		sch, err := e.Service.Schedule(cmd.Context(), loanID)
		if err != nil {
			return err
		}
		return printSchedules(cmd.OutOrStdout(), sch)
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(loanCmd)

	scheduleCmd.Flags().StringVarP(&principal, "principal", "p", "", "Principal in major units, e.g. 12000.00.")
	scheduleCmd.Flags().StringVar(&currency, "currency", "USD", "Currency of the loan.")
	scheduleCmd.Flags().StringVarP(&nominalRate, "rate", "r", "0", "Annual nominal rate, 0.12 for 12%.")
	scheduleCmd.Flags().IntVarP(&termCount, "terms", "n", 12, "Number of installments.")
	scheduleCmd.Flags().StringVar(&period, "period", "monthly", "Installment period: monthly, weekly or custom.")
	scheduleCmd.Flags().IntVar(&periodDays, "period-days", 0, "Days in a custom period.")
	scheduleCmd.Flags().StringVar(&dayCount, "day-count", "", "Day count convention: ACT/365, ACT/360 or 30/360.")
	scheduleCmd.Flags().StringVar(&compounding, "compounding", "", "Compounding: simple or daily.")
	scheduleCmd.Flags().StringVar(&method, "method", "", "Method: reducing_balance, equal_principal, flat_rate or interest_only_bullet.")
	scheduleCmd.Flags().StringVar(&rounding, "rounding", "", "Rounding policy, half_even by default.")
	scheduleCmd.Flags().StringVarP(&firstPayment, "first-payment", "f", "", "Due date of the first installment.")
	scheduleCmd.MarkFlagRequired("principal")
	scheduleCmd.MarkFlagRequired("first-payment")

	loanCmd.Flags().BoolVar(&showHistory, "history", false, "Show every schedule version.")
}

func printSchedules(w io.Writer, schedules ...models.Schedule) error {
	if wantJSON(w) {
		if len(schedules) == 1 {
			return printJSON(w, schedules[0])
		}
		return printJSON(w, schedules)
	}
	for _, sch := range schedules {
		if sch.LoanID != uuid.Nil {
			fmt.Fprintf(w, "loan %s version %d", sch.LoanID, sch.Version)
			if sch.Reason != "" {
				fmt.Fprintf(w, " (%s)", sch.Reason)
			}
			fmt.Fprintln(w)
		}
		tw := newTable(w)
		fmt.Fprintln(tw, "#\tDUE\tPRINCIPAL\tINTEREST\tTOTAL\tPAID\tSTATUS")
		for _, in := range sch.Installments {
			paid, _ := in.PaidPrincipal.Add(in.PaidInterest)
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				in.Sequence, in.DueDate.Format(dateFormat),
				in.Principal.Format(), in.Interest.Format(), in.TotalDue.Format(),
				paid.Format(), in.Status)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
