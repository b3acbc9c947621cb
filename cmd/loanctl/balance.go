package main

import (
	"fmt"
	"io"
	"time"

	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/spf13/cobra"
)

var asOfString string
var beginString, endString string

type balance struct {
	Account models.Account `json:"account"`
	AsOf    time.Time      `json:"as_of"`
	Balance money.Money    `json:"balance"`
}

// balanceCmd represents the balance command
var balanceCmd = &cobra.Command{
	Use:   "balance [account-id]...",
	Short: "Print account balances, every account when none is named",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := parseDate(asOfString)
		if err != nil {
			return err
		}
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		accounts := e.Service.Accounts()
		if len(args) > 0 {
			byID := make(map[string]models.Account, len(accounts))
			for _, a := range accounts {
				byID[a.ID] = a
			}
			accounts = accounts[:0:0]
			for _, id := range args {
				a, ok := byID[id]
				if !ok {
					a = models.Account{ID: id}
				}
				accounts = append(accounts, a)
			}
		}

		balances := make([]balance, 0, len(accounts))
		for _, a := range accounts {
			b, err := e.Service.BalanceOf(cmd.Context(), a.ID, asOf)
			if err != nil {
				return err
			}
			balances = append(balances, balance{Account: a, AsOf: asOf, Balance: b})
		}
		return printBalances(cmd.OutOrStdout(), balances)
	},
}

// entriesCmd represents the entries command
var entriesCmd = &cobra.Command{
	Use:   "entries <account-id>",
	Short: "Print the journal entries touching an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseDate(beginString)
		if err != nil {
			return err
		}
		to, err := parseDate(endString)
		if err != nil {
			return err
		}
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		entries, err := e.Service.Entries(cmd.Context(), args[0], from, to)
		if err != nil {
			return err
		}
		return printEntries(cmd.OutOrStdout(), entries)
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(entriesCmd)

	balanceCmd.Flags().StringVar(&asOfString, "as-of", "", "Balance at this time (default latest).")
	entriesCmd.Flags().StringVarP(&beginString, "begin-date", "b", "", "Begin date of entries.")
	entriesCmd.Flags().StringVarP(&endString, "end-date", "e", "", "End date of entries.")
}

func printBalances(w io.Writer, balances []balance) error {
	if wantJSON(w) {
		return printJSON(w, balances)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ACCOUNT\tTYPE\tBALANCE")
	for _, b := range balances {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Account.ID, b.Account.Type, b.Balance.Format())
	}
	return tw.Flush()
}
