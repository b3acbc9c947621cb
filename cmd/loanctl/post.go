package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/posting"
	"github.com/spf13/cobra"
)

var entryAt string

// postCmd represents the post command
var postCmd = &cobra.Command{
	Use:   "post [file]",
	Short: "Post loan events read as JSON lines from a file or stdin",
	Long: `Each non-empty line is one event, for example

  {"kind":"repayment","key":"pay-7","loan_id":"...","at":"2024-02-01T00:00:00Z","amount":"500.00","currency":"USD"}

Events are posted in order. The first failure stops the run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		var posted []models.JournalEntry
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for line := 1; scanner.Scan(); line++ {
			data := bytes.TrimSpace(scanner.Bytes())
			if len(data) == 0 {
				continue
			}
			ev, err := posting.DecodeEvent(data, e.Service.Catalog())
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			entries, err := e.Service.PostEvent(cmd.Context(), ev)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			posted = append(posted, entries...)
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		return printEntries(cmd.OutOrStdout(), posted)
	},
}

// reverseCmd represents the reverse command
var reverseCmd = &cobra.Command{
	Use:   "reverse <entry-id>",
	Short: "Post the reversal of a journal entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUUID(args[0])
		if err != nil {
			return err
		}
		at, err := parseDate(entryAt)
		if err != nil {
			return err
		}
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		rev, err := e.Service.Reverse(cmd.Context(), id, at)
		if err != nil {
			return err
		}
		return printEntries(cmd.OutOrStdout(), []models.JournalEntry{rev})
	},
}

func init() {
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(reverseCmd)

	reverseCmd.Flags().StringVar(&entryAt, "at", "", "Effective time of the reversal (default now).")
}

func printEntries(w io.Writer, entries []models.JournalEntry) error {
	if wantJSON(w) {
		if entries == nil {
			entries = []models.JournalEntry{}
		}
		return printJSON(w, entries)
	}
	tw := newTable(w)
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\t\n", e.Timestamp.Format(dateFormat), e.ID, e.Memo)
		for _, l := range e.Lines {
			debit, credit := l.Amount.Format(), ""
			if l.Side == models.Credit {
				debit, credit = "", l.Amount.Format()
			}
			fmt.Fprintf(tw, "\t\t    %s\t%s\t%s\n", l.AccountID, debit, credit)
		}
	}
	return tw.Flush()
}
