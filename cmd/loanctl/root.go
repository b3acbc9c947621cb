package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/config"
	"github.com/mcclellann/loanledger/pkg/engine"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var configPath string
var verbose bool
var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:          "loanctl",
	Short:        "Operate a loan ledger from the command line",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file (default $LOANLEDGER_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity to stderr.")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON even on a terminal.")
}

// openEngine assembles the engine for one command. The caller closes it.
func openEngine(cmd *cobra.Command) (*engine.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := log.NewNopLogger()
	if verbose {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(cmd.ErrOrStderr()))
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	}
	return engine.Assemble(cmd.Context(), cfg, logger)
}

// parseDate accepts anything dateparse understands. Zoneless input is
// UTC; empty input is the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse date %q", s)
	}
	return t.UTC(), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// wantJSON is true unless w is a terminal and --json was not given.
func wantJSON(w io.Writer) bool {
	if jsonOutput {
		return true
	}
	f, ok := w.(*os.File)
	return !ok || !term.IsTerminal(int(f.Fd()))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

const dateFormat = "2006/01/02"
