// Command loanctl operates a loan ledger from the command line. It opens
// the database named in the config directly, so it should not run against
// a sqlite file a server has open.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
