// Command hldp-console is an interactive line-editing HLDP client for
// manual protocol testing: connect to a running hldpd session and drive
// it with short commands (continue, step, break file:line, print expr,
// ...) instead of writing a GUI client.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var addr string

const rootLongHelp = `hldp-console connects to a listening hldpd session, performs the HLDP
handshake, and drives the session from a readline prompt.

Commands (GDB-style abbreviations in parens):
  continue (c)            Resume execution
  step (s)                Step into the next statement
  next (n)                Step over (same depth)
  out (o)                 Step out of the current function
  breakin                 Request an asynchronous break-in
  break (b) FILE:LINE     Set a location breakpoint
  fbreak (fb) NAME        Set a function breakpoint
  delete (d) ID           Remove a breakpoint by id
  enable ID / disable ID  Toggle a breakpoint
  backtrace (bt)          Show the last reported backtrace
  print (p) EXPR          Create a top-level expression and print its value
  children ID             Query and print an expression's children
  set ID VALUE            Update an expression's value
  detach                  Detach and let the target run uninterrupted
  quit (q)                Terminate the session and exit
  help (h)                Show this help

Example:
  hldp-console localhost:4711`

var rootCmd = &cobra.Command{
	Use:   "hldp-console",
	Short: "Interactive HLDP client for manual protocol testing",
	Long:  rootLongHelp,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		addr = args[0]
		if err := run(addr); err != nil {
			fmt.Fprintf(os.Stderr, "hldp-console: %v\n", err)
			os.Exit(1)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
