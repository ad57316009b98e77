// Command screenrec is the headless control-surface CLI exercising the
// SessionController the same way a GUI shell would: one long-running
// "record" process owns the session, and the other subcommands are thin
// clients that speak a one-line-per-command protocol over a Unix
// domain socket to that process (spec §1: "single-host, single-process").
package main

import (
	"fmt"
	"os"

	"screenrec/cmd/screenrec/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
