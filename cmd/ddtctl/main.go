// Package main is the entry point for ddtctl.
package main

import (
	"errors"
	"fmt"
	"os"

	"commesse/internal/cli"
)

func main() {
	if err := cli.NewRootCommand(nil).Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Error())
		}
		os.Exit(cli.GetExitCode(err))
	}
}
