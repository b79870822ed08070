// Command procflow deploys process definitions and drives their instances.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/procflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
