// Command dampen evaluates alert trigger conditions through dampening
// policies.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/dampen/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
