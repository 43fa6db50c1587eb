package main

import (
	"fmt"
	"os"

	"github.com/weftlog/weft/internal/cli"
)

func main() {
	root, err := cli.NewRootCommand()
	if err != nil {
		fmt.Fprintf(os.Stderr, "weft: %v\n", err)
		os.Exit(cli.ExitCommandError)
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "weft: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
