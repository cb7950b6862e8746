package main

import (
	"fmt"
	"os"

	"github.com/betterbytes/harvest/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "harvest:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
