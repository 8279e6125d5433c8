package main

import (
	"os"

	"maxwell/internal/cli"
	"maxwell/internal/fault"
)

var version = "dev"

func main() {
	if err := cli.New(version).Run(); err != nil {
		os.Exit(fault.ExitCode(err))
	}
}
