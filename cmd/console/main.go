package main

import (
	"os"

	"siecore/apps/console/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
