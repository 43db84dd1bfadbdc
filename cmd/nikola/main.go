package main

import (
	"os"

	"github.com/mistakeknot/nikola/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
