// Package main is the entry point for the snailmarketd server.
package main

import (
	"os"

	"github.com/snaillabs/snailmarket/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
