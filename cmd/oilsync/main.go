// Package main provides the oilsync CLI.
package main

import (
	"os"

	"github.com/mesh-intelligence/oilsync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
