// Package main is the entry point for the metaminer CLI.
package main

import (
	"os"

	"github.com/travis4dams/metaminer/cmd/metaminer/commands"
)

func main() {
	os.Exit(commands.Execute())
}
