package main

import (
	"os"

	"github.com/star/debriswatch/cmd/debriswatch/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
