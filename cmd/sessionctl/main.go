package main

import (
	"os"

	"github.com/fogo-foundation/fogo-sessions-sub001/cmd/sessionctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
