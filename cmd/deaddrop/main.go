package main

import (
	"os"

	"github.com/deaddrop/client-go/cmd/deaddrop/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
