package main

import (
	"os"

	"github.com/tunnelcore/tunnelcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
