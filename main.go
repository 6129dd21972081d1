package main

import (
	"os"

	"github.com/pqbench/pqbench/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
