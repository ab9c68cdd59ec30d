package main

import (
	"os"

	"github.com/conneroisu/atlas/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
