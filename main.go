package main

import (
	"os"

	"github.com/abhisek/twinly/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
