package main

import (
	"os"

	"github.com/klu/travelmanagement/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
