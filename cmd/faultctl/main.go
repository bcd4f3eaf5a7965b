package main

import (
	"os"

	"faultctl/cmd/faultctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
