package main

import (
	"os"

	"safetywatch/cmd/devicesim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
