package main

import (
	"os"

	"github.com/XuAnn175/Simulator/cmd/lobsim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
