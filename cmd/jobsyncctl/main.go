package main

import (
	"os"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

func main() {
	utils.InitLogger("jobsyncctl")
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
