package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
