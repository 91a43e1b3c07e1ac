package main

import (
	"os"

	"github.com/gkobilansky/funnelstat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
