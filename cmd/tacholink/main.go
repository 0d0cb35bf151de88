package main

import (
	"os"

	"github.com/tacholink/tacholink/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
