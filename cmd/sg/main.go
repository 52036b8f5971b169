package main

import (
	"os"

	"github.com/socialgravity/socialgravity/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
