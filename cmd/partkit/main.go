// Command partkit resolves components into the local library.
package main

import (
	"os"

	"github.com/randalmurphal/partkit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
