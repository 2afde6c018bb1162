// Command x1punks runs the X1 Punks inscription service and tooling.
package main

import (
	"os"

	"github.com/execute007/x1punks/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
