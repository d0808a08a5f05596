// Command docforge renders structured documents from YAML templates.
package main

import (
	"os"

	"github.com/opencode-ai/docforge/internal/cli"
)

var version = "dev"

func main() {
	cli.SetVersion(version)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
