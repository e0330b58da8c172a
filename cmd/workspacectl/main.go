// Command workspacectl inspects and exports a stored workspace model.
package main

import (
	"fmt"
	"os"

	"workspacemodel/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
