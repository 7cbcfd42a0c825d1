// Command maplink is the command line client of the Maplink platform.
package main

import (
	"os"

	"github.com/wesleyorama2/maplink/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
