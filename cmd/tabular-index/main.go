// Command tabular-index builds and queries indexes over large CSV files.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/tabular-index/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
