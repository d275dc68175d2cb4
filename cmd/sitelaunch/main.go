package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pendergraft/sitelaunch/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		if !errors.Is(err, cli.ErrUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}
