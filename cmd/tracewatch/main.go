package main

import (
	"os"

	"github.com/tracesec/tracewatch/cmd/tracewatch/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
