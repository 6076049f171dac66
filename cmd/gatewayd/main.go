package main

import (
	"fmt"
	"os"

	cmdpkg "github.com/jonwraymond/mcp-runtime/cmd/gatewayd/cmd"
)

func main() {
	if err := cmdpkg.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
