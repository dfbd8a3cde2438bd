// Package main implements the entry point for the curation engine, which
// dispatches scanner, import and license curation tasks to their workers
// and serves the task administration API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
