// Package main provides the entry point for the trials CLI.
package main

import (
	"fmt"
	"os"

	"github.com/bharatr21/clinical-trials-agent/cmd/trials/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
