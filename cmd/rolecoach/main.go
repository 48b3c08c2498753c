// Package main is the entry point for the rolecoach CLI.
//
// Usage:
//
//	rolecoach [flags] <command> [subcommand] [args]
//
// Commands:
//
//	run       - Start a live roleplay session
//	replay    - Feed recorded events through the trainer offline
//	journal   - List, export and delete session recordings
//	scenario  - Render or print scenario files
//	config    - Configuration management (contexts)
//	version   - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/rolecoach/cmd/rolecoach/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
