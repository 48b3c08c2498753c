// Package cli provides common utilities for the rolecoach command-line tool.
//
// This package includes:
//   - Configuration management (named contexts, similar to kubectl)
//   - Output formatting (YAML, JSON)
//   - Transcript and event rendering for the terminal
//
// Configuration is stored in ~/.rolecoach/config.yaml unless the
// ROLECOACH_CONFIG environment variable names another file.
//
// Example usage:
//
//	cfg, err := cli.LoadConfig("")
//	ctx, err := cfg.ResolveContext("")
//
//	r := cli.NewRenderer(cli.DefaultTheme, 80)
//	fmt.Println(r.Entry(entry))
package cli
