package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/rolecoach/cmd/rolecoach/internal/build"
	"github.com/haivivi/rolecoach/pkg/cli"
)

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if versionFormat != "" {
			format, err := cli.ParseFormat(versionFormat)
			if err != nil {
				return err
			}
			return cli.Output(build.Get(), cli.OutputOptions{Format: format, Writer: out})
		}
		fmt.Fprintln(out, build.String())
		if verbose {
			info := build.Get()
			fmt.Fprintf(out, "  go:     %s\n", info.Go)
			if cfg, err := loadConfig(); err == nil {
				fmt.Fprintf(out, "  config: %s\n", cfg.Path())
			} else {
				fmt.Fprintf(out, "  config: (unavailable: %v)\n", err)
			}
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "", "output format (yaml, json)")
	rootCmd.AddCommand(versionCmd)
}
