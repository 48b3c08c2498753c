package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/haivivi/rolecoach/pkg/cli"
)

var (
	// Global flags
	cfgFile     string
	contextName string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "rolecoach",
	Short: "Sales roleplay trainer on the OpenAI Realtime API",
	Long: `rolecoach - practice sales conversations against an AI counterparty.

The AI introduces the roleplay, waits for you to describe the product you
want to sell, then plays a scripted customer persona.

Configuration is stored in ~/.rolecoach/config.yaml (override with
--config or ROLECOACH_CONFIG) and supports multiple contexts, similar to
kubectl's context management.

Examples:
  # Set up a context
  rolecoach config add-context dev --api-key sk-xxx
  rolecoach config set dev transport websocket

  # Start a session; type lines to speak as the operator
  rolecoach run

  # Use a custom scenario and keep a recording
  rolecoach run -f scenario.yaml --record

  # Replay a recording offline
  rolecoach replay --journal 20250603T103000-1a2b3c4d`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if verbose {
			logLevel = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: logLevel,
		})))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.rolecoach/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the configuration selected by --config.
func loadConfig() (*cli.Config, error) {
	cfg, err := cli.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("config not available: %w", err)
	}
	return cfg, nil
}

// resolveContext returns the context selected by -c or the current one.
// Without -c a missing current context yields an empty one, so flags and
// environment variables alone can configure a run.
func resolveContext(cfg *cli.Config) (*cli.Context, error) {
	ctx, err := cfg.ResolveContext(contextName)
	if err != nil {
		if contextName == "" {
			return &cli.Context{}, nil
		}
		return nil, err
	}
	return ctx, nil
}
