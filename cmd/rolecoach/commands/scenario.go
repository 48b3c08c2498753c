package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/rolecoach/pkg/cli"
	"github.com/haivivi/rolecoach/pkg/scenario"
)

var (
	scenarioFile   string
	scenarioPitch  string
	scenarioFormat string
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Inspect roleplay scenarios",
}

var scenarioShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Render the instructions and directives of a scenario",
	Long: `Render the session instructions, the opening directive and the persona
reveal directive exactly as they are sent to the model.

Examples:
  rolecoach scenario show
  rolecoach scenario show -f scenario.yaml --pitch "がん保険です"
  rolecoach scenario show --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := loadScenario(scenarioFile)
		if err != nil {
			return err
		}
		instructions, err := sc.Instructions()
		if err != nil {
			return err
		}
		opening, err := sc.OpeningDirective()
		if err != nil {
			return err
		}
		reveal, err := sc.RevealDirective(scenarioPitch)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if scenarioFormat != "" {
			format, err := cli.ParseFormat(scenarioFormat)
			if err != nil {
				return err
			}
			return cli.Output(map[string]string{
				"name":         sc.Name,
				"instructions": instructions,
				"opening":      opening,
				"reveal":       reveal,
			}, cli.OutputOptions{Format: format, Writer: out})
		}
		fmt.Fprintf(out, "== %s (%s)\n\n", sc.Title, sc.Name)
		fmt.Fprintf(out, "-- instructions\n%s\n\n", instructions)
		fmt.Fprintf(out, "-- opening\n%s\n\n", opening)
		fmt.Fprintf(out, "-- reveal\n%s\n", reveal)
		return nil
	},
}

var scenarioDefaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Print the built-in scenario as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := scenario.Default().Encode()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

// loadScenario loads path, or the built-in scenario when path is empty.
func loadScenario(path string) (*scenario.Scenario, error) {
	if path == "" {
		return scenario.Default(), nil
	}
	return scenario.Load(path)
}

func init() {
	scenarioShowCmd.Flags().StringVarP(&scenarioFile, "file", "f", "", "scenario YAML file (default: built-in)")
	scenarioShowCmd.Flags().StringVar(&scenarioPitch, "pitch", "", "operator pitch passed to the reveal template")
	scenarioShowCmd.Flags().StringVar(&scenarioFormat, "format", "", "output format (yaml, json)")

	scenarioCmd.AddCommand(scenarioShowCmd)
	scenarioCmd.AddCommand(scenarioDefaultCmd)
	rootCmd.AddCommand(scenarioCmd)
}
