package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/rolecoach/pkg/cli"
	"github.com/haivivi/rolecoach/pkg/realtime"
)

var (
	journalDir    string
	journalAll    bool
	journalFormat string
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Manage session recordings",
	Long: `Manage recordings made with 'rolecoach run --record'.

Examples:
  rolecoach journal list
  rolecoach journal export 20250603T103000-1a2b3c4d > session.jsonl
  rolecoach journal delete 20250603T103000-1a2b3c4d`,
}

var journalListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recordings",
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal(journalDir)
		if err != nil {
			return err
		}
		defer j.Close()
		recs, err := j.Recordings(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if journalFormat != "" {
			format, err := cli.ParseFormat(journalFormat)
			if err != nil {
				return err
			}
			return cli.Output(recs, cli.OutputOptions{Format: format, Writer: out})
		}
		if len(recs) == 0 {
			fmt.Fprintln(out, "No recordings.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSCENARIO\tSTARTED\tEVENTS")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", r.Name, r.Scenario, r.Started.Local().Format(time.DateTime), r.Events)
		}
		return w.Flush()
	},
}

var journalExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Write a recording as JSONL wire payloads",
	Long: `Write a recording as JSONL, one wire payload per line. Only server
events are written unless --all is set; the output feeds 'rolecoach replay'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal(journalDir)
		if err != nil {
			return err
		}
		defer j.Close()

		out := cmd.OutOrStdout()
		var buf bytes.Buffer
		for ev, err := range j.Replay(cmd.Context(), args[0]) {
			if err != nil {
				return err
			}
			if !journalAll && ev.Direction() != realtime.DirectionServer {
				continue
			}
			buf.Reset()
			if err := json.Compact(&buf, ev.Raw); err != nil {
				return fmt.Errorf("event %s: %w", ev.EventID, err)
			}
			buf.WriteByte('\n')
			if _, err := out.Write(buf.Bytes()); err != nil {
				return err
			}
		}
		return nil
	},
}

var journalDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal(journalDir)
		if err != nil {
			return err
		}
		defer j.Close()
		if err := j.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "Recording %q deleted.", args[0])
		return nil
	},
}

func init() {
	journalCmd.PersistentFlags().StringVar(&journalDir, "dir", "", "journal directory (default: ~/.rolecoach/journal)")
	journalListCmd.Flags().StringVar(&journalFormat, "format", "", "output format (yaml, json)")
	journalExportCmd.Flags().BoolVar(&journalAll, "all", false, "include client events")

	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalExportCmd)
	journalCmd.AddCommand(journalDeleteCmd)
	rootCmd.AddCommand(journalCmd)
}
