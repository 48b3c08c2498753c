package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"github.com/haivivi/rolecoach/pkg/cli"
	"github.com/haivivi/rolecoach/pkg/director"
	"github.com/haivivi/rolecoach/pkg/journal"
	"github.com/haivivi/rolecoach/pkg/realtime"
	"github.com/haivivi/rolecoach/pkg/reconcile"
	"github.com/haivivi/rolecoach/pkg/scenario"
	"github.com/haivivi/rolecoach/pkg/token"
	"github.com/haivivi/rolecoach/pkg/trainer"
	"github.com/haivivi/rolecoach/pkg/transport"
)

// maxLine bounds one JSONL line; audio deltas are large.
const maxLine = 8 << 20

var (
	replayScenario   string
	replayJournal    string
	replayJournalDir string
	replayFormat     string
	replayWidth      int
)

var replayCmd = &cobra.Command{
	Use:   "replay [events.jsonl]",
	Short: "Feed recorded server events through the trainer offline",
	Long: `Feed recorded server events through the trainer without a network.

Input is a JSONL file of wire payloads (one server event per line, as
written by 'rolecoach journal export') or a journal recording. Client
events in the input are skipped; the trainer produces its own, and they
are printed together with the reconciled transcript.

Examples:
  rolecoach replay session.jsonl
  rolecoach replay --journal 20250603T103000-1a2b3c4d
  rolecoach replay session.jsonl -f scenario.yaml --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (len(args) == 1) == (replayJournal != "") {
			return fmt.Errorf("give either an events file or --journal")
		}
		sc, err := loadScenario(replayScenario)
		if err != nil {
			return err
		}

		var events []realtime.Event
		if replayJournal != "" {
			events, err = readJournal(cmd.Context(), replayJournal)
		} else {
			events, err = readEventsFile(args[0])
		}
		if err != nil {
			return err
		}

		res, err := replay(cmd.Context(), sc, events)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if replayFormat != "" {
			format, err := cli.ParseFormat(replayFormat)
			if err != nil {
				return err
			}
			return cli.Output(res.report(), cli.OutputOptions{Format: format, Writer: out})
		}
		r := cli.NewRenderer(cli.DefaultTheme, replayWidth)
		fmt.Fprintf(out, "-- client events (%d)\n", len(res.Sent))
		for _, ev := range res.Sent {
			fmt.Fprintln(out, r.Event(ev, string(ev.Raw)))
		}
		fmt.Fprintf(out, "\n-- transcript (%d)\n", len(res.Transcript))
		if len(res.Transcript) > 0 {
			fmt.Fprintln(out, r.Transcript(res.Transcript))
		}
		fmt.Fprintf(out, "\nstage: %s\n", res.Stage)
		if res.Pitch != "" {
			fmt.Fprintf(out, "pitch: %s\n", res.Pitch)
		}
		return nil
	},
}

func init() {
	f := replayCmd.Flags()
	f.StringVarP(&replayScenario, "file", "f", "", "scenario YAML file (default: built-in)")
	f.StringVar(&replayJournal, "journal", "", "journal recording to replay")
	f.StringVar(&replayJournalDir, "journal-dir", "", "journal directory (default: ~/.rolecoach/journal)")
	f.StringVar(&replayFormat, "format", "", "output format (yaml, json)")
	f.IntVar(&replayWidth, "width", 100, "terminal width for truncation")
	rootCmd.AddCommand(replayCmd)
}

type replayResult struct {
	Sent       []realtime.Event
	Transcript []reconcile.Entry
	Stage      director.Stage
	Pitch      string
}

type replayReport struct {
	Stage      string            `json:"stage" yaml:"stage"`
	Pitch      string            `json:"pitch,omitempty" yaml:"pitch,omitempty"`
	Sent       []map[string]any  `json:"sent" yaml:"sent"`
	Transcript []replayReportRow `json:"transcript" yaml:"transcript"`
}

type replayReportRow struct {
	Speaker string `json:"speaker" yaml:"speaker"`
	Message string `json:"message" yaml:"message"`
}

func (r *replayResult) report() replayReport {
	rep := replayReport{Stage: r.Stage.String(), Pitch: r.Pitch}
	for _, ev := range r.Sent {
		fields, err := ev.Fields()
		if err != nil {
			continue
		}
		delete(fields, "timestamp")
		rep.Sent = append(rep.Sent, fields)
	}
	for _, e := range r.Transcript {
		rep.Transcript = append(rep.Transcript, replayReportRow{Speaker: e.Speaker.String(), Message: e.Message})
	}
	return rep
}

// replay drives an engine over the pipe connector on a mock clock. After
// every event the clock advances by the reveal delay so a scheduled reveal
// is sent before the next event.
func replay(ctx context.Context, sc *scenario.Scenario, events []realtime.Event) (*replayResult, error) {
	p := transport.NewPipe()
	p.OpenOnConnect()
	clk := clock.NewMock()
	clk.Set(time.Now())

	e := trainer.New(trainer.Config{
		Provider:  token.Static("replay"),
		Connector: p,
		Scenario:  sc,
		Clock:     clk,
		Logger:    slog.Default(),
	})
	defer e.Close()

	if err := e.Start(ctx); err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ev.Direction() == realtime.DirectionClient {
			continue
		}
		if err := p.Deliver(ev.Raw); err != nil {
			return nil, err
		}
		if err := e.Flush(ctx); err != nil {
			return nil, err
		}
		clk.Add(director.DefaultRevealDelay)
		if err := waitReveal(ctx, p); err != nil {
			return nil, err
		}
	}
	if err := e.Flush(ctx); err != nil {
		return nil, err
	}

	return &replayResult{
		Sent:       p.Sent(),
		Transcript: e.Transcript(),
		Stage:      e.Stage(),
		Pitch:      e.Pitch(),
	}, nil
}

// waitReveal waits until a cancel sent by the director is followed by the
// reveal it schedules. Mock timers fire on their own goroutine.
func waitReveal(ctx context.Context, p *transport.Pipe) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	for revealPending(p.SentTypes()) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("reveal not sent: %w", ctx.Err())
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

func revealPending(types []string) bool {
	i := slices.Index(types, realtime.EventTypeResponseCancel)
	if i < 0 {
		return false
	}
	return !slices.Contains(types[i+1:], realtime.EventTypeResponseCreate)
}

func readEventsFile(path string) ([]realtime.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readEvents(f)
}

// readEvents parses JSONL wire payloads, skipping blank lines.
func readEvents(r io.Reader) ([]realtime.Event, error) {
	var events []realtime.Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	for n := 1; sc.Scan(); n++ {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := realtime.ParseEvent(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		events = append(events, ev)
	}
	return events, sc.Err()
}

func readJournal(ctx context.Context, name string) ([]realtime.Event, error) {
	j, err := openJournal(replayJournalDir)
	if err != nil {
		return nil, err
	}
	defer j.Close()
	var events []realtime.Event
	for ev, err := range j.Replay(ctx, name) {
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// openJournal opens dir, or the configured default when dir is empty.
func openJournal(dir string) (*journal.Journal, error) {
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		dir = cfg.JournalDir()
	}
	return journal.Open(journal.Options{Dir: dir})
}
