package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v3"
	"github.com/spf13/cobra"

	"github.com/haivivi/rolecoach/pkg/cli"
	"github.com/haivivi/rolecoach/pkg/director"
	"github.com/haivivi/rolecoach/pkg/journal"
	"github.com/haivivi/rolecoach/pkg/realtime"
	"github.com/haivivi/rolecoach/pkg/reconcile"
	"github.com/haivivi/rolecoach/pkg/token"
	"github.com/haivivi/rolecoach/pkg/trainer"
	"github.com/haivivi/rolecoach/pkg/transport"
)

// recordDefault marks --record given without a directory.
const recordDefault = "-"

var (
	runScenario  string
	runTransport string
	runTokenURL  string
	runModel     string
	runVoice     string
	runRecord    string
	runJQ        string
	runEvents    bool
	runEnvFile   string
	runWidth     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a live roleplay session",
	Long: `Start a live roleplay session.

Credentials come from the context's token_url, else its api_key, else the
OPENAI_API_KEY environment variable (a .env file is loaded first). Each
line read from stdin is sent as an operator message. Press Ctrl+C to stop.

The webrtc transport negotiates an audio track but does not capture a
microphone; use text input on either transport.

Examples:
  rolecoach run
  rolecoach run --transport websocket --events
  rolecoach run -f scenario.yaml --record
  rolecoach run --events --jq '.type | startswith("response.")'`,
	RunE: runSession,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runScenario, "file", "f", "", "scenario YAML file (default: built-in)")
	f.StringVar(&runTransport, "transport", "", "webrtc or websocket (overrides context)")
	f.StringVar(&runTokenURL, "token-url", "", "ephemeral token endpoint (overrides context)")
	f.StringVar(&runModel, "model", "", "realtime model (overrides context)")
	f.StringVar(&runVoice, "voice", "", "voice (overrides context and scenario)")
	f.StringVar(&runRecord, "record", "", "record events into a journal directory (default: ~/.rolecoach/journal)")
	f.Lookup("record").NoOptDefVal = recordDefault
	f.StringVar(&runJQ, "jq", "", "jq expression selecting events to print (implies --events)")
	f.BoolVar(&runEvents, "events", false, "print the event log")
	f.StringVar(&runEnvFile, "env-file", ".env", "dotenv file to load")
	f.IntVar(&runWidth, "width", 80, "terminal width for alignment")
	rootCmd.AddCommand(runCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	if runEnvFile != "" {
		if err := godotenv.Load(runEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", runEnvFile, err)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := resolveContext(cfg)
	if err != nil {
		return err
	}
	settings := *c
	for key, v := range map[string]string{
		"transport": runTransport,
		"token_url": runTokenURL,
		"model":     runModel,
		"voice":     runVoice,
	} {
		if v == "" {
			continue
		}
		if err := settings.Set(key, v); err != nil {
			return err
		}
	}
	if settings.Model == "" {
		settings.Model = realtime.ModelGPT4oRealtimePreview20250603
	}

	sc, err := loadScenario(runScenario)
	if err != nil {
		return err
	}
	if settings.Voice != "" {
		sc.Voice = settings.Voice
	}

	provider, err := newProvider(&settings)
	if err != nil {
		return err
	}
	connector, err := newConnector(&settings)
	if err != nil {
		return err
	}

	var filter *realtime.Filter
	if runJQ != "" {
		if filter, err = realtime.CompileFilter(runJQ); err != nil {
			return err
		}
		runEvents = true
	}

	var j *journal.Journal
	if runRecord != "" {
		dir := runRecord
		if dir == recordDefault {
			dir = cfg.JournalDir()
		}
		if j, err = journal.Open(journal.Options{Dir: dir}); err != nil {
			return err
		}
		defer j.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	r := cli.NewRenderer(cli.DefaultTheme, runWidth)
	ended := make(chan transport.State, 1)

	e := trainer.New(trainer.Config{
		Provider:  provider,
		Connector: connector,
		Scenario:  sc,
		Journal:   j,
		Observer: trainer.Funcs{
			State: func(st transport.State) {
				slog.Info("session state", "state", st)
				if st == transport.StateClosed || st == transport.StateError {
					select {
					case ended <- st:
					default:
					}
				}
			},
			Stage: func(st director.Stage) {
				slog.Info("roleplay stage", "stage", st)
			},
			Entry: func(entry reconcile.Entry) {
				fmt.Fprintln(out, r.Entry(entry))
			},
			Events: func(batch []realtime.Event) {
				if runEvents {
					printEvents(out, r, filter, batch)
				}
			},
		},
	})
	defer e.Close()

	if err := e.Start(ctx); err != nil {
		return err
	}
	if name := e.Recording(); name != "" {
		cli.PrintInfo(cmd.ErrOrStderr(), "Recording %s", name)
	}
	cli.PrintInfo(cmd.ErrOrStderr(), "Session started (%s). Type a line to speak, Ctrl+C to stop.", settings.TransportName())

	go sendLines(ctx, cmd.InOrStdin(), e)

	select {
	case <-ctx.Done():
	case st := <-ended:
		if st == transport.StateError {
			return e.Err()
		}
		return nil
	}
	e.Stop()
	if n := len(e.Diagnostics()); n > 0 {
		cli.PrintWarning(cmd.ErrOrStderr(), "%d events were dropped; run with -v for details", n)
	}
	return nil
}

// printEvents prints a batch oldest first. batch arrives newest first.
func printEvents(w io.Writer, r *cli.Renderer, filter *realtime.Filter, batch []realtime.Event) {
	for i := len(batch) - 1; i >= 0; i-- {
		ev := batch[i]
		ok, err := filter.Match(ev)
		if err != nil {
			slog.Debug("filter event", "type", ev.Type, "error", err)
			continue
		}
		if ok {
			fmt.Fprintln(w, r.Event(ev, ""))
		}
	}
}

func sendLines(ctx context.Context, in io.Reader, e *trainer.Engine) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := e.SendText(sc.Text()); err != nil && !errors.Is(err, trainer.ErrEmptyMessage) {
			slog.Warn("send message", "error", err)
		}
	}
}

func newProvider(c *cli.Context) (token.Provider, error) {
	if c.TokenURL != "" {
		return token.NewHTTP(c.TokenURL), nil
	}
	key := c.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, errors.New("no credentials: set token_url or api_key in the context, or OPENAI_API_KEY")
	}
	opts := []token.OpenAIOption{}
	if c.Model != "" {
		opts = append(opts, token.WithModel(c.Model))
	}
	if c.Voice != "" {
		opts = append(opts, token.WithVoice(c.Voice))
	}
	return token.NewOpenAI(key, opts...), nil
}

func newConnector(c *cli.Context) (transport.Connector, error) {
	switch c.TransportName() {
	case cli.TransportWebSocket:
		return transport.NewWebSocket(transport.WebSocketConfig{Model: c.Model}), nil
	case cli.TransportWebRTC:
		var ice []webrtc.ICEServer
		if len(c.ICEServers) > 0 {
			ice = []webrtc.ICEServer{{URLs: c.ICEServers}}
		}
		var opts []transport.SDPOption
		if c.Model != "" {
			opts = append(opts, transport.WithSDPModel(c.Model))
		}
		return transport.NewWebRTC(transport.WebRTCConfig{
			Media:      transport.NewSampleSource(),
			Exchanger:  transport.NewSDPExchanger(opts...),
			ICEServers: ice,
		}), nil
	}
	return nil, fmt.Errorf("unknown transport %q", c.Transport)
}
