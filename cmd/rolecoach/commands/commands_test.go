package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haivivi/rolecoach/pkg/cli"
	"github.com/haivivi/rolecoach/pkg/journal"
	"github.com/haivivi/rolecoach/pkg/realtime"
	"github.com/haivivi/rolecoach/pkg/scenario"
	"github.com/haivivi/rolecoach/pkg/token"
	"github.com/haivivi/rolecoach/pkg/transport"
)

func setupTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(cli.ConfigEnv, filepath.Join(dir, "config.yaml"))
	return dir
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	resetFlags(rootCmd)

	var outBuf, errBuf bytes.Buffer
	rootCmd.SetOut(&outBuf)
	rootCmd.SetErr(&errBuf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := execute(t, args...)
	if err != nil {
		t.Fatalf("%v: %v\nstderr: %s", args, err, stderr)
	}
	return stdout
}

func TestVersion(t *testing.T) {
	setupTestEnv(t)
	if out := mustRun(t, "version"); !strings.Contains(out, "rolecoach") {
		t.Fatalf("expected 'rolecoach', got: %s", out)
	}
	if out := mustRun(t, "version", "-v"); !strings.Contains(out, "config:") {
		t.Errorf("verbose version = %s", out)
	}
}

func TestVersionJSON(t *testing.T) {
	setupTestEnv(t)
	out := mustRun(t, "version", "--format", "json")
	if !strings.Contains(out, `"version"`) {
		t.Fatalf("expected JSON, got: %s", out)
	}
	if _, _, err := execute(t, "version", "--format", "toml"); err == nil {
		t.Error("version accepted an unknown format")
	}
}

func TestConfigCommands(t *testing.T) {
	setupTestEnv(t)

	if out := mustRun(t, "config", "list-contexts"); !strings.Contains(out, "No contexts configured") {
		t.Errorf("empty list = %s", out)
	}
	mustRun(t, "config", "add-context", "dev", "--api-key", "sk-1234567890abcdef", "--transport", "websocket")
	mustRun(t, "config", "add-context", "prod", "--token-url", "https://example.com/api/token", "--ice-servers", "stun:a:3478,stun:b:3478")

	out := mustRun(t, "config", "list-contexts")
	for _, want := range []string{"dev", "websocket", "sk-1***********cdef", "prod", "webrtc", "https://example.com/api/token"} {
		if !strings.Contains(out, want) {
			t.Errorf("list-contexts missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "sk-1234567890abcdef") {
		t.Errorf("list-contexts leaked the API key:\n%s", out)
	}

	if got := strings.TrimSpace(mustRun(t, "config", "current-context")); got != "dev" {
		t.Errorf("current-context = %q, want dev", got)
	}
	mustRun(t, "config", "use-context", "prod")
	if got := strings.TrimSpace(mustRun(t, "config", "current-context")); got != "prod" {
		t.Errorf("current-context = %q, want prod", got)
	}

	mustRun(t, "config", "set", "dev", "model", "gpt-4o-realtime-preview-2025-06-03")
	if got := strings.TrimSpace(mustRun(t, "config", "get", "dev", "model")); got != "gpt-4o-realtime-preview-2025-06-03" {
		t.Errorf("get model = %q", got)
	}
	if got := strings.TrimSpace(mustRun(t, "config", "get", "dev", "api_key")); got != "sk-1***********cdef" {
		t.Errorf("get api_key = %q, want masked", got)
	}
	if got := strings.TrimSpace(mustRun(t, "config", "get", "dev", "api_key", "--raw")); got != "sk-1234567890abcdef" {
		t.Errorf("get api_key --raw = %q", got)
	}
	if got := strings.TrimSpace(mustRun(t, "config", "get", "prod", "ice_servers")); got != "stun:a:3478,stun:b:3478" {
		t.Errorf("get ice_servers = %q", got)
	}

	errorCases := [][]string{
		{"config", "use-context", "nope"},
		{"config", "set", "dev", "transport", "udp"},
		{"config", "set", "nope", "model", "x"},
		{"config", "get", "dev", "colour"},
		{"config", "add-context", "dev"},
		{"config", "delete-context", "nope"},
	}
	for _, args := range errorCases {
		if _, _, err := execute(t, args...); err == nil {
			t.Errorf("%v succeeded, want error", args)
		}
	}

	mustRun(t, "config", "delete-context", "prod")
	if out := mustRun(t, "config", "current-context"); !strings.Contains(out, "No current context") {
		t.Errorf("current-context after delete = %s", out)
	}
}

func TestScenarioShow(t *testing.T) {
	setupTestEnv(t)
	out := mustRun(t, "scenario", "show", "--pitch", "がん保険です")
	for _, want := range []string{"-- instructions", "-- opening", "-- reveal", "これから営業のロールプレイングを始めます", "それでは始めてください"} {
		if !strings.Contains(out, want) {
			t.Errorf("scenario show missing %q", want)
		}
	}

	out = mustRun(t, "scenario", "show", "--format", "json")
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if got["name"] != "insurance-sales" || got["reveal"] == "" {
		t.Errorf("scenario show json = %v", got)
	}

	if _, _, err := execute(t, "scenario", "show", "-f", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("scenario show accepted a missing file")
	}
}

func TestScenarioDefault(t *testing.T) {
	setupTestEnv(t)
	out := mustRun(t, "scenario", "default")
	sc, err := scenario.Parse([]byte(out))
	if err != nil {
		t.Fatalf("default scenario does not parse: %v\n%s", err, out)
	}
	if sc.Name != scenario.Default().Name {
		t.Errorf("Name = %q", sc.Name)
	}

	path := filepath.Join(t.TempDir(), "custom.yaml")
	custom := strings.Replace(out, "それでは始めてください", "では、どうぞ", 1)
	os.WriteFile(path, []byte(custom), 0644)
	if out := mustRun(t, "scenario", "show", "-f", path); !strings.Contains(out, "では、どうぞ") {
		t.Errorf("custom scenario not rendered:\n%s", out)
	}
}

var replayLines = []string{
	`{"type":"session.created","event_id":"event_1","session":{"id":"sess_1"}}`,
	`{"type":"session.update","event_id":"evt_abc","session":{}}`,
	``,
	`{"type":"response.audio_transcript.done","event_id":"event_2","item_id":"item_a","transcript":"これから営業のロールプレイングを始めます"}`,
	`{"type":"conversation.item.input_audio_transcription.completed","event_id":"event_3","item_id":"item_b","transcript":"医療保険を検討中です"}`,
	`{"type":"response.audio_transcript.done","event_id":"event_4","item_id":"item_c","transcript":"年齢: 32歳 会社員"}`,
}

type report struct {
	Stage      string           `json:"stage"`
	Pitch      string           `json:"pitch"`
	Sent       []map[string]any `json:"sent"`
	Transcript []struct {
		Speaker string `json:"speaker"`
		Message string `json:"message"`
	} `json:"transcript"`
}

func checkReport(t *testing.T, out string) {
	t.Helper()
	var rep report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if rep.Stage != "roleplay-active" {
		t.Errorf("stage = %q, want roleplay-active", rep.Stage)
	}
	if rep.Pitch != "医療保険を検討中です" {
		t.Errorf("pitch = %q", rep.Pitch)
	}
	var types []string
	for _, ev := range rep.Sent {
		types = append(types, ev["type"].(string))
	}
	want := "session.update,response.create,response.cancel,response.create"
	if got := strings.Join(types, ","); got != want {
		t.Errorf("sent = %s, want %s", got, want)
	}
	if len(rep.Transcript) != 3 {
		t.Fatalf("transcript = %+v, want 3 entries", rep.Transcript)
	}
	if rep.Transcript[1].Speaker != "operator" || rep.Transcript[2].Speaker != "counterparty" {
		t.Errorf("transcript speakers = %+v", rep.Transcript)
	}
}

func TestReplayFile(t *testing.T) {
	setupTestEnv(t)
	path := filepath.Join(t.TempDir(), "session.jsonl")
	os.WriteFile(path, []byte(strings.Join(replayLines, "\n")+"\n"), 0644)

	checkReport(t, mustRun(t, "replay", path, "--format", "json"))

	out := mustRun(t, "replay", path)
	for _, want := range []string{"-- client events (4)", "-- transcript (3)", "stage: roleplay-active", cli.ArrowClient + " "} {
		if !strings.Contains(out, want) {
			t.Errorf("replay output missing %q:\n%s", want, out)
		}
	}
}

func TestReplayArgs(t *testing.T) {
	setupTestEnv(t)
	if _, _, err := execute(t, "replay"); err == nil {
		t.Error("replay without input succeeded")
	}
	if _, _, err := execute(t, "replay", "x.jsonl", "--journal", "x"); err == nil {
		t.Error("replay with two inputs succeeded")
	}
	bad := filepath.Join(t.TempDir(), "bad.jsonl")
	os.WriteFile(bad, []byte("{\"type\":\"session.created\"}\nnot json\n"), 0644)
	if _, _, err := execute(t, "replay", bad); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("replay bad input error = %v, want line 2", err)
	}
}

func TestJournalCommands(t *testing.T) {
	setupTestEnv(t)
	dir := filepath.Join(t.TempDir(), "journal")
	j, err := journal.Open(journal.Options{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := j.Begin(journal.Recording{Name: "s1", Scenario: "insurance-sales"})
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range replayLines {
		if line == "" {
			continue
		}
		ev, err := realtime.ParseEvent([]byte(line))
		if err != nil {
			t.Fatal(err)
		}
		rec.Record(ev)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	out := mustRun(t, "journal", "list", "--dir", dir)
	if !strings.Contains(out, "s1") || !strings.Contains(out, "insurance-sales") || !strings.Contains(out, "5") {
		t.Errorf("journal list = %s", out)
	}

	out = mustRun(t, "journal", "export", "s1", "--dir", dir)
	if n := strings.Count(out, "\n"); n != 4 {
		t.Errorf("export wrote %d lines, want 4 server events:\n%s", n, out)
	}
	if strings.Contains(out, "evt_abc") {
		t.Error("export included a client event without --all")
	}
	if out := mustRun(t, "journal", "export", "s1", "--dir", dir, "--all"); strings.Count(out, "\n") != 5 {
		t.Errorf("export --all = %s", out)
	}

	checkReport(t, mustRun(t, "replay", "--journal", "s1", "--journal-dir", dir, "--format", "json"))

	mustRun(t, "journal", "delete", "s1", "--dir", dir)
	if out := mustRun(t, "journal", "list", "--dir", dir); !strings.Contains(out, "No recordings") {
		t.Errorf("journal list after delete = %s", out)
	}
	if _, _, err := execute(t, "journal", "export", "s1", "--dir", dir); err == nil {
		t.Error("export of a deleted recording succeeded")
	}
}

func TestRevealPending(t *testing.T) {
	tests := []struct {
		types []string
		want  bool
	}{
		{nil, false},
		{[]string{"session.update", "response.create"}, false},
		{[]string{"session.update", "response.create", "response.cancel"}, true},
		{[]string{"session.update", "response.create", "response.cancel", "response.create"}, false},
	}
	for _, tt := range tests {
		if got := revealPending(tt.types); got != tt.want {
			t.Errorf("revealPending(%v) = %v, want %v", tt.types, got, tt.want)
		}
	}
}

func TestNewProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if p, err := newProvider(&cli.Context{TokenURL: "http://localhost/api/token", APIKey: "sk-x"}); err != nil {
		t.Fatal(err)
	} else if _, ok := p.(*token.HTTP); !ok {
		t.Errorf("token_url provider = %T, want *token.HTTP", p)
	}
	if p, err := newProvider(&cli.Context{APIKey: "sk-x"}); err != nil {
		t.Fatal(err)
	} else if _, ok := p.(*token.OpenAI); !ok {
		t.Errorf("api_key provider = %T, want *token.OpenAI", p)
	}
	if _, err := newProvider(&cli.Context{}); err == nil {
		t.Error("newProvider without credentials succeeded")
	}
	t.Setenv("OPENAI_API_KEY", "sk-env")
	if _, err := newProvider(&cli.Context{}); err != nil {
		t.Errorf("newProvider with OPENAI_API_KEY: %v", err)
	}
}

func TestNewConnector(t *testing.T) {
	tests := []struct {
		transport string
		check     func(transport.Connector) bool
	}{
		{"", func(c transport.Connector) bool { _, ok := c.(*transport.WebRTC); return ok }},
		{"webrtc", func(c transport.Connector) bool { _, ok := c.(*transport.WebRTC); return ok }},
		{"websocket", func(c transport.Connector) bool { _, ok := c.(*transport.WebSocket); return ok }},
	}
	for _, tt := range tests {
		c, err := newConnector(&cli.Context{Transport: tt.transport, ICEServers: []string{"stun:a:3478"}})
		if err != nil {
			t.Fatalf("newConnector(%q) error: %v", tt.transport, err)
		}
		if !tt.check(c) {
			t.Errorf("newConnector(%q) = %T", tt.transport, c)
		}
	}
	if _, err := newConnector(&cli.Context{Transport: "carrier-pigeon"}); err == nil {
		t.Error("newConnector accepted an unknown transport")
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	setupTestEnv(t)
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
	noEnv := filepath.Join(t.TempDir(), "none.env")

	if _, _, err := execute(t, "run", "--env-file", noEnv); err == nil || !strings.Contains(err.Error(), "no credentials") {
		t.Errorf("run without credentials error = %v", err)
	}

	env := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(env, []byte("OPENAI_API_KEY=sk-from-dotenv\n"), 0600)
	_, _, err := execute(t, "run", "--env-file", env, "--jq", ".[")
	if err == nil || !strings.Contains(err.Error(), "filter") {
		t.Errorf("run with bad --jq error = %v, want filter error", err)
	}
	if got := os.Getenv("OPENAI_API_KEY"); got != "sk-from-dotenv" {
		t.Errorf("OPENAI_API_KEY = %q, want value from .env", got)
	}

	if _, _, err := execute(t, "run", "--env-file", env, "--transport", "udp"); err == nil {
		t.Error("run accepted an unknown transport")
	}
	if _, _, err := execute(t, "run", "--env-file", env, "-c", "missing"); err == nil {
		t.Error("run accepted an unknown context")
	}
}
