package journal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/haivivi/rolecoach/pkg/realtime"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func event(i int) realtime.Event {
	return realtime.Event{
		Type:      realtime.EventTypeResponseAudioTranscriptDone,
		EventID:   fmt.Sprintf("event_%d", i),
		Timestamp: time.Date(2025, 6, 3, 10, 30, i, 0, time.UTC),
		Raw:       []byte(fmt.Sprintf(`{"type":"response.audio_transcript.done","event_id":"event_%d","transcript":"line %d"}`, i, i)),
	}
}

func TestRecordAndReplay(t *testing.T) {
	j := newTestJournal(t)
	rec, err := j.Begin(Recording{Name: "s1", Scenario: "insurance-sales"})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	// More than ten events so ordering depends on zero padding.
	for i := range 12 {
		if err := rec.Record(event(i)); err != nil {
			t.Fatalf("Record(%d): %v", i, err)
		}
	}

	i := 0
	for ev, err := range j.Replay(context.Background(), "s1") {
		if err != nil {
			t.Fatalf("Replay: %v", err)
		}
		want := event(i)
		if ev.EventID != want.EventID || ev.Type != want.Type {
			t.Errorf("event %d = %s/%s, want %s/%s", i, ev.Type, ev.EventID, want.Type, want.EventID)
		}
		if !ev.Timestamp.Equal(want.Timestamp) {
			t.Errorf("event %d timestamp = %v, want %v", i, ev.Timestamp, want.Timestamp)
		}
		if string(ev.Raw) != string(want.Raw) {
			t.Errorf("event %d raw = %s", i, ev.Raw)
		}
		i++
	}
	if i != 12 {
		t.Errorf("replayed %d events, want 12", i)
	}
}

func TestReplayEarlyStop(t *testing.T) {
	j := newTestJournal(t)
	rec, _ := j.Begin(Recording{Name: "s1"})
	for i := range 5 {
		rec.Record(event(i))
	}
	n := 0
	for range j.Replay(context.Background(), "s1") {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("n = %d, want 2", n)
	}
}

func TestReplayUnknown(t *testing.T) {
	j := newTestJournal(t)
	for _, err := range j.Replay(context.Background(), "nope") {
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Replay error = %v, want ErrNotFound", err)
		}
		return
	}
	t.Error("Replay yielded nothing for an unknown recording")
}

func TestRecordingsAreSeparate(t *testing.T) {
	j := newTestJournal(t)
	a, _ := j.Begin(Recording{Name: "a"})
	ab, _ := j.Begin(Recording{Name: "ab"})
	a.Record(event(1))
	ab.Record(event(2))
	ab.Record(event(3))

	recs, err := j.Recordings(context.Background())
	if err != nil {
		t.Fatalf("Recordings: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Recordings() = %d, want 2", len(recs))
	}
	got := map[string]int{}
	for _, r := range recs {
		got[r.Name] = r.Events
		if r.Started.IsZero() {
			t.Errorf("%s: Started is zero", r.Name)
		}
	}
	if got["a"] != 1 || got["ab"] != 2 {
		t.Errorf("event counts = %v, want a:1 ab:2", got)
	}
}

func TestBeginErrors(t *testing.T) {
	j := newTestJournal(t)
	if _, err := j.Begin(Recording{Name: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := j.Begin(Recording{Name: "x"}); !errors.Is(err, ErrExists) {
		t.Errorf("Begin duplicate error = %v, want ErrExists", err)
	}
	for _, name := range []string{"", "a:b"} {
		if _, err := j.Begin(Recording{Name: name}); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Begin(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestDelete(t *testing.T) {
	j := newTestJournal(t)
	rec, _ := j.Begin(Recording{Name: "gone"})
	rec.Record(event(1))
	if err := j.Delete(context.Background(), "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	recs, _ := j.Recordings(context.Background())
	if len(recs) != 0 {
		t.Errorf("Recordings() after Delete = %v", recs)
	}
	if err := j.Delete(context.Background(), "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete twice error = %v, want ErrNotFound", err)
	}
	// The name can be reused.
	if _, err := j.Begin(Recording{Name: "gone"}); err != nil {
		t.Errorf("Begin after Delete: %v", err)
	}
}

func TestOpenRequiresDir(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Error("Open without Dir succeeded")
	}
}

func TestOnDisk(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec, _ := j.Begin(Recording{Name: "disk"})
	rec.Record(event(7))
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j, err = Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	n := 0
	for ev, err := range j.Replay(context.Background(), "disk") {
		if err != nil {
			t.Fatal(err)
		}
		if ev.EventID != "event_7" {
			t.Errorf("EventID = %q", ev.EventID)
		}
		n++
	}
	if n != 1 {
		t.Errorf("replayed %d, want 1", n)
	}
}
