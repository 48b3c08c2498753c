// Package journal records raw realtime events for offline replay.
//
// Recording is opt-in and diagnostic only: a live session never restores
// state from the journal.
//
// Key layout:
//
//	meta:{name}        → msgpack-encoded Recording
//	rec:{name}:{seq}   → msgpack-encoded record, seq zero-padded to 16 digits
//
// Zero-padding keeps lexicographic key order equal to arrival order.
package journal

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/rolecoach/pkg/realtime"
)

var (
	// ErrNotFound is returned for unknown recordings.
	ErrNotFound = errors.New("journal: recording not found")

	// ErrExists is returned by Begin for a name already in use.
	ErrExists = errors.New("journal: recording already exists")

	// ErrInvalidName is returned for empty names or names containing ':'.
	ErrInvalidName = errors.New("journal: invalid recording name")
)

// Options configures a Journal.
type Options struct {
	// Dir is the directory for data files. Required unless InMemory.
	Dir string

	// InMemory keeps everything in memory.
	InMemory bool

	// Logger sets the badger logger. Nil logs only warnings and errors.
	Logger badger.Logger
}

// Recording describes one recorded session.
type Recording struct {
	Name     string    `msgpack:"name"`
	Scenario string    `msgpack:"scenario,omitempty"`
	Started  time.Time `msgpack:"started"`

	// Events is filled in by Recordings.
	Events int `msgpack:"-"`
}

type record struct {
	Type    string `msgpack:"type"`
	EventID string `msgpack:"id,omitempty"`
	Time    int64  `msgpack:"ts"`
	Raw     []byte `msgpack:"raw"`
}

// Journal is a BadgerDB-backed event store.
type Journal struct {
	db *badger.DB
}

// Open opens or creates a journal.
func Open(opts Options) (*Journal, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("journal: Options.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	if opts.Logger != nil {
		dbOpts = dbOpts.WithLogger(opts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(defaultLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the journal.
func (j *Journal) Close() error {
	return j.db.Close()
}

func metaKey(name string) []byte {
	return []byte("meta:" + name)
}

func recordPrefix(name string) []byte {
	return []byte("rec:" + name + ":")
}

func recordKey(name string, seq uint64) []byte {
	return fmt.Appendf(recordPrefix(name), "%016d", seq)
}

func validName(name string) bool {
	return name != "" && !strings.Contains(name, ":")
}

// Begin starts a new recording.
func (j *Journal) Begin(meta Recording) (*Recorder, error) {
	if !validName(meta.Name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, meta.Name)
	}
	if meta.Started.IsZero() {
		meta.Started = time.Now()
	}
	data, err := msgpack.Marshal(&meta)
	if err != nil {
		return nil, err
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(metaKey(meta.Name)); err == nil {
			return ErrExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(metaKey(meta.Name), data)
	})
	if err != nil {
		return nil, err
	}
	return &Recorder{j: j, name: meta.Name}, nil
}

// Recorder appends events to one recording. It is safe for concurrent use.
type Recorder struct {
	j    *Journal
	name string

	mu  sync.Mutex
	seq uint64
}

// Name returns the recording name.
func (r *Recorder) Name() string {
	return r.name
}

// Record appends ev.
func (r *Recorder) Record(ev realtime.Event) error {
	rec := record{Type: ev.Type, EventID: ev.EventID, Raw: ev.Raw}
	if !ev.Timestamp.IsZero() {
		rec.Time = ev.Timestamp.UnixNano()
	}
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := recordKey(r.name, r.seq)
	if err := r.j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return err
	}
	r.seq++
	return nil
}

// Replay yields the events of a recording in arrival order.
func (j *Journal) Replay(ctx context.Context, name string) iter.Seq2[realtime.Event, error] {
	return func(yield func(realtime.Event, error) bool) {
		err := j.db.View(func(txn *badger.Txn) error {
			if _, err := txn.Get(metaKey(name)); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("%w: %s", ErrNotFound, name)
				}
				return err
			}

			prefix := recordPrefix(name)
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				val, err := it.Item().ValueCopy(nil)
				if err != nil {
					if !yield(realtime.Event{}, err) {
						return nil
					}
					continue
				}
				var rec record
				if err := msgpack.Unmarshal(val, &rec); err != nil {
					if !yield(realtime.Event{}, fmt.Errorf("journal: decode %s: %w", it.Item().Key(), err)) {
						return nil
					}
					continue
				}
				ev := realtime.Event{
					Type:    rec.Type,
					EventID: rec.EventID,
					Raw:     rec.Raw,
				}
				if rec.Time != 0 {
					ev.Timestamp = time.Unix(0, rec.Time)
				}
				if !yield(ev, nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(realtime.Event{}, err)
		}
	}
}

// Recordings lists all recordings by name with their event counts.
func (j *Journal) Recordings(ctx context.Context) ([]Recording, error) {
	var out []Recording
	err := j.db.View(func(txn *badger.Txn) error {
		prefix := []byte("meta:")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var meta Recording
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &meta)
			}); err != nil {
				return err
			}
			meta.Events = countPrefix(txn, recordPrefix(meta.Name))
			out = append(out, meta)
		}
		return nil
	})
	return out, err
}

func countPrefix(txn *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n
}

// Delete removes a recording and its events.
func (j *Journal) Delete(ctx context.Context, name string) error {
	var keys [][]byte
	err := j.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(metaKey(name)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, name)
			}
			return err
		}
		keys = append(keys, metaKey(name))
		prefix := recordPrefix(name)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return ctx.Err()
	})
	if err != nil {
		return err
	}

	wb := j.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// defaultLogger wraps the standard log package for badger, suppressing
// debug and info level messages.
type defaultLogger struct{}

func (defaultLogger) Errorf(f string, v ...interface{}) { log.Printf("[badger] ERROR: "+f, v...) }
func (defaultLogger) Warningf(f string, v ...interface{}) {
	log.Printf("[badger] WARN: "+f, v...)
}
func (defaultLogger) Infof(string, ...interface{})  {}
func (defaultLogger) Debugf(string, ...interface{}) {}
