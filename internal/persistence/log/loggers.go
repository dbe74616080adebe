package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Event is one journal line describing a session operation.
type Event struct {
	Time   string         `json:"time"`
	Kind   string         `json:"kind"`
	Turn   int            `json:"turn,omitempty"`
	ID     int64          `json:"id,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// EventLog appends events as zstd-compressed JSONL, one file per UTC day:
// <dir>/events-YYYY-MM-DD.jsonl.zst. Every Write flushes a complete zstd
// frame so a crash never leaves a partial line behind.
type EventLog struct {
	dir string
	now func() time.Time

	mu     sync.Mutex
	curDay string
	f      *os.File
	enc    *zstd.Encoder
}

func NewEventLog(dir string) *EventLog {
	return &EventLog{dir: dir, now: time.Now}
}

func (l *EventLog) Write(ev Event) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	if ev.Time == "" {
		ev.Time = now.Format(time.RFC3339Nano)
	}
	day := now.Format("2006-01-02")
	if day != l.curDay || l.f == nil {
		if err := l.rotateLocked(day); err != nil {
			return err
		}
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := l.f.Write(l.enc.EncodeAll(b, nil)); err != nil {
		return fmt.Errorf("event log write: %w", err)
	}
	return nil
}

func (l *EventLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *EventLog) rotateLocked(day string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(dayPath(l.dir, day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.enc = enc
	l.curDay = day
	return nil
}

func (l *EventLog) closeLocked() error {
	var err error
	if l.enc != nil {
		_ = l.enc.Close()
		l.enc = nil
	}
	if l.f != nil {
		err = l.f.Close()
		l.f = nil
	}
	return err
}

func dayPath(dir, day string) string {
	return filepath.Join(dir, fmt.Sprintf("events-%s.jsonl.zst", day))
}

// ReadEvents returns every event under dir in file (day) order.
func ReadEvents(dir string) ([]Event, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "events-") && strings.HasSuffix(e.Name(), ".jsonl.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []Event
	for _, name := range names {
		evs, err := readFile(filepath.Join(dir, name))
		if err != nil {
			return out, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, evs...)
	}
	return out, nil
}

func readFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Event
	br := bufio.NewReader(dec)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			var ev Event
			if jerr := json.Unmarshal(line, &ev); jerr == nil {
				out = append(out, ev)
			}
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}
