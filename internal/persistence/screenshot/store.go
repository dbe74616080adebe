// Package screenshot keeps the persisted list of chart screenshots. The list
// is stored as zstd-compressed JSON since every record embeds a PNG.
package screenshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"

	"turnkeep.app/internal/persistence/ids"
	"turnkeep.app/internal/persistence/kv"
)

const DefaultKey = "turnkeep_saved_screenshots_v1"

var ErrNotFound = errors.New("screenshot not found")

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type Record struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	Filename    string `json:"filename"`
	CurrentTurn int    `json:"currentTurn"`
	NumPlayers  int    `json:"numPlayers"`
	Size        int    `json:"size"`
	Image       []byte `json:"image"`
}

// Summary is a Record without its image payload.
type Summary struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	Filename    string `json:"filename"`
	CurrentTurn int    `json:"currentTurn"`
	NumPlayers  int    `json:"numPlayers"`
	Size        int    `json:"size"`
	Label       string `json:"label"`
}

func (r Record) Summary() Summary {
	return Summary{
		ID:          r.ID,
		Date:        r.Date,
		Filename:    r.Filename,
		CurrentTurn: r.CurrentTurn,
		NumPlayers:  r.NumPlayers,
		Size:        r.Size,
		Label:       fmt.Sprintf("%s · turn %d · %s", r.Filename, r.CurrentTurn, humanize.Bytes(uint64(r.Size))),
	}
}

// Meta is the slice of game state stored alongside an image.
type Meta struct {
	CurrentTurn int
	NumPlayers  int
}

type Options struct {
	Key      string
	Capacity int
	// Prefix starts every generated filename.
	Prefix string
	Now    func() time.Time
	Logger *log.Logger
}

type Store struct {
	kv   kv.Store
	opts Options

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu     sync.Mutex
	lastID int64
}

func NewStore(store kv.Store, opts Options) (*Store, error) {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Prefix == "" {
		opts.Prefix = "turnkeep"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, err
	}
	return &Store{kv: store, opts: opts, enc: enc, dec: dec}, nil
}

func (s *Store) Close() {
	_ = s.enc.Close()
	s.dec.Close()
}

// Capture validates payload (raw PNG or data URL) and appends a record.
func (s *Store) Capture(ctx context.Context, meta Meta, payload []byte) (Record, error) {
	img, err := DecodePNG(payload)
	if err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.load(ctx)
	floor := s.lastID
	for _, r := range recs {
		if r.ID > floor {
			floor = r.ID
		}
	}
	now := s.opts.Now()
	id := ids.Next(now, floor)
	s.lastID = id
	rec := Record{
		ID:          id,
		Date:        now.UTC().Format(time.RFC3339Nano),
		Filename:    fmt.Sprintf("%s_captura_%d.png", s.opts.Prefix, id),
		CurrentTurn: meta.CurrentTurn,
		NumPlayers:  meta.NumPlayers,
		Size:        len(img),
		Image:       append([]byte(nil), img...),
	}
	recs = append(recs, rec)
	if c := s.opts.Capacity; c > 0 && len(recs) > c {
		recs = recs[len(recs)-c:]
	}
	if err := s.writeLocked(ctx, recs); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Append stores an imported record. The image must still decode as a PNG;
// a colliding or missing id is reassigned.
func (s *Store) Append(ctx context.Context, rec Record) (Record, error) {
	img, err := DecodePNG(rec.Image)
	if err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.load(ctx)
	floor := s.lastID
	collides := rec.ID <= 0
	for _, r := range recs {
		if r.ID > floor {
			floor = r.ID
		}
		if r.ID == rec.ID {
			collides = true
		}
	}
	now := s.opts.Now()
	if collides {
		rec.ID = ids.Next(now, floor)
	}
	if rec.ID > s.lastID {
		s.lastID = rec.ID
	}
	if rec.Date == "" {
		rec.Date = now.UTC().Format(time.RFC3339Nano)
	}
	if rec.Filename == "" {
		rec.Filename = fmt.Sprintf("%s_captura_%d.png", s.opts.Prefix, rec.ID)
	}
	rec.Image = append([]byte(nil), img...)
	rec.Size = len(img)
	recs = append(recs, rec)
	if c := s.opts.Capacity; c > 0 && len(recs) > c {
		recs = recs[len(recs)-c:]
	}
	if err := s.writeLocked(ctx, recs); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List yields summaries newest first.
func (s *Store) List(ctx context.Context) iter.Seq[Summary] {
	return func(yield func(Summary) bool) {
		s.mu.Lock()
		recs := s.load(ctx)
		s.mu.Unlock()
		for i := len(recs) - 1; i >= 0; i-- {
			if !yield(recs[i].Summary()) {
				return
			}
		}
	}
}

func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.load(ctx) {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %d", ErrNotFound, id)
}

func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.load(ctx)
	out := recs[:0]
	removed := false
	for _, r := range recs {
		if r.ID == id {
			removed = true
			continue
		}
		out = append(out, r)
	}
	if !removed {
		return false, nil
	}
	return true, s.writeLocked(ctx, out)
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Remove(ctx, s.opts.Key)
}

func (s *Store) load(ctx context.Context) []Record {
	b, err := s.kv.Get(ctx, s.opts.Key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logf("load %s: %v", s.opts.Key, err)
		}
		return nil
	}
	if bytes.HasPrefix(b, zstdMagic) {
		b, err = s.dec.DecodeAll(b, nil)
		if err != nil {
			s.logf("load %s: bad zstd frame, treating as empty: %v", s.opts.Key, err)
			return nil
		}
	}
	var recs []Record
	if err := json.Unmarshal(b, &recs); err != nil {
		s.logf("load %s: corrupt list, treating as empty: %v", s.opts.Key, err)
		return nil
	}
	return recs
}

func (s *Store) writeLocked(ctx context.Context, recs []Record) error {
	if recs == nil {
		recs = []Record{}
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode screenshots: %w", err)
	}
	if err := s.kv.Set(ctx, s.opts.Key, s.enc.EncodeAll(b, nil)); err != nil {
		return fmt.Errorf("persist screenshots: %w", err)
	}
	return nil
}

func (s *Store) logf(format string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Printf(format, args...)
	}
}
