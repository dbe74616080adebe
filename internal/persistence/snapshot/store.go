// Package snapshot keeps the persisted list of saved games.
//
// The whole list lives under one key as a JSON array in chronological order
// and is rewritten in full on every change.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log"
	"sync"
	"time"

	"turnkeep.app/internal/game"
	"turnkeep.app/internal/persistence/ids"
	"turnkeep.app/internal/persistence/kv"
)

const DefaultKey = "turnkeep_saved_games_v1"

var (
	// ErrNotReady means there is no live game (or no action board) to read
	// from or restore into.
	ErrNotReady = errors.New("game not ready")
	ErrNotFound = errors.New("saved game not found")
)

type Options struct {
	Key string
	// Capacity caps the list length; the oldest records are evicted first.
	// Zero means unbounded.
	Capacity int
	Now      func() time.Time
	Logger   *log.Logger
}

type Store struct {
	kv   kv.Store
	opts Options

	mu     sync.Mutex
	lastID int64
}

func NewStore(store kv.Store, opts Options) *Store {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{kv: store, opts: opts}
}

// Capture appends a deep copy of state and board to the list.
func (s *Store) Capture(ctx context.Context, state *game.State, board *game.Board) (Record, error) {
	if state == nil || board == nil {
		return Record{}, ErrNotReady
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.load(ctx)
	now := s.opts.Now()
	rec := newRecord(s.nextIDLocked(now, recs), now, state, board)
	recs = append(recs, rec)
	if err := s.saveLocked(ctx, recs); err != nil {
		return Record{}, err
	}
	return rec.Clone(), nil
}

// Append stores an externally produced record (an import). The id is
// reassigned when it would collide with an existing one.
func (s *Store) Append(ctx context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.load(ctx)
	collides := rec.ID <= 0
	for _, r := range recs {
		if r.ID == rec.ID {
			collides = true
			break
		}
	}
	if collides {
		rec.ID = s.nextIDLocked(s.opts.Now(), recs)
	} else if rec.ID > s.lastID {
		s.lastID = rec.ID
	}
	if rec.Date == "" {
		rec.Date = s.opts.Now().UTC().Format(time.RFC3339Nano)
	}
	rec = rec.Clone()
	recs = append(recs, rec)
	if err := s.saveLocked(ctx, recs); err != nil {
		return Record{}, err
	}
	return rec.Clone(), nil
}

// List yields records newest first. Each call re-reads the persisted list.
func (s *Store) List(ctx context.Context) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		s.mu.Lock()
		recs := s.load(ctx)
		s.mu.Unlock()
		for i := len(recs) - 1; i >= 0; i-- {
			if !yield(recs[i]) {
				return
			}
		}
	}
}

// All returns the list in chronological order.
func (s *Store) All(ctx context.Context) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) Len(ctx context.Context) int {
	return len(s.All(ctx))
}

func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	for _, r := range s.All(ctx) {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %d", ErrNotFound, id)
}

// Latest returns the most recently appended record.
func (s *Store) Latest(ctx context.Context) (Record, error) {
	recs := s.All(ctx)
	if len(recs) == 0 {
		return Record{}, ErrNotFound
	}
	return recs[len(recs)-1], nil
}

// RestoreResult describes what a restore did not copy.
type RestoreResult struct {
	Record Record
	// Skipped lists record actions with no live counterpart.
	Skipped []string
	// Hints maps a skipped action to the closest live action name.
	Hints map[string]string
}

// Restore copies record id into the live state and board.
//
// Scalars (numPlayers, totalTurns, currentTurn) are overwritten. Players and
// history are replaced by value copies when the record carries them. Actions
// are merged field by field into the existing live actions (see
// game.Board.Merge); the live board is never swapped out.
func (s *Store) Restore(ctx context.Context, id int64, state *game.State, board *game.Board) (RestoreResult, error) {
	if state == nil || board == nil {
		return RestoreResult{}, ErrNotReady
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return RestoreResult{}, err
	}

	res := RestoreResult{Record: rec}
	if rec.Actions != nil {
		res.Skipped = board.Merge(rec.Actions)
	}
	for _, name := range res.Skipped {
		hint := board.Suggest(name)
		if hint != "" {
			if res.Hints == nil {
				res.Hints = map[string]string{}
			}
			res.Hints[name] = hint
		}
		s.logf("restore %d: action %q not on live board (closest %q), skipped", id, name, hint)
	}

	state.NumPlayers = rec.NumPlayers
	state.TotalTurns = rec.TotalTurns
	state.Turn = rec.CurrentTurn
	if rec.Players != nil {
		state.Players = append([]game.Player(nil), rec.Players...)
	}
	if rec.History != nil {
		h := game.HistoryFrom(rec.History, 0)
		if dropped := len(rec.History) - h.Len(); dropped > 0 {
			s.logf("restore %d: dropped %d unreadable history entries", id, dropped)
		}
		h.SetLimit(state.History.Limit())
		state.History = h
	}
	return res, nil
}

// Delete removes record id. A missing id is not an error; removed reports
// whether anything changed.
func (s *Store) Delete(ctx context.Context, id int64) (removed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.load(ctx)
	out := recs[:0]
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
	return true, s.saveLocked(ctx, out)
}

// Clear drops the whole list.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Remove(ctx, s.opts.Key)
}

// Replace overwrites the list with recs (used by backup restore). A missing
// or repeated id is reassigned past every other id. Capacity applies as
// usual.
func (s *Store) Replace(ctx context.Context, recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Record, len(recs))
	for i, r := range recs {
		cp[i] = r.Clone()
	}
	now := s.opts.Now()
	seen := make(map[int64]bool, len(cp))
	for i := range cp {
		if cp[i].ID <= 0 || seen[cp[i].ID] {
			old := cp[i].ID
			cp[i].ID = s.nextIDLocked(now, cp)
			s.logf("replace: id %d already taken, renumbered to %d", old, cp[i].ID)
		}
		seen[cp[i].ID] = true
		if cp[i].ID > s.lastID {
			s.lastID = cp[i].ID
		}
	}
	return s.saveLocked(ctx, cp)
}

// Prune evicts the oldest records until at most keep remain.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.load(ctx)
	if keep < 0 || len(recs) <= keep {
		return 0, nil
	}
	n := len(recs) - keep
	return n, s.writeLocked(ctx, recs[n:])
}

// nextIDLocked returns an id strictly greater than every id handed out or
// stored so far.
func (s *Store) nextIDLocked(now time.Time, recs []Record) int64 {
	floor := s.lastID
	for _, r := range recs {
		if r.ID > floor {
			floor = r.ID
		}
	}
	s.lastID = ids.Next(now, floor)
	return s.lastID
}

// load reads the persisted list. Missing or corrupt data reads as empty.
func (s *Store) load(ctx context.Context) []Record {
	b, err := s.kv.Get(ctx, s.opts.Key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logf("load %s: %v", s.opts.Key, err)
		}
		return nil
	}
	var recs []Record
	if err := json.Unmarshal(b, &recs); err != nil {
		s.logf("load %s: corrupt list, treating as empty: %v", s.opts.Key, err)
		return nil
	}
	return recs
}

func (s *Store) saveLocked(ctx context.Context, recs []Record) error {
	if c := s.opts.Capacity; c > 0 && len(recs) > c {
		evicted := len(recs) - c
		recs = recs[evicted:]
		s.logf("capacity %d reached, evicted %d oldest", c, evicted)
	}
	return s.writeLocked(ctx, recs)
}

func (s *Store) writeLocked(ctx context.Context, recs []Record) error {
	if recs == nil {
		recs = []Record{}
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode saved games: %w", err)
	}
	if err := s.kv.Set(ctx, s.opts.Key, b); err != nil {
		return fmt.Errorf("persist saved games: %w", err)
	}
	return nil
}

func (s *Store) logf(format string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Printf(format, args...)
	}
}
