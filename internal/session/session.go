// Package session owns the live game and serializes every operation on it.
//
// A Session holds an optional game: until Start (or a scratch slot load)
// there is no state and no board, and operations that need them fail with
// snapshot.ErrNotReady. Every mutation rewrites the scratch slot, notifies
// the renderer and appends to the event log.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"turnkeep.app/internal/game"
	"turnkeep.app/internal/persistence/kv"
	persistlog "turnkeep.app/internal/persistence/log"
	"turnkeep.app/internal/persistence/screenshot"
	"turnkeep.app/internal/persistence/snapshot"
	"turnkeep.app/internal/protocol"
)

const DefaultScratchKey = "turnkeep_game_temp"

// Renderer receives STATE and NOTICE messages. transport/ws.Hub is the
// production implementation.
type Renderer interface {
	Broadcast(msg any)
}

type Options struct {
	Rules   game.Rules
	Actions []game.ActionSpec
	// Prefix starts every download file name.
	Prefix string

	KV         kv.Store
	ScratchKey string
	Saves      *snapshot.Store
	Shots      *screenshot.Store

	Renderer Renderer
	Events   *persistlog.EventLog
	Logger   *log.Logger
	Now      func() time.Time
	Rand     *rand.Rand
}

type Session struct {
	opts Options

	mu    sync.Mutex
	state *game.State
	board *game.Board
	// touched collects the actions changed during the current operation.
	touched []string
}

func New(opts Options) (*Session, error) {
	if opts.KV == nil {
		return nil, errors.New("session: kv store is required")
	}
	if opts.Saves == nil || opts.Shots == nil {
		return nil, errors.New("session: snapshot and screenshot stores are required")
	}
	if len(opts.Actions) == 0 {
		return nil, errors.New("session: at least one action is required")
	}
	if opts.ScratchKey == "" {
		opts.ScratchKey = DefaultScratchKey
	}
	if opts.Prefix == "" {
		opts.Prefix = "acciones"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Session{opts: opts}, nil
}

// scratch is the persisted form of the live game.
type scratch struct {
	State   *game.State                `json:"state"`
	Actions map[string]game.ActionData `json:"actions"`
}

// LoadScratch replaces the live game with the one in the scratch slot. A
// missing slot leaves the session without a game; a corrupt one is logged
// and ignored.
func (s *Session) LoadScratch(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.opts.KV.Get(ctx, s.opts.ScratchKey)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load scratch: %w", err)
	}
	var sc scratch
	if err := json.Unmarshal(raw, &sc); err != nil || sc.State == nil {
		s.logf("scratch slot unreadable, starting without a game: %v", err)
		return false, nil
	}
	st := sc.State
	st.History.SetLimit(s.opts.Rules.MaxUndo)
	if st.NumPlayers == 0 {
		st.NumPlayers = len(st.Players)
	}
	s.state = st
	s.board = s.newBoardLocked(len(st.Players))
	if sc.Actions != nil {
		for _, name := range s.board.Merge(sc.Actions) {
			s.logf("scratch slot: action %q not configured, dropped", name)
		}
		s.board.Resize(len(st.Players))
	}
	s.touched = nil
	s.renderLocked("load")
	return true, nil
}

// Start replaces any live game with a fresh one of n players.
func (s *Session) Start(ctx context.Context, n int) (protocol.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := game.NewState(n, s.opts.Rules, s.opts.Rand)
	if err != nil {
		return protocol.View{}, err
	}
	s.state = st
	s.board = s.newBoardLocked(n)
	s.commitLocked(ctx, "start", persistlog.Event{Detail: map[string]any{"players": n}})
	return s.viewLocked(), nil
}

// View returns the live game as the renderer sees it.
func (s *Session) View() (protocol.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readyLocked() {
		return protocol.View{}, snapshot.ErrNotReady
	}
	return s.viewLocked(), nil
}

// Change applies counter deltas to player id.
func (s *Session) Change(ctx context.Context, id int, change game.Change) (protocol.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readyLocked() {
		return protocol.View{}, snapshot.ErrNotReady
	}
	if err := s.state.Apply(id, change); err != nil {
		return protocol.View{}, err
	}
	deltas := make(map[string]any, len(change))
	for c, d := range change {
		deltas[string(c)] = d
	}
	s.commitLocked(ctx, "change", persistlog.Event{Detail: map[string]any{"player": id, "delta": deltas}})
	return s.viewLocked(), nil
}

// Bump moves the board value of action name for player id. The player list
// is checkpointed first so the move shows up as an undo step.
func (s *Session) Bump(ctx context.Context, name string, id, delta int) (protocol.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readyLocked() {
		return protocol.View{}, snapshot.ErrNotReady
	}
	idx := -1
	for i, p := range s.state.Players {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return protocol.View{}, fmt.Errorf("%w: %d", game.ErrUnknownPlayer, id)
	}
	if _, ok := s.board.Action(name); !ok {
		// Let the board build the "did you mean" error.
		return protocol.View{}, s.board.Bump(name, idx, delta)
	}
	if err := s.state.Checkpoint(); err != nil {
		return protocol.View{}, err
	}
	if err := s.board.Bump(name, idx, delta); err != nil {
		return protocol.View{}, err
	}
	s.commitLocked(ctx, "bump", persistlog.Event{Detail: map[string]any{"action": name, "player": id, "delta": delta}})
	return s.viewLocked(), nil
}

// Undo restores the player list from before the last mutation.
func (s *Session) Undo(ctx context.Context) (protocol.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readyLocked() {
		return protocol.View{}, snapshot.ErrNotReady
	}
	if err := s.state.Undo(); err != nil {
		return protocol.View{}, err
	}
	s.commitLocked(ctx, "undo", persistlog.Event{})
	return s.viewLocked(), nil
}

func (s *Session) NextTurn(ctx context.Context) (protocol.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readyLocked() {
		return protocol.View{}, snapshot.ErrNotReady
	}
	if err := s.state.NextTurn(s.opts.Rules); err != nil {
		return protocol.View{}, err
	}
	s.commitLocked(ctx, "next_turn", persistlog.Event{})
	if s.state.Finished() {
		s.noticeLocked("info", "", fmt.Sprintf("game over after %d turns", s.state.TotalTurns))
	}
	return s.viewLocked(), nil
}

// Chart returns one bar series per counter, labelled by player name.
func (s *Session) Chart() (protocol.Chart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readyLocked() {
		return protocol.Chart{}, snapshot.ErrNotReady
	}
	ch := protocol.Chart{Labels: make([]string, 0, len(s.state.Players))}
	for _, p := range s.state.Players {
		ch.Labels = append(ch.Labels, p.Name)
	}
	for _, c := range game.Counters {
		ds := protocol.ChartDataset{Label: string(c), Values: make([]int, 0, len(s.state.Players))}
		for _, p := range s.state.Players {
			ds.Values = append(ds.Values, p.Get(c))
		}
		ch.Datasets = append(ch.Datasets, ds)
	}
	return ch, nil
}

func (s *Session) readyLocked() bool {
	return s.state != nil && s.board != nil
}

func (s *Session) newBoardLocked(n int) *game.Board {
	b := game.NewBoard(s.opts.Actions, n)
	for _, name := range b.Names() {
		a, _ := b.Action(name)
		a.Observe(func(a *game.Action) {
			s.touched = append(s.touched, a.Name())
		})
	}
	return b
}

func (s *Session) viewLocked() protocol.View {
	if !s.readyLocked() {
		return protocol.View{Players: []game.Player{}}
	}
	return protocol.View{
		Ready:       true,
		Turn:        s.state.Turn,
		TotalTurns:  s.state.TotalTurns,
		NumPlayers:  s.state.NumPlayers,
		Finished:    s.state.Finished(),
		UndoDepth:   s.state.History.Len(),
		Players:     append([]game.Player(nil), s.state.Players...),
		ActionOrder: s.board.Names(),
		Actions:     s.board.Data(),
	}
}

// commitLocked runs after every successful mutation: it rewrites the
// scratch slot, journals ev and pushes the new view to the renderer.
func (s *Session) commitLocked(ctx context.Context, reason string, ev persistlog.Event) {
	if err := s.saveScratchLocked(ctx); err != nil {
		s.logf("%s: %v", reason, err)
	}
	ev.Kind = reason
	if s.state != nil {
		ev.Turn = s.state.Turn
	}
	if len(s.touched) > 0 {
		if ev.Detail == nil {
			ev.Detail = map[string]any{}
		}
		ev.Detail["actions"] = dedupe(s.touched)
	}
	s.touched = nil
	s.journal(ev)
	s.renderLocked(reason)
}

func (s *Session) saveScratchLocked(ctx context.Context) error {
	if !s.readyLocked() {
		return s.opts.KV.Remove(ctx, s.opts.ScratchKey)
	}
	b, err := json.Marshal(scratch{State: s.state, Actions: s.board.Data()})
	if err != nil {
		return fmt.Errorf("encode scratch: %w", err)
	}
	if err := s.opts.KV.Set(ctx, s.opts.ScratchKey, b); err != nil {
		return fmt.Errorf("save scratch: %w", err)
	}
	return nil
}

func (s *Session) renderLocked(reason string) {
	if s.opts.Renderer == nil {
		return
	}
	s.opts.Renderer.Broadcast(protocol.NewStateMsg(reason, s.viewLocked()))
}

func (s *Session) noticeLocked(level, code, msg string) {
	if s.opts.Renderer == nil {
		return
	}
	s.opts.Renderer.Broadcast(protocol.NewNoticeMsg(level, code, msg))
}

func (s *Session) journal(ev persistlog.Event) {
	if err := s.opts.Events.Write(ev); err != nil {
		s.logf("event log: %v", err)
	}
}

func (s *Session) logf(format string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Printf(format, args...)
	}
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
