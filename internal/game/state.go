package game

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	ErrNothingToUndo  = errors.New("nothing to undo")
	ErrUnknownPlayer  = errors.New("unknown player")
	ErrUnknownCounter = errors.New("unknown counter")
	ErrUnknownAction  = errors.New("unknown action")
	ErrBadPlayerCount = errors.New("bad player count")
)

// Rules holds the tunable numbers of a game.
type Rules struct {
	StartFood     int
	StartPleasure int
	StartHealth   int
	// Starting gold is drawn uniformly from [0, StartGoldMax].
	StartGoldMax int

	// At the end of every turn players with health below HealthThreshold
	// lose GoldPenalty gold (floored at zero).
	HealthThreshold int
	GoldPenalty     int

	TotalTurns int
	MaxPlayers int
	MaxUndo    int
}

func DefaultRules() Rules {
	return Rules{
		StartFood:       5,
		StartPleasure:   5,
		StartHealth:     5,
		StartGoldMax:    2,
		HealthThreshold: 3,
		GoldPenalty:     1,
		TotalTurns:      20,
		MaxPlayers:      8,
		MaxUndo:         0,
	}
}

// State is the live game: players in creation order, turn counters and the
// undo stack.
type State struct {
	Players    []Player `json:"players"`
	NumPlayers int      `json:"numPlayers"`
	Turn       int      `json:"turn"`
	TotalTurns int      `json:"totalTurns"`
	History    History  `json:"history"`
}

// NewState creates n players with the starting counters from r.
func NewState(n int, r Rules, rng *rand.Rand) (*State, error) {
	if n <= 0 || (r.MaxPlayers > 0 && n > r.MaxPlayers) {
		return nil, fmt.Errorf("%w: %d", ErrBadPlayerCount, n)
	}
	players := make([]Player, n)
	for i := range players {
		players[i] = newPlayer(i+1, r, rng)
	}
	return &State{
		Players:    players,
		NumPlayers: n,
		Turn:       1,
		TotalTurns: r.TotalTurns,
		History:    NewHistory(r.MaxUndo),
	}, nil
}

func newPlayer(id int, r Rules, rng *rand.Rand) Player {
	gold := 0
	if r.StartGoldMax > 0 {
		gold = rng.Intn(r.StartGoldMax + 1)
	}
	return Player{
		ID:       id,
		Name:     fmt.Sprintf("Player %d", id),
		Food:     r.StartFood,
		Pleasure: r.StartPleasure,
		Health:   r.StartHealth,
		Gold:     gold,
	}
}

// FitPlayers makes the player list n long: extra players are dropped from
// the end, missing ones are seated with the starting counters and ids after
// the highest existing one. NumPlayers follows. n <= 0 leaves the list as is.
func (s *State) FitPlayers(n int, r Rules, rng *rand.Rand) {
	if n <= 0 {
		s.NumPlayers = len(s.Players)
		return
	}
	if len(s.Players) > n {
		s.Players = append([]Player(nil), s.Players[:n]...)
	}
	next := 0
	for _, p := range s.Players {
		if p.ID > next {
			next = p.ID
		}
	}
	for len(s.Players) < n {
		next++
		s.Players = append(s.Players, newPlayer(next, r, rng))
	}
	s.NumPlayers = n
}

func (s *State) Player(id int) (*Player, bool) {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i], true
		}
	}
	return nil, false
}

// Apply records the current players on the undo stack, then applies change
// to player id.
func (s *State) Apply(id int, change Change) error {
	if err := change.Validate(); err != nil {
		return err
	}
	p, ok := s.Player(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPlayer, id)
	}
	if err := s.History.Push(s.Players); err != nil {
		return err
	}
	change.apply(p)
	return nil
}

// Checkpoint pushes the current players onto the undo stack without
// changing anything else.
func (s *State) Checkpoint() error {
	return s.History.Push(s.Players)
}

// NextTurn advances the turn and applies the end-of-turn health penalty. The
// pre-turn players are pushed first so Undo reverses the automatic effect.
func (s *State) NextTurn(r Rules) error {
	if err := s.History.Push(s.Players); err != nil {
		return err
	}
	s.Turn++
	for i := range s.Players {
		p := &s.Players[i]
		if p.Health < r.HealthThreshold {
			p.Gold -= r.GoldPenalty
			if p.Gold < 0 {
				p.Gold = 0
			}
		}
	}
	return nil
}

// Undo pops the most recent player snapshot. The turn counter is left alone.
func (s *State) Undo() error {
	players, err := s.History.Pop()
	if err != nil {
		return err
	}
	s.Players = players
	return nil
}

// Finished reports whether the planned number of turns has been played.
func (s *State) Finished() bool {
	return s.TotalTurns > 0 && s.Turn > s.TotalTurns
}

// Clone returns a deep copy; the result shares no memory with s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	return &State{
		Players:    clonePlayers(s.Players),
		NumPlayers: s.NumPlayers,
		Turn:       s.Turn,
		TotalTurns: s.TotalTurns,
		History:    s.History.Clone(),
	}
}
