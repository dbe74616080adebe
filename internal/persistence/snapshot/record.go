package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"turnkeep.app/internal/game"
)

// Record is an immutable point-in-time capture of a game. Every slice and
// map is owned by the record and never shared with live state.
type Record struct {
	ID          int64                      `json:"id"`
	Date        string                     `json:"date"`
	NumPlayers  int                        `json:"numPlayers"`
	TotalTurns  int                        `json:"totalTurns"`
	CurrentTurn int                        `json:"currentTurn"`
	Players     []game.Player              `json:"players,omitempty"`
	History     []string                   `json:"history"`
	Actions     map[string]game.ActionData `json:"actions"`
}

// newRecord deep-copies the serializable surface of state and board.
func newRecord(id int64, now time.Time, state *game.State, board *game.Board) Record {
	players := make([]game.Player, len(state.Players))
	copy(players, state.Players)
	return Record{
		ID:          id,
		Date:        now.UTC().Format(time.RFC3339Nano),
		NumPlayers:  state.NumPlayers,
		TotalTurns:  state.TotalTurns,
		CurrentTurn: state.Turn,
		Players:     players,
		History:     state.History.Entries(),
		Actions:     board.Data(),
	}
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	if r.Players != nil {
		out.Players = append([]game.Player(nil), r.Players...)
	}
	if r.History != nil {
		out.History = append([]string(nil), r.History...)
	}
	if r.Actions != nil {
		out.Actions = make(map[string]game.ActionData, len(r.Actions))
		for k, v := range r.Actions {
			out.Actions[k] = v.Clone()
		}
	}
	return out
}

// Time parses Date; the zero time is returned for malformed dates.
func (r Record) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Label is the one-line description shown in saved-game pickers.
func (r Record) Label(now time.Time) string {
	t := r.Time()
	if t.IsZero() {
		return fmt.Sprintf("#%d (%d players)", r.ID, r.NumPlayers)
	}
	return fmt.Sprintf("%s (%d players, turn %d)", humanize.RelTime(t, now, "ago", "from now"), r.NumPlayers, r.CurrentTurn)
}

// Summary is the picker entry for a record: everything but the payload.
type Summary struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	NumPlayers  int    `json:"numPlayers"`
	TotalTurns  int    `json:"totalTurns"`
	CurrentTurn int    `json:"currentTurn"`
	Label       string `json:"label"`
}

func (r Record) Summary(now time.Time) Summary {
	return Summary{
		ID:          r.ID,
		Date:        r.Date,
		NumPlayers:  r.NumPlayers,
		TotalTurns:  r.TotalTurns,
		CurrentTurn: r.CurrentTurn,
		Label:       r.Label(now),
	}
}

// Filename is the download name for an exported record.
func (r Record) Filename(prefix string) string {
	return fmt.Sprintf("%s_partida_%d.json", prefix, r.ID)
}

// Export encodes r as indented JSON text.
func (r Record) Export() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// DecodeRecord parses an exported record. Older exports wrote an object (not
// an array) under "history"; such a history is dropped.
func DecodeRecord(raw []byte) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if h, ok := fields["history"]; ok {
		if h = bytes.TrimSpace(h); len(h) == 0 || h[0] != '[' {
			delete(fields, "history")
			b, err := json.Marshal(fields)
			if err != nil {
				return Record{}, fmt.Errorf("decode record: %w", err)
			}
			raw = b
		}
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
