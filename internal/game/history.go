package game

import (
	"encoding/json"
	"fmt"
)

// History is the in-memory undo stack. Each entry is an opaque JSON
// serialization of the full player list, oldest first.
type History struct {
	entries []string
	limit   int
}

// NewHistory returns an empty stack. limit <= 0 means unbounded.
func NewHistory(limit int) History {
	return History{limit: limit}
}

// HistoryFrom rebuilds a stack from raw serialized entries. Entries that do
// not decode as a player list are dropped.
func HistoryFrom(entries []string, limit int) History {
	h := History{entries: make([]string, 0, len(entries)), limit: limit}
	for _, e := range entries {
		if _, ok := decodeEntry(e); ok {
			h.entries = append(h.entries, e)
		}
	}
	h.trim()
	return h
}

// Limit returns the depth cap (0 for unbounded).
func (h History) Limit() int { return h.limit }

// SetLimit changes the depth cap and trims the oldest entries if needed.
func (h *History) SetLimit(limit int) {
	h.limit = limit
	h.trim()
}

func (h *History) Len() int { return len(h.entries) }

// Push stores a value copy of players on top of the stack.
func (h *History) Push(players []Player) error {
	b, err := json.Marshal(players)
	if err != nil {
		return fmt.Errorf("history push: %w", err)
	}
	h.entries = append(h.entries, string(b))
	h.trim()
	return nil
}

// Pop removes the most recent entry and returns its deserialization. Entries
// that do not decode are discarded on the way down.
func (h *History) Pop() ([]Player, error) {
	for len(h.entries) > 0 {
		last := h.entries[len(h.entries)-1]
		h.entries = h.entries[:len(h.entries)-1]
		if players, ok := decodeEntry(last); ok {
			return players, nil
		}
	}
	return nil, ErrNothingToUndo
}

// decodeEntry parses one serialized player list. A game always has at least
// one player, so an empty list is as unusable as bad JSON.
func decodeEntry(e string) ([]Player, bool) {
	var players []Player
	if err := json.Unmarshal([]byte(e), &players); err != nil || len(players) == 0 {
		return nil, false
	}
	return players, true
}

// Entries returns a copy of the raw serialized entries.
func (h History) Entries() []string {
	return append([]string(nil), h.entries...)
}

func (h History) Clone() History {
	return History{entries: h.Entries(), limit: h.limit}
}

func (h History) MarshalJSON() ([]byte, error) {
	if h.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.entries)
}

func (h *History) UnmarshalJSON(b []byte) error {
	var entries []string
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	h.entries = entries
	h.trim()
	return nil
}

func (h *History) trim() {
	if h.limit <= 0 || len(h.entries) <= h.limit {
		return
	}
	h.entries = append([]string(nil), h.entries[len(h.entries)-h.limit:]...)
}
