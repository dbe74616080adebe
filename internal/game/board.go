package game

import (
	"fmt"

	"github.com/agnivade/levenshtein"
)

// ActionSpec configures one named action of the board.
type ActionSpec struct {
	Name             string
	Color            string
	Min              int
	Max              int
	PointStyle       string
	PointRadius      float64
	PointBorderWidth float64
}

// ActionData is the serializable surface of an action. Every slice holds one
// entry per player.
type ActionData struct {
	Color            string    `json:"color"`
	Values           []int     `json:"values"`
	MinSquares       []int     `json:"minSquares"`
	MaxSquares       []int     `json:"maxSquares"`
	Overflow         []int     `json:"overflow"`
	PointStyle       []string  `json:"pointStyle"`
	PointRadius      []float64 `json:"pointRadius"`
	PointBorderWidth []float64 `json:"pointBorderWidth"`
}

func (d ActionData) Clone() ActionData {
	return ActionData{
		Color:            d.Color,
		Values:           cloneSlice(d.Values),
		MinSquares:       cloneSlice(d.MinSquares),
		MaxSquares:       cloneSlice(d.MaxSquares),
		Overflow:         cloneSlice(d.Overflow),
		PointStyle:       cloneSlice(d.PointStyle),
		PointRadius:      cloneSlice(d.PointRadius),
		PointBorderWidth: cloneSlice(d.PointBorderWidth),
	}
}

// Action is a live board entry. Observers attached with Observe are not part
// of the serialized data and survive Board.Merge.
type Action struct {
	ActionData
	name      string
	observers []func(*Action)
}

func (a *Action) Name() string { return a.name }

// Observe attaches fn; it runs after every change to the action's data.
func (a *Action) Observe(fn func(*Action)) {
	a.observers = append(a.observers, fn)
}

func (a *Action) changed() {
	for _, fn := range a.observers {
		fn(a)
	}
}

// Board is the named-action configuration map.
type Board struct {
	order   []string
	actions map[string]*Action
	specs   map[string]ActionSpec
}

func NewBoard(specs []ActionSpec, numPlayers int) *Board {
	b := &Board{
		actions: make(map[string]*Action, len(specs)),
		specs:   make(map[string]ActionSpec, len(specs)),
	}
	for _, sp := range specs {
		if _, dup := b.actions[sp.Name]; dup {
			continue
		}
		b.order = append(b.order, sp.Name)
		b.specs[sp.Name] = sp
		b.actions[sp.Name] = &Action{name: sp.Name, ActionData: ActionData{Color: sp.Color}}
	}
	b.Resize(numPlayers)
	return b
}

// Names returns action names in configuration order.
func (b *Board) Names() []string {
	return append([]string(nil), b.order...)
}

func (b *Board) Action(name string) (*Action, bool) {
	a, ok := b.actions[name]
	return a, ok
}

// Resize grows or shrinks every per-player slice to n entries. New entries
// take the configured defaults.
func (b *Board) Resize(n int) {
	if n < 0 {
		n = 0
	}
	for _, name := range b.order {
		a := b.actions[name]
		sp := b.specs[name]
		a.Values = resize(a.Values, n, sp.Min)
		a.MinSquares = resize(a.MinSquares, n, sp.Min)
		a.MaxSquares = resize(a.MaxSquares, n, sp.Max)
		a.Overflow = resize(a.Overflow, n, 0)
		a.PointStyle = resize(a.PointStyle, n, sp.PointStyle)
		a.PointRadius = resize(a.PointRadius, n, sp.PointRadius)
		a.PointBorderWidth = resize(a.PointBorderWidth, n, sp.PointBorderWidth)
	}
}

// Bump adds delta to the value of action name for the player at index idx
// (0-based). The value is clamped into [min, max]; whatever exceeds max is
// counted in overflow.
func (b *Board) Bump(name string, idx, delta int) error {
	a, ok := b.actions[name]
	if !ok {
		if hint := b.Suggest(name); hint != "" {
			return fmt.Errorf("%w: %q (did you mean %q?)", ErrUnknownAction, name, hint)
		}
		return fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	if idx < 0 || idx >= len(a.Values) {
		return fmt.Errorf("%w: index %d", ErrUnknownPlayer, idx)
	}
	v := a.Values[idx] + delta
	lo, hi := at(a.MinSquares, idx), at(a.MaxSquares, idx)
	if hi >= lo && v > hi {
		if idx < len(a.Overflow) {
			a.Overflow[idx] += v - hi
		}
		v = hi
	}
	if v < lo {
		v = lo
	}
	a.Values[idx] = v
	a.changed()
	return nil
}

// Data returns a deep copy of every action's serializable fields.
func (b *Board) Data() map[string]ActionData {
	out := make(map[string]ActionData, len(b.actions))
	for name, a := range b.actions {
		out[name] = a.ActionData.Clone()
	}
	return out
}

// Merge copies the fields of data into the live actions with the same name.
//
// Live *Action values are never replaced: slices are copied element-wise into
// fresh backing arrays owned by the board and observers are kept. Names in
// data without a live action are returned in skipped and left alone. Nil
// slices in data count as absent fields.
func (b *Board) Merge(data map[string]ActionData) (skipped []string) {
	for _, name := range sortedKeys(data) {
		a, ok := b.actions[name]
		if !ok {
			skipped = append(skipped, name)
			continue
		}
		d := data[name]
		if d.Color != "" {
			a.Color = d.Color
		}
		mergeSlice(&a.Values, d.Values)
		mergeSlice(&a.MinSquares, d.MinSquares)
		mergeSlice(&a.MaxSquares, d.MaxSquares)
		mergeSlice(&a.Overflow, d.Overflow)
		mergeSlice(&a.PointStyle, d.PointStyle)
		mergeSlice(&a.PointRadius, d.PointRadius)
		mergeSlice(&a.PointBorderWidth, d.PointBorderWidth)
		a.changed()
	}
	return skipped
}

// Suggest returns the live action name closest to name, or "" when nothing
// is reasonably close.
func (b *Board) Suggest(name string) string {
	best, bestDist := "", -1
	for _, cand := range b.order {
		d := levenshtein.ComputeDistance(name, cand)
		if d > suggestLimit(len(cand)) {
			continue
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = cand, d
		}
	}
	return best
}

func suggestLimit(n int) int {
	switch {
	case n <= 4:
		return 1
	case n <= 8:
		return 2
	default:
		return 3
	}
}

func at(s []int, i int) int {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func resize[T any](s []T, n int, fill T) []T {
	if len(s) >= n {
		return s[:n:n]
	}
	out := make([]T, n)
	copy(out, s)
	for i := len(s); i < n; i++ {
		out[i] = fill
	}
	return out
}

func mergeSlice[T any](dst *[]T, src []T) {
	if src == nil {
		return
	}
	*dst = cloneSlice(src)
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
