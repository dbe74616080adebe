package game

import (
	"fmt"
	"sort"
)

// Counter names one of the per-player resource counters.
type Counter string

const (
	CounterFood     Counter = "food"
	CounterPleasure Counter = "pleasure"
	CounterHealth   Counter = "health"
	CounterGold     Counter = "gold"
)

// Counters lists every counter in display order.
var Counters = []Counter{CounterFood, CounterPleasure, CounterHealth, CounterGold}

type Player struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Food     int    `json:"food"`
	Pleasure int    `json:"pleasure"`
	Health   int    `json:"health"`
	Gold     int    `json:"gold"`
}

func (p *Player) field(c Counter) *int {
	switch c {
	case CounterFood:
		return &p.Food
	case CounterPleasure:
		return &p.Pleasure
	case CounterHealth:
		return &p.Health
	case CounterGold:
		return &p.Gold
	}
	return nil
}

// Get returns the value of counter c (0 for unknown counters).
func (p Player) Get(c Counter) int {
	if f := p.field(c); f != nil {
		return *f
	}
	return 0
}

// Change is a set of counter deltas applied to a single player.
type Change map[Counter]int

func (c Change) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("empty change")
	}
	for k := range c {
		var p Player
		if p.field(k) == nil {
			return fmt.Errorf("%w: %q", ErrUnknownCounter, k)
		}
	}
	return nil
}

// apply adds every delta and clamps the result at zero. Counters may dip
// below zero mid-change but never stay there.
func (c Change) apply(p *Player) {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		f := p.field(Counter(k))
		if f == nil {
			continue
		}
		*f += c[Counter(k)]
		if *f < 0 {
			*f = 0
		}
	}
}

func clonePlayers(in []Player) []Player {
	if in == nil {
		return nil
	}
	out := make([]Player, len(in))
	copy(out, in)
	return out
}
