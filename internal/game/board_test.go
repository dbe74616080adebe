package game

import (
	"errors"
	"strings"
	"testing"
)

func testSpecs() []ActionSpec {
	return []ActionSpec{
		{Name: "work", Color: "#f00", Min: 0, Max: 3, PointStyle: "circle", PointRadius: 4, PointBorderWidth: 1},
		{Name: "rest", Color: "#0f0", Min: 0, Max: 5, PointStyle: "rect", PointRadius: 3, PointBorderWidth: 2},
	}
}

func TestBoard_BumpClampsAndCountsOverflow(t *testing.T) {
	b := NewBoard(testSpecs(), 2)
	if err := b.Bump("work", 1, 5); err != nil {
		t.Fatalf("Bump: %v", err)
	}
	a, _ := b.Action("work")
	if a.Values[1] != 3 || a.Overflow[1] != 2 {
		t.Fatalf("values=%v overflow=%v", a.Values, a.Overflow)
	}
	if err := b.Bump("work", 1, -10); err != nil {
		t.Fatalf("Bump: %v", err)
	}
	if a.Values[1] != 0 {
		t.Fatalf("values=%v", a.Values)
	}
	if err := b.Bump("work", 2, 1); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}
}

func TestBoard_BumpUnknownSuggests(t *testing.T) {
	b := NewBoard(testSpecs(), 1)
	err := b.Bump("wrk", 0, 1)
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if !strings.Contains(err.Error(), `"work"`) {
		t.Fatalf("expected suggestion in %q", err.Error())
	}
}

func TestBoard_MergeKeepsIdentityAndObservers(t *testing.T) {
	b := NewBoard(testSpecs(), 2)
	live, _ := b.Action("work")
	calls := 0
	live.Observe(func(*Action) { calls++ })

	data := b.Data()
	d := data["work"]
	d.Values[0] = 2
	d.Color = "#123"
	data["work"] = d
	data["ghost"] = ActionData{Values: []int{1}}

	skipped := b.Merge(data)
	if len(skipped) != 1 || skipped[0] != "ghost" {
		t.Fatalf("skipped=%v", skipped)
	}
	after, _ := b.Action("work")
	if after != live {
		t.Fatalf("merge replaced the live action")
	}
	if live.Values[0] != 2 || live.Color != "#123" {
		t.Fatalf("merge did not copy: %+v", live.ActionData)
	}
	if calls == 0 {
		t.Fatalf("observer lost after merge")
	}
	if _, ok := b.Action("ghost"); ok {
		t.Fatalf("merge created an unknown action")
	}

	// The merged slice must not alias the source.
	d.Values[0] = 3
	if live.Values[0] != 2 {
		t.Fatalf("merge aliased source slice")
	}
}

func TestBoard_DataIsDeepCopy(t *testing.T) {
	b := NewBoard(testSpecs(), 2)
	data := b.Data()
	_ = b.Bump("rest", 0, 2)
	if data["rest"].Values[0] != 0 {
		t.Fatalf("Data aliases live values")
	}
}

func TestBoard_Resize(t *testing.T) {
	b := NewBoard(testSpecs(), 1)
	b.Resize(3)
	a, _ := b.Action("rest")
	if len(a.Values) != 3 || a.MaxSquares[2] != 5 || a.PointStyle[2] != "rect" {
		t.Fatalf("resize: %+v", a.ActionData)
	}
}
