package screenshot

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"turnkeep.app/internal/persistence/kv"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func newTestStore(t *testing.T, mem kv.Store, capacity int) *Store {
	t.Helper()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := NewStore(mem, Options{Capacity: capacity, Prefix: "acciones", Now: func() time.Time { return t0 }})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestDecodePNG(t *testing.T) {
	raw := testPNG(t)
	got, err := DecodePNG(raw)
	if err != nil || !bytes.Equal(got, raw) {
		t.Fatalf("raw: err=%v", err)
	}
	url := dataURLPrefix + base64.StdEncoding.EncodeToString(raw)
	got, err = DecodePNG([]byte(url))
	if err != nil || !bytes.Equal(got, raw) {
		t.Fatalf("data url: err=%v", err)
	}

	for _, bad := range []string{"", "data:image/jpeg;base64,AAAA", "data:image/png;base64,!!!", "not an image"} {
		if _, err := DecodePNG([]byte(bad)); !errors.Is(err, ErrCapability) {
			t.Fatalf("%q: expected ErrCapability, got %v", bad, err)
		}
	}
}

func TestCapture_ListGetDelete(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newTestStore(t, mem, 0)
	raw := testPNG(t)

	a, err := s.Capture(ctx, Meta{CurrentTurn: 2, NumPlayers: 3}, raw)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	b, err := s.Capture(ctx, Meta{CurrentTurn: 3, NumPlayers: 3}, raw)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("duplicate ids")
	}
	if !strings.HasPrefix(a.Filename, "acciones_captura_") || !strings.HasSuffix(a.Filename, ".png") {
		t.Fatalf("filename=%q", a.Filename)
	}

	// Stored compressed.
	blob, _ := mem.Get(ctx, DefaultKey)
	if !bytes.HasPrefix(blob, zstdMagic) {
		t.Fatalf("list not zstd-framed")
	}

	var ids []int64
	for sum := range s.List(ctx) {
		ids = append(ids, sum.ID)
		if sum.Label == "" {
			t.Fatalf("empty label")
		}
	}
	if len(ids) != 2 || ids[0] != b.ID {
		t.Fatalf("list order: %v", ids)
	}

	got, err := s.Get(ctx, a.ID)
	if err != nil || !bytes.Equal(got.Image, raw) || got.NumPlayers != 3 {
		t.Fatalf("get: %+v %v", got.Summary(), err)
	}
	if _, err := s.Get(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if removed, err := s.Delete(ctx, a.ID); err != nil || !removed {
		t.Fatalf("delete: %v %v", removed, err)
	}
	if removed, err := s.Delete(ctx, a.ID); err != nil || removed {
		t.Fatalf("second delete: %v %v", removed, err)
	}
}

func TestCapture_RejectsNonPNG(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemory(), 0)
	if _, err := s.Capture(ctx, Meta{}, []byte("GIF89a")); !errors.Is(err, ErrCapability) {
		t.Fatalf("expected ErrCapability, got %v", err)
	}
	n := 0
	for range s.List(ctx) {
		n++
	}
	if n != 0 {
		t.Fatalf("list grew on failure")
	}
}

func TestCapture_Capacity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemory(), 2)
	raw := testPNG(t)
	for turn := 1; turn <= 3; turn++ {
		if _, err := s.Capture(ctx, Meta{CurrentTurn: turn}, raw); err != nil {
			t.Fatalf("capture: %v", err)
		}
	}
	var turns []int
	for sum := range s.List(ctx) {
		turns = append(turns, sum.CurrentTurn)
	}
	if len(turns) != 2 || turns[0] != 3 || turns[1] != 2 {
		t.Fatalf("turns=%v", turns)
	}
}

func TestLoad_PlainJSONAndCorrupt(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	_ = mem.Set(ctx, DefaultKey, []byte(`[{"id":5,"filename":"x.png"}]`))
	s := newTestStore(t, mem, 0)
	if _, err := s.Get(ctx, 5); err != nil {
		t.Fatalf("plain json list not readable: %v", err)
	}
	_ = mem.Set(ctx, DefaultKey, append(append([]byte(nil), zstdMagic...), 1, 2, 3))
	if _, err := s.Get(ctx, 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("corrupt list should read empty, got %v", err)
	}
}
