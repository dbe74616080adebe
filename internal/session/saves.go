package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"turnkeep.app/internal/game"
	"turnkeep.app/internal/persistence/archive"
	persistlog "turnkeep.app/internal/persistence/log"
	"turnkeep.app/internal/persistence/screenshot"
	"turnkeep.app/internal/persistence/snapshot"
	"turnkeep.app/internal/protocol"
)

// Download is a file handed to the client as an attachment.
type Download struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Save captures the live game into the saved-game list.
func (s *Session) Save(ctx context.Context) (snapshot.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readyLocked() {
		return snapshot.Record{}, snapshot.ErrNotReady
	}
	rec, err := s.opts.Saves.Capture(ctx, s.state, s.board)
	if err != nil {
		return snapshot.Record{}, fmt.Errorf("save: %w", err)
	}
	s.journal(persistlog.Event{Kind: "save", Turn: rec.CurrentTurn, ID: rec.ID})
	s.noticeLocked("info", "", "game saved")
	return rec, nil
}

// Saves lists saved games newest first.
func (s *Session) Saves(ctx context.Context) []snapshot.Summary {
	now := s.opts.Now()
	out := []snapshot.Summary{}
	for rec := range s.opts.Saves.List(ctx) {
		out = append(out, rec.Summary(now))
	}
	return out
}

func (s *Session) SavedGame(ctx context.Context, id int64) (snapshot.Record, error) {
	return s.opts.Saves.Get(ctx, id)
}

// Restore copies saved game id into the live game. Actions the live board
// does not know are skipped and reported in a warning notice.
func (s *Session) Restore(ctx context.Context, id int64) (snapshot.RestoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readyLocked() {
		return snapshot.RestoreResult{}, snapshot.ErrNotReady
	}
	res, err := s.opts.Saves.Restore(ctx, id, s.state, s.board)
	if err != nil {
		return snapshot.RestoreResult{}, err
	}
	// The record may carry a different player count than the live game. A
	// record without a player list still decides the count, so seat or drop
	// players to match it, then keep one board entry per player.
	if res.Record.Players == nil {
		s.state.FitPlayers(res.Record.NumPlayers, s.opts.Rules, s.opts.Rand)
	} else {
		s.state.NumPlayers = len(s.state.Players)
	}
	s.board.Resize(len(s.state.Players))

	ev := persistlog.Event{ID: id}
	if len(res.Skipped) > 0 {
		ev.Detail = map[string]any{"skipped": res.Skipped}
	}
	s.commitLocked(ctx, "restore", ev)
	if len(res.Skipped) > 0 {
		s.noticeLocked("warn", "", skippedMessage(res))
	} else {
		s.noticeLocked("info", "", "game restored")
	}
	return res, nil
}

func skippedMessage(res snapshot.RestoreResult) string {
	parts := make([]string, 0, len(res.Skipped))
	for _, name := range res.Skipped {
		if hint := res.Hints[name]; hint != "" {
			parts = append(parts, fmt.Sprintf("%s (closest: %s)", name, hint))
			continue
		}
		parts = append(parts, name)
	}
	return "restored without unknown actions: " + strings.Join(parts, ", ")
}

// DeleteSave removes saved game id. Deleting a missing id is a no-op.
func (s *Session) DeleteSave(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, err := s.opts.Saves.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		s.journal(persistlog.Event{Kind: "delete_save", ID: id})
	}
	return removed, nil
}

func (s *Session) ClearSaves(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.opts.Saves.Clear(ctx); err != nil {
		return err
	}
	s.journal(persistlog.Event{Kind: "clear_saves"})
	s.noticeLocked("info", "", "saved games cleared")
	return nil
}

// ImportSave validates raw against the snapshot record schema and appends
// it. The stored id may differ from the imported one.
func (s *Session) ImportSave(ctx context.Context, raw []byte) (snapshot.Record, error) {
	if err := protocol.Validate(protocol.SchemaSnapshotRecord, raw); err != nil {
		return snapshot.Record{}, err
	}
	rec, err := snapshot.DecodeRecord(raw)
	if err != nil {
		return snapshot.Record{}, fmt.Errorf("%w: %v", protocol.ErrInvalid, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.opts.Saves.Append(ctx, rec)
	if err != nil {
		return snapshot.Record{}, fmt.Errorf("import: %w", err)
	}
	s.journal(persistlog.Event{Kind: "import_save", Turn: stored.CurrentTurn, ID: stored.ID})
	return stored, nil
}

func (s *Session) ExportSave(ctx context.Context, id int64) (Download, error) {
	rec, err := s.opts.Saves.Get(ctx, id)
	if err != nil {
		return Download{}, err
	}
	return s.exportRecord(rec)
}

// ExportLatest exports the most recent saved game.
func (s *Session) ExportLatest(ctx context.Context) (Download, error) {
	rec, err := s.opts.Saves.Latest(ctx)
	if err != nil {
		return Download{}, err
	}
	return s.exportRecord(rec)
}

func (s *Session) exportRecord(rec snapshot.Record) (Download, error) {
	b, err := rec.Export()
	if err != nil {
		return Download{}, fmt.Errorf("export %d: %w", rec.ID, err)
	}
	return Download{Filename: rec.Filename(s.opts.Prefix), ContentType: "application/json", Body: b}, nil
}

// ExportGame exports the live game with a timestamp.
func (s *Session) ExportGame() (Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readyLocked() {
		return Download{}, snapshot.ErrNotReady
	}
	now := s.opts.Now()
	doc := struct {
		Date    string                     `json:"date"`
		State   *game.State                `json:"state"`
		Actions map[string]game.ActionData `json:"actions"`
	}{
		Date:    now.UTC().Format(time.RFC3339Nano),
		State:   s.state,
		Actions: s.board.Data(),
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Download{}, fmt.Errorf("export game: %w", err)
	}
	return Download{
		Filename:    fmt.Sprintf("%s_%d.json", s.opts.Prefix, now.UnixMilli()),
		ContentType: "application/json",
		Body:        b,
	}, nil
}

// ExportPNG turns the chart canvas encoded by the client into a download.
// A payload that is not a PNG fails with screenshot.ErrCapability.
func (s *Session) ExportPNG(payload []byte) (Download, error) {
	img, err := screenshot.DecodePNG(payload)
	if err != nil {
		return Download{}, err
	}
	return Download{
		Filename:    fmt.Sprintf("%s_grafico_%d.png", s.opts.Prefix, s.opts.Now().UnixMilli()),
		ContentType: "image/png",
		Body:        img,
	}, nil
}

// Backup writes every saved game into a compressed archive.
func (s *Session) Backup(ctx context.Context) (Download, error) {
	now := s.opts.Now()
	var buf bytes.Buffer
	if err := archive.Write(&buf, s.opts.Saves.All(ctx), now); err != nil {
		return Download{}, fmt.Errorf("backup: %w", err)
	}
	return Download{
		Filename:    archive.Filename(s.opts.Prefix, now),
		ContentType: "application/zstd",
		Body:        buf.Bytes(),
	}, nil
}

// RestoreBackup replaces the saved-game list with the archive read from r.
func (s *Session) RestoreBackup(ctx context.Context, r io.Reader) (int, error) {
	_, recs, err := archive.Read(r)
	if err != nil {
		return 0, fmt.Errorf("restore backup: %w", err)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.opts.Saves.Replace(ctx, recs); err != nil {
		return 0, err
	}
	s.journal(persistlog.Event{Kind: "restore_backup", Detail: map[string]any{"count": len(recs)}})
	return len(recs), nil
}

// CaptureScreenshot stores a chart image with the live turn and player
// count (zero when no game is running).
func (s *Session) CaptureScreenshot(ctx context.Context, payload []byte) (screenshot.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var meta screenshot.Meta
	if s.state != nil {
		meta = screenshot.Meta{CurrentTurn: s.state.Turn, NumPlayers: s.state.NumPlayers}
	}
	rec, err := s.opts.Shots.Capture(ctx, meta, payload)
	if err != nil {
		return screenshot.Summary{}, err
	}
	s.journal(persistlog.Event{Kind: "screenshot", Turn: rec.CurrentTurn, ID: rec.ID})
	s.noticeLocked("info", "", "screenshot saved")
	return rec.Summary(), nil
}

// ImportScreenshot validates raw against the screenshot record schema and
// appends it.
func (s *Session) ImportScreenshot(ctx context.Context, raw []byte) (screenshot.Summary, error) {
	if err := protocol.Validate(protocol.SchemaScreenshotRecord, raw); err != nil {
		return screenshot.Summary{}, err
	}
	var rec screenshot.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return screenshot.Summary{}, fmt.Errorf("%w: decode screenshot: %v", protocol.ErrInvalid, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.opts.Shots.Append(ctx, rec)
	if err != nil {
		return screenshot.Summary{}, err
	}
	s.journal(persistlog.Event{Kind: "import_screenshot", Turn: stored.CurrentTurn, ID: stored.ID})
	return stored.Summary(), nil
}

func (s *Session) Screenshots(ctx context.Context) []screenshot.Summary {
	out := []screenshot.Summary{}
	for sum := range s.opts.Shots.List(ctx) {
		out = append(out, sum)
	}
	return out
}

func (s *Session) ScreenshotImage(ctx context.Context, id int64) (Download, error) {
	rec, err := s.opts.Shots.Get(ctx, id)
	if err != nil {
		return Download{}, err
	}
	return Download{Filename: rec.Filename, ContentType: "image/png", Body: rec.Image}, nil
}

func (s *Session) DeleteScreenshot(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, err := s.opts.Shots.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		s.journal(persistlog.Event{Kind: "delete_screenshot", ID: id})
	}
	return removed, nil
}
