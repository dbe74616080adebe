package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"turnkeep.app/internal/game"
	"turnkeep.app/internal/persistence/kv"
	"turnkeep.app/internal/persistence/screenshot"
	"turnkeep.app/internal/persistence/snapshot"
	"turnkeep.app/internal/protocol"
	"turnkeep.app/internal/session"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	mem := kv.NewMemory()
	var tick int64
	clock := func() time.Time {
		tick++
		return time.UnixMilli(1_700_000_000_000 + tick)
	}
	saves := snapshot.NewStore(mem, snapshot.Options{Capacity: 10, Now: clock})
	shots, err := screenshot.NewStore(mem, screenshot.Options{Capacity: 5, Prefix: "acciones", Now: clock})
	if err != nil {
		t.Fatalf("screenshot store: %v", err)
	}
	t.Cleanup(shots.Close)
	sess, err := session.New(session.Options{
		Rules:   game.DefaultRules(),
		Actions: []game.ActionSpec{{Name: "work", Color: "#f00", Min: 0, Max: 5}},
		Prefix:  "acciones",
		KV:      mem,
		Saves:   saves,
		Shots:   shots,
		Now:     clock,
		Rand:    rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return NewServer(sess, Options{Logger: log.New(io.Discard, "", 0)}).Router()
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r).WithContext(context.Background())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status=%d want %d body=%s", rec.Code, status, rec.Body.String())
	}
	var body protocol.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	if body.Code != code {
		t.Fatalf("code=%q want %q (%s)", body.Code, code, body.Message)
	}
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) protocol.View {
	t.Helper()
	var v protocol.View
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v (%s)", err, rec.Body.String())
	}
	return v
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t)
	if rec := do(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz=%d", rec.Code)
	}
}

func TestGame_NotReadyBeforeStart(t *testing.T) {
	h := newTestHandler(t)
	expectError(t, do(t, h, http.MethodGet, "/api/game", nil), http.StatusConflict, protocol.ErrNotReady)
	expectError(t, do(t, h, http.MethodPost, "/api/saves", nil), http.StatusConflict, protocol.ErrNotReady)

	rec := do(t, h, http.MethodGet, "/api/saves", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("saves=%d %s", rec.Code, rec.Body.String())
	}
}

func TestGame_StartChangeUndo(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, http.MethodPost, "/api/game", []byte(`{"players":2}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("start=%d %s", rec.Code, rec.Body.String())
	}
	before := decodeView(t, rec).Players[0].Gold

	rec = do(t, h, http.MethodPost, "/api/game/players/1/change", []byte(`{"gold":1}`))
	if v := decodeView(t, rec); v.Players[0].Gold != before+1 || v.UndoDepth != 1 {
		t.Fatalf("after change=%+v", v)
	}
	rec = do(t, h, http.MethodPost, "/api/game/undo", nil)
	if v := decodeView(t, rec); v.Players[0].Gold != before {
		t.Fatalf("after undo gold=%d want %d", v.Players[0].Gold, before)
	}
	expectError(t, do(t, h, http.MethodPost, "/api/game/undo", nil), http.StatusConflict, protocol.ErrNothingToUndo)

	expectError(t, do(t, h, http.MethodPost, "/api/game/players/1/change", []byte(`{"luck":1}`)), http.StatusBadRequest, protocol.ErrBadRequest)
	expectError(t, do(t, h, http.MethodPost, "/api/game/players/7/change", []byte(`{"gold":1}`)), http.StatusNotFound, protocol.ErrNotFound)
	expectError(t, do(t, h, http.MethodPost, "/api/game", []byte(`{"players":0}`)), http.StatusBadRequest, protocol.ErrBadRequest)
	expectError(t, do(t, h, http.MethodPost, "/api/game", []byte(`nope`)), http.StatusBadRequest, protocol.ErrBadRequest)
}

func TestGame_BumpNextTurnChart(t *testing.T) {
	h := newTestHandler(t)
	do(t, h, http.MethodPost, "/api/game", []byte(`{"players":2}`))

	rec := do(t, h, http.MethodPost, "/api/game/actions/work/bump", []byte(`{"player":1,"delta":9}`))
	v := decodeView(t, rec)
	if v.Actions["work"].Values[0] != 5 || v.Actions["work"].Overflow[0] != 4 {
		t.Fatalf("work=%+v", v.Actions["work"])
	}
	expectError(t, do(t, h, http.MethodPost, "/api/game/actions/wrk/bump", []byte(`{"player":1,"delta":1}`)), http.StatusNotFound, protocol.ErrNotFound)

	rec = do(t, h, http.MethodPost, "/api/game/next-turn", nil)
	if v := decodeView(t, rec); v.Turn != 2 {
		t.Fatalf("turn=%d", v.Turn)
	}

	rec = do(t, h, http.MethodGet, "/api/game/chart", nil)
	var ch protocol.Chart
	if err := json.Unmarshal(rec.Body.Bytes(), &ch); err != nil || len(ch.Labels) != 2 || len(ch.Datasets) != 4 {
		t.Fatalf("chart=%s err=%v", rec.Body.String(), err)
	}
}

func TestSaves_Lifecycle(t *testing.T) {
	h := newTestHandler(t)
	do(t, h, http.MethodPost, "/api/game", []byte(`{"players":3}`))

	rec := do(t, h, http.MethodPost, "/api/saves", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("save=%d %s", rec.Code, rec.Body.String())
	}
	var saved snapshot.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	id := itoa(saved.ID)

	rec = do(t, h, http.MethodGet, "/api/saves/"+id+"/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export=%d", rec.Code)
	}
	want := `attachment; filename="acciones_partida_` + id + `.json"`
	if got := rec.Header().Get("Content-Disposition"); got != want {
		t.Fatalf("disposition=%q want %q", got, want)
	}
	exported := rec.Body.Bytes()

	rec = do(t, h, http.MethodGet, "/api/saves/latest/export", nil)
	if !bytes.Equal(rec.Body.Bytes(), exported) {
		t.Fatalf("latest export differs")
	}

	do(t, h, http.MethodPost, "/api/game/next-turn", nil)
	rec = do(t, h, http.MethodPost, "/api/saves/"+id+"/restore", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("restore=%d %s", rec.Code, rec.Body.String())
	}
	var restored struct {
		View protocol.View `json:"view"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &restored); err != nil || restored.View.Turn != 1 {
		t.Fatalf("restore body=%s err=%v", rec.Body.String(), err)
	}

	rec = do(t, h, http.MethodPost, "/api/saves/import", exported)
	if rec.Code != http.StatusCreated {
		t.Fatalf("import=%d %s", rec.Code, rec.Body.String())
	}
	expectError(t, do(t, h, http.MethodPost, "/api/saves/import", []byte(`{"id":"x"}`)), http.StatusUnprocessableEntity, protocol.ErrSchema)

	var list []snapshot.Summary
	rec = do(t, h, http.MethodGet, "/api/saves", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 2 {
		t.Fatalf("list=%s err=%v", rec.Body.String(), err)
	}

	rec = do(t, h, http.MethodDelete, "/api/saves/"+id, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"removed":true`) {
		t.Fatalf("delete=%d %s", rec.Code, rec.Body.String())
	}
	expectError(t, do(t, h, http.MethodGet, "/api/saves/"+id, nil), http.StatusNotFound, protocol.ErrNotFound)
	expectError(t, do(t, h, http.MethodPost, "/api/saves/"+id+"/restore", nil), http.StatusNotFound, protocol.ErrNotFound)

	rec = do(t, h, http.MethodGet, "/api/saves/backup", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Disposition"), "acciones_backup_") {
		t.Fatalf("backup=%d %v", rec.Code, rec.Header())
	}
	backup := rec.Body.Bytes()

	if rec := do(t, h, http.MethodDelete, "/api/saves", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("clear=%d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/saves/backup", backup)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"restored":1`) {
		t.Fatalf("restore backup=%d %s", rec.Code, rec.Body.String())
	}
	expectError(t, do(t, h, http.MethodPost, "/api/saves/backup", []byte("junk")), http.StatusBadRequest, protocol.ErrBadRequest)
}

func TestScreenshotsAndPNG(t *testing.T) {
	h := newTestHandler(t)
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 3))); err != nil {
		t.Fatalf("png: %v", err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	rec := do(t, h, http.MethodPost, "/api/game/export/png", []byte(dataURL))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("png export=%d %v", rec.Code, rec.Header())
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "acciones_grafico_") {
		t.Fatalf("disposition=%q", rec.Header().Get("Content-Disposition"))
	}
	expectError(t, do(t, h, http.MethodPost, "/api/game/export/png", []byte("data:image/jpeg;base64,AAAA")), http.StatusUnprocessableEntity, protocol.ErrCapability)

	rec = do(t, h, http.MethodPost, "/api/screenshots", buf.Bytes())
	if rec.Code != http.StatusCreated {
		t.Fatalf("capture=%d %s", rec.Code, rec.Body.String())
	}
	var sum screenshot.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	rec = do(t, h, http.MethodGet, "/api/screenshots/"+itoa(sum.ID), nil)
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), buf.Bytes()) {
		t.Fatalf("image=%d", rec.Code)
	}
	rec = do(t, h, http.MethodDelete, "/api/screenshots/"+itoa(sum.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete=%d", rec.Code)
	}
	expectError(t, do(t, h, http.MethodGet, "/api/screenshots/"+itoa(sum.ID), nil), http.StatusNotFound, protocol.ErrNotFound)

	doc, _ := json.Marshal(screenshot.Record{ID: sum.ID, Date: sum.Date, Filename: sum.Filename, Image: buf.Bytes()})
	rec = do(t, h, http.MethodPost, "/api/screenshots/import", doc)
	if rec.Code != http.StatusCreated {
		t.Fatalf("import=%d %s", rec.Code, rec.Body.String())
	}
	expectError(t, do(t, h, http.MethodPost, "/api/screenshots/import", []byte(`{"id":1,"filename":"a.jpg"}`)), http.StatusUnprocessableEntity, protocol.ErrSchema)
}

func TestRouting_UnknownAndWrongMethod(t *testing.T) {
	h := newTestHandler(t)
	expectError(t, do(t, h, http.MethodGet, "/api/nope", nil), http.StatusNotFound, protocol.ErrNotFound)
	expectError(t, do(t, h, http.MethodPut, "/api/game", nil), http.StatusMethodNotAllowed, protocol.ErrBadRequest)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
