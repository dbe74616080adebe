package httpapi

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"turnkeep.app/internal/game"
	"turnkeep.app/internal/protocol"
)

type startRequest struct {
	Players int `json:"players"`
}

type bumpRequest struct {
	Player int `json:"player"`
	Delta  int `json:"delta"`
}

func (s *Server) getGame(rw http.ResponseWriter, r *http.Request) {
	v, err := s.sess.View()
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, v)
}

func (s *Server) startGame(rw http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := s.decodeBody(rw, r, &req); err != nil {
		s.fail(rw, r, err)
		return
	}
	v, err := s.sess.Start(r.Context(), req.Players)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, v)
}

func (s *Server) changePlayer(rw http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		s.fail(rw, r, badRequest("bad player id"))
		return
	}
	var change game.Change
	if err := s.decodeBody(rw, r, &change); err != nil {
		s.fail(rw, r, err)
		return
	}
	if len(change) == 0 {
		s.fail(rw, r, badRequest("empty change"))
		return
	}
	v, err := s.sess.Change(r.Context(), id, change)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, v)
}

func (s *Server) bumpAction(rw http.ResponseWriter, r *http.Request) {
	var req bumpRequest
	if err := s.decodeBody(rw, r, &req); err != nil {
		s.fail(rw, r, err)
		return
	}
	v, err := s.sess.Bump(r.Context(), mux.Vars(r)["name"], req.Player, req.Delta)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, v)
}

func (s *Server) undo(rw http.ResponseWriter, r *http.Request) {
	v, err := s.sess.Undo(r.Context())
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, v)
}

func (s *Server) nextTurn(rw http.ResponseWriter, r *http.Request) {
	v, err := s.sess.NextTurn(r.Context())
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, v)
}

func (s *Server) chart(rw http.ResponseWriter, r *http.Request) {
	ch, err := s.sess.Chart()
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, ch)
}

func (s *Server) exportGame(rw http.ResponseWriter, r *http.Request) {
	dl, err := s.sess.ExportGame()
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeDownload(rw, dl)
}

func (s *Server) exportPNG(rw http.ResponseWriter, r *http.Request) {
	b, err := s.readBody(rw, r)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	dl, err := s.sess.ExportPNG(b)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeDownload(rw, dl)
}

func (s *Server) listSaves(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, s.sess.Saves(r.Context()))
}

func (s *Server) save(rw http.ResponseWriter, r *http.Request) {
	rec, err := s.sess.Save(r.Context())
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, rec)
}

func (s *Server) clearSaves(rw http.ResponseWriter, r *http.Request) {
	if err := s.sess.ClearSaves(r.Context()); err != nil {
		s.fail(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) importSave(rw http.ResponseWriter, r *http.Request) {
	b, err := s.readBody(rw, r)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	rec, err := s.sess.ImportSave(r.Context(), b)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, rec)
}

func (s *Server) exportLatest(rw http.ResponseWriter, r *http.Request) {
	dl, err := s.sess.ExportLatest(r.Context())
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeDownload(rw, dl)
}

func (s *Server) backup(rw http.ResponseWriter, r *http.Request) {
	dl, err := s.sess.Backup(r.Context())
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeDownload(rw, dl)
}

func (s *Server) restoreBackup(rw http.ResponseWriter, r *http.Request) {
	b, err := s.readBody(rw, r)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	n, err := s.sess.RestoreBackup(r.Context(), bytes.NewReader(b))
	if err != nil {
		s.fail(rw, r, badRequest("%v", err))
		return
	}
	writeJSON(rw, http.StatusOK, map[string]int{"restored": n})
}

func (s *Server) getSave(rw http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	rec, err := s.sess.SavedGame(r.Context(), id)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, rec)
}

func (s *Server) deleteSave(rw http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	removed, err := s.sess.DeleteSave(r.Context(), id)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) restore(rw http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	res, err := s.sess.Restore(r.Context(), id)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	v, err := s.sess.View()
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, struct {
		ID      int64             `json:"id"`
		Skipped []string          `json:"skipped,omitempty"`
		Hints   map[string]string `json:"hints,omitempty"`
		View    protocol.View     `json:"view"`
	}{ID: res.Record.ID, Skipped: res.Skipped, Hints: res.Hints, View: v})
}

func (s *Server) exportSave(rw http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	dl, err := s.sess.ExportSave(r.Context(), id)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeDownload(rw, dl)
}

func (s *Server) listScreenshots(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, s.sess.Screenshots(r.Context()))
}

func (s *Server) captureScreenshot(rw http.ResponseWriter, r *http.Request) {
	b, err := s.readBody(rw, r)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	sum, err := s.sess.CaptureScreenshot(r.Context(), b)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, sum)
}

func (s *Server) importScreenshot(rw http.ResponseWriter, r *http.Request) {
	b, err := s.readBody(rw, r)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	sum, err := s.sess.ImportScreenshot(r.Context(), b)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, sum)
}

func (s *Server) screenshotImage(rw http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	dl, err := s.sess.ScreenshotImage(r.Context(), id)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeDownload(rw, dl)
}

func (s *Server) deleteScreenshot(rw http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	removed, err := s.sess.DeleteScreenshot(r.Context(), id)
	if err != nil {
		s.fail(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]bool{"removed": removed})
}
