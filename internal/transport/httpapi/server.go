// Package httpapi exposes the session over a JSON HTTP API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"turnkeep.app/internal/game"
	"turnkeep.app/internal/persistence/screenshot"
	"turnkeep.app/internal/persistence/snapshot"
	"turnkeep.app/internal/protocol"
	"turnkeep.app/internal/session"
)

type Options struct {
	// MaxBodyBytes caps request bodies (imports, PNG payloads).
	MaxBodyBytes int64
	// WS serves the renderer websocket at /ws when set.
	WS     http.Handler
	Logger *log.Logger
}

type Server struct {
	sess *session.Session
	opts Options
}

func NewServer(sess *session.Session, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	return &Server{sess: sess, opts: opts}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/game", s.getGame).Methods(http.MethodGet)
	r.HandleFunc("/api/game", s.startGame).Methods(http.MethodPost)
	r.HandleFunc("/api/game/players/{id:[0-9]+}/change", s.changePlayer).Methods(http.MethodPost)
	r.HandleFunc("/api/game/actions/{name}/bump", s.bumpAction).Methods(http.MethodPost)
	r.HandleFunc("/api/game/undo", s.undo).Methods(http.MethodPost)
	r.HandleFunc("/api/game/next-turn", s.nextTurn).Methods(http.MethodPost)
	r.HandleFunc("/api/game/chart", s.chart).Methods(http.MethodGet)
	r.HandleFunc("/api/game/export", s.exportGame).Methods(http.MethodGet)
	r.HandleFunc("/api/game/export/png", s.exportPNG).Methods(http.MethodPost)

	r.HandleFunc("/api/saves", s.listSaves).Methods(http.MethodGet)
	r.HandleFunc("/api/saves", s.save).Methods(http.MethodPost)
	r.HandleFunc("/api/saves", s.clearSaves).Methods(http.MethodDelete)
	r.HandleFunc("/api/saves/import", s.importSave).Methods(http.MethodPost)
	r.HandleFunc("/api/saves/latest/export", s.exportLatest).Methods(http.MethodGet)
	r.HandleFunc("/api/saves/backup", s.backup).Methods(http.MethodGet)
	r.HandleFunc("/api/saves/backup", s.restoreBackup).Methods(http.MethodPost)
	r.HandleFunc("/api/saves/{id:[0-9]+}", s.getSave).Methods(http.MethodGet)
	r.HandleFunc("/api/saves/{id:[0-9]+}", s.deleteSave).Methods(http.MethodDelete)
	r.HandleFunc("/api/saves/{id:[0-9]+}/restore", s.restore).Methods(http.MethodPost)
	r.HandleFunc("/api/saves/{id:[0-9]+}/export", s.exportSave).Methods(http.MethodGet)

	r.HandleFunc("/api/screenshots", s.listScreenshots).Methods(http.MethodGet)
	r.HandleFunc("/api/screenshots", s.captureScreenshot).Methods(http.MethodPost)
	r.HandleFunc("/api/screenshots/import", s.importScreenshot).Methods(http.MethodPost)
	r.HandleFunc("/api/screenshots/{id:[0-9]+}", s.screenshotImage).Methods(http.MethodGet)
	r.HandleFunc("/api/screenshots/{id:[0-9]+}", s.deleteScreenshot).Methods(http.MethodDelete)

	if s.opts.WS != nil {
		r.Handle("/ws", s.opts.WS).Methods(http.MethodGet)
	}
	r.MethodNotAllowedHandler = http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		writeError(rw, http.StatusMethodNotAllowed, protocol.ErrBadRequest, "method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		writeError(rw, http.StatusNotFound, protocol.ErrNotFound, "no such route")
	})
	return r
}

// fail maps err onto a status code and protocol error code.
func (s *Server) fail(rw http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError && s.opts.Logger != nil {
		s.opts.Logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeError(rw, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, snapshot.ErrNotReady):
		return http.StatusConflict, protocol.ErrNotReady
	case errors.Is(err, game.ErrNothingToUndo):
		return http.StatusConflict, protocol.ErrNothingToUndo
	case errors.Is(err, snapshot.ErrNotFound),
		errors.Is(err, screenshot.ErrNotFound),
		errors.Is(err, game.ErrUnknownPlayer),
		errors.Is(err, game.ErrUnknownAction):
		return http.StatusNotFound, protocol.ErrNotFound
	case errors.Is(err, screenshot.ErrCapability):
		return http.StatusUnprocessableEntity, protocol.ErrCapability
	case errors.Is(err, protocol.ErrInvalid):
		return http.StatusUnprocessableEntity, protocol.ErrSchema
	case errors.Is(err, game.ErrBadPlayerCount),
		errors.Is(err, game.ErrUnknownCounter),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, protocol.ErrBadRequest
	default:
		return http.StatusInternalServerError, protocol.ErrInternal
	}
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, protocol.ErrorBody{Code: code, Message: msg})
}

func writeDownload(rw http.ResponseWriter, dl session.Download) {
	rw.Header().Set("Content-Type", dl.ContentType)
	rw.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	rw.Header().Set("Content-Length", strconv.Itoa(len(dl.Body)))
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write(dl.Body)
}

func (s *Server) readBody(rw http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		return nil, badRequest("read body: %v", err)
	}
	return b, nil
}

func (s *Server) decodeBody(rw http.ResponseWriter, r *http.Request, v any) error {
	b, err := s.readBody(rw, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, badRequest("bad id %q", mux.Vars(r)["id"])
	}
	return id, nil
}
