package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"turnkeep.app/internal/config"
	"turnkeep.app/internal/persistence/kv"
	persistlog "turnkeep.app/internal/persistence/log"
	"turnkeep.app/internal/persistence/screenshot"
	"turnkeep.app/internal/persistence/snapshot"
	"turnkeep.app/internal/protocol"
	"turnkeep.app/internal/session"
	"turnkeep.app/internal/transport/httpapi"
	"turnkeep.app/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/turnkeep.yaml", "config file (optional; TK_* env vars override it)")
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		disableDB  = flag.Bool("disable_db", false, "keep everything in memory")
		wsLoopback = flag.Bool("ws_loopback_only", false, "accept renderer websockets from localhost only")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	path := strings.TrimSpace(*configPath)
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			logger.Printf("config %s not found; using defaults", path)
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
		cfg.DBPath, cfg.EventsDir = "", ""
		cfg.Normalize()
	}
	if *disableDB {
		cfg.DisableDB = true
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	var events *persistlog.EventLog
	if cfg.EventsDir != "-" && !cfg.DisableDB {
		if err := os.MkdirAll(cfg.EventsDir, 0o755); err != nil {
			logger.Fatalf("events dir: %v", err)
		}
		events = persistlog.NewEventLog(cfg.EventsDir)
		defer events.Close()
	}

	saves := snapshot.NewStore(store, snapshot.Options{
		Capacity: cfg.MaxSavedGames,
		Logger:   log.New(os.Stdout, "[saves] ", log.LstdFlags),
	})
	shots, err := screenshot.NewStore(store, screenshot.Options{
		Capacity: cfg.MaxScreenshots,
		Prefix:   cfg.FilePrefix,
		Logger:   log.New(os.Stdout, "[screenshots] ", log.LstdFlags),
	})
	if err != nil {
		logger.Fatalf("screenshot store: %v", err)
	}
	defer shots.Close()

	var sess *session.Session
	hub := ws.NewHub(ws.Options{
		Initial: func() any {
			v, err := sess.View()
			if err != nil {
				return protocol.NewStateMsg("connect", protocol.View{})
			}
			return protocol.NewStateMsg("connect", v)
		},
		LoopbackOnly: *wsLoopback,
		Logger:       log.New(os.Stdout, "[ws] ", log.LstdFlags),
	})

	sess, err = session.New(session.Options{
		Rules:    cfg.GameRules(),
		Actions:  cfg.ActionSpecs(),
		Prefix:   cfg.FilePrefix,
		KV:       store,
		Saves:    saves,
		Shots:    shots,
		Renderer: hub,
		Events:   events,
		Logger:   log.New(os.Stdout, "[session] ", log.LstdFlags),
	})
	if err != nil {
		logger.Fatalf("session: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	resumed, err := sess.LoadScratch(ctx)
	if err != nil {
		logger.Fatalf("load scratch slot: %v", err)
	}
	if resumed {
		v, _ := sess.View()
		logger.Printf("resumed game: %d players, turn %d/%d", v.NumPlayers, v.Turn, v.TotalTurns)
	}

	api := httpapi.NewServer(sess, httpapi.Options{
		MaxBodyBytes: cfg.MaxImportBytes,
		WS:           hub.Handler(),
		Logger:       logger,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (prefix=%s saves<=%d screenshots<=%d)", cfg.Addr, cfg.FilePrefix, cfg.MaxSavedGames, cfg.MaxScreenshots)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func openStore(cfg config.Config, logger *log.Logger) (kv.Store, error) {
	if cfg.DisableDB {
		logger.Printf("db disabled; saved games live in memory only")
		return kv.NewMemory(), nil
	}
	st, err := kv.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	logger.Printf("store: %s", cfg.DBPath)
	return st, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
