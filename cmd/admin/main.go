package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"turnkeep.app/internal/config"
	"turnkeep.app/internal/persistence/archive"
	"turnkeep.app/internal/persistence/kv"
	persistlog "turnkeep.app/internal/persistence/log"
	"turnkeep.app/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "export":
			exportCmd(os.Args[2:])
			return
		case "prune":
			pruneCmd(os.Args[2:])
			return
		case "backup":
			backupCmd(os.Args[2:])
			return
		case "restore-backup":
			restoreBackupCmd(os.Args[2:])
			return
		case "clear":
			clearCmd(os.Args[2:])
			return
		case "events":
			eventsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "save":
			saveCmd(os.Args[2:])
			return
		case "list":
			listCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// storeFlags registers the flags every offline command needs.
func storeFlags(fs *flag.FlagSet) (configPath, dbPath *string) {
	configPath = fs.String("config", "./configs/turnkeep.yaml", "config file (optional)")
	dbPath = fs.String("db", "", "sqlite db path (overrides config)")
	return configPath, dbPath
}

func loadConfig(configPath, dbPath string) config.Config {
	path := strings.TrimSpace(configPath)
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if strings.TrimSpace(dbPath) != "" {
		cfg.DBPath = dbPath
	}
	return cfg
}

func openSaves(configPath, dbPath string) (*snapshot.Store, kv.Store, config.Config) {
	cfg := loadConfig(configPath, dbPath)
	st, err := kv.OpenSQLite(cfg.DBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return snapshot.NewStore(st, snapshot.Options{Capacity: cfg.MaxSavedGames}), st, cfg
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath, dbPath := storeFlags(fs)
	asJSON := fs.Bool("json", false, "print summaries as JSON")
	_ = fs.Parse(args)

	saves, st, _ := openSaves(*configPath, *dbPath)
	defer st.Close()

	ctx := context.Background()
	now := time.Now()
	out := []snapshot.Summary{}
	for rec := range saves.List(ctx) {
		out = append(out, rec.Summary(now))
	}
	if *asJSON {
		b, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(b))
		return
	}
	for _, s := range out {
		fmt.Printf("%d\t%s\n", s.ID, s.Label)
	}
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath, dbPath := storeFlags(fs)
	idStr := fs.String("id", "latest", "saved game id (or latest)")
	outPath := fs.String("out", "", "output path (default: <prefix>_partida_<id>.json)")
	_ = fs.Parse(args)

	saves, st, cfg := openSaves(*configPath, *dbPath)
	defer st.Close()

	ctx := context.Background()
	var (
		rec snapshot.Record
		err error
	)
	if *idStr == "latest" {
		rec, err = saves.Latest(ctx)
	} else {
		id, perr := strconv.ParseInt(*idStr, 10, 64)
		if perr != nil {
			fmt.Fprintln(os.Stderr, "bad -id:", perr)
			os.Exit(2)
		}
		rec, err = saves.Get(ctx, id)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		os.Exit(1)
	}
	b, err := rec.Export()
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		os.Exit(1)
	}
	path := *outPath
	if path == "" {
		path = rec.Filename(cfg.FilePrefix)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	fmt.Println(path)
}

func pruneCmd(args []string) {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	configPath, dbPath := storeFlags(fs)
	keep := fs.Int("keep", -1, "number of newest saved games to keep (required)")
	_ = fs.Parse(args)
	if *keep < 0 {
		fmt.Fprintln(os.Stderr, "missing -keep")
		os.Exit(2)
	}

	saves, st, _ := openSaves(*configPath, *dbPath)
	defer st.Close()
	n, err := saves.Prune(context.Background(), *keep)
	if err != nil {
		fmt.Fprintln(os.Stderr, "prune:", err)
		os.Exit(1)
	}
	fmt.Printf("pruned %d\n", n)
}

func backupCmd(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath, dbPath := storeFlags(fs)
	outPath := fs.String("out", "", "archive path (default: <prefix>_backup_<ms>.tkb.zst)")
	_ = fs.Parse(args)

	saves, st, cfg := openSaves(*configPath, *dbPath)
	defer st.Close()

	now := time.Now()
	path := *outPath
	if path == "" {
		path = archive.Filename(cfg.FilePrefix, now)
	}
	recs := saves.All(context.Background())
	if err := archive.WriteFile(path, recs, now); err != nil {
		fmt.Fprintln(os.Stderr, "backup:", err)
		os.Exit(1)
	}
	fmt.Printf("%s (%d saved games)\n", path, len(recs))
}

func restoreBackupCmd(args []string) {
	fs := flag.NewFlagSet("restore-backup", flag.ExitOnError)
	configPath, dbPath := storeFlags(fs)
	inPath := fs.String("in", "", "archive path (required)")
	_ = fs.Parse(args)
	if strings.TrimSpace(*inPath) == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}

	h, recs, err := archive.ReadFile(*inPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	saves, st, _ := openSaves(*configPath, *dbPath)
	defer st.Close()
	if err := saves.Replace(context.Background(), recs); err != nil {
		fmt.Fprintln(os.Stderr, "restore:", err)
		os.Exit(1)
	}
	fmt.Printf("restored %d saved games from backup taken %s\n", len(recs), h.CreatedAt)
}

func clearCmd(args []string) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath, dbPath := storeFlags(fs)
	yes := fs.Bool("yes", false, "confirm")
	_ = fs.Parse(args)
	if !*yes {
		fmt.Fprintln(os.Stderr, "refusing to clear saved games without -yes")
		os.Exit(2)
	}
	saves, st, _ := openSaves(*configPath, *dbPath)
	defer st.Close()
	if err := saves.Clear(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "clear:", err)
		os.Exit(1)
	}
	fmt.Println("cleared")
}

func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	configPath := fs.String("config", "./configs/turnkeep.yaml", "config file (optional)")
	dir := fs.String("dir", "", "events directory (overrides config)")
	kind := fs.String("kind", "", "only print events of this kind")
	_ = fs.Parse(args)

	d := *dir
	if d == "" {
		d = loadConfig(*configPath, "").EventsDir
	}
	evs, err := persistlog.ReadEvents(d)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, ev := range evs {
		if *kind != "" && ev.Kind != *kind {
			continue
		}
		_ = enc.Encode(ev)
	}
}
