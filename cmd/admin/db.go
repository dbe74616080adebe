package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// dbCmd reads the kv tables directly, without going through the stores.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	configPath, dbPath := storeFlags(fs)
	_ = fs.Parse(args)

	q := "items"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	cfg := loadConfig(*configPath, *dbPath)

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "items":
		rows, err := db.Query(`SELECT key,length(value),updated_at FROM items ORDER BY key`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Key       string `json:"key"`
				Bytes     int64  `json:"bytes"`
				Size      string `json:"size"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Key, &r.Bytes, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Size = humanize.Bytes(uint64(r.Bytes))
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "get":
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: admin db get KEY")
			os.Exit(2)
		}
		var v []byte
		if err := db.QueryRow(`SELECT value FROM items WHERE key=?`, fs.Arg(1)).Scan(&v); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		if bytes.HasPrefix(v, zstdMagic) {
			dec, err := zstd.NewReader(nil)
			if err != nil {
				fmt.Fprintln(os.Stderr, "zstd:", err)
				os.Exit(1)
			}
			v, err = dec.DecodeAll(v, nil)
			dec.Close()
			if err != nil {
				fmt.Fprintln(os.Stderr, "decompress:", err)
				os.Exit(1)
			}
		}
		var out bytes.Buffer
		if err := json.Indent(&out, v, "", "  "); err != nil {
			os.Stdout.Write(v)
			fmt.Println()
			return
		}
		fmt.Println(out.String())

	case "meta":
		rows, err := db.Query(`SELECT key,value FROM meta ORDER BY key`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			if err := rows.Scan(&r.Key, &r.Value); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-config PATH] [-db PATH] items|get KEY|meta")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
