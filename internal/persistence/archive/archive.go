// Package archive writes and reads backups of the saved-game list: a JSON
// header line followed by a gob body, all inside one zstd stream.
package archive

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"turnkeep.app/internal/persistence/snapshot"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	Count     int    `json:"count"`
	CreatedAt string `json:"created_at"`
}

type body struct {
	Header  Header
	Records []snapshot.Record
}

// Filename is the default download name for a backup taken at t.
func Filename(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_backup_%d.tkb.zst", prefix, t.UnixMilli())
}

func Write(w io.Writer, recs []snapshot.Record, now time.Time) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	h := Header{Version: Version, Count: len(recs), CreatedAt: now.UTC().Format(time.RFC3339Nano)}
	hb, _ := json.Marshal(h)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&body{Header: h, Records: recs}); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func Read(r io.Reader) (Header, []snapshot.Record, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Header{}, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	// The header line is for humans and tools like zstdcat; gob repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return Header{}, nil, fmt.Errorf("read header: %w", err)
	}
	var b body
	if err := gob.NewDecoder(br).Decode(&b); err != nil {
		return Header{}, nil, fmt.Errorf("gob decode: %w", err)
	}
	if b.Header.Version != Version {
		return b.Header, nil, fmt.Errorf("unsupported archive version %d", b.Header.Version)
	}
	return b.Header, b.Records, nil
}

func WriteFile(path string, recs []snapshot.Record, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Write(f, recs, now); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func ReadFile(path string) (Header, []snapshot.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()
	return Read(f)
}
