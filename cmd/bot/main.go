// Command bot plays random moves against a running server and prints what the
// renderer websocket pushes back.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"turnkeep.app/internal/game"
	"turnkeep.app/internal/protocol"
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:8080", "server base url")
		players = flag.Int("players", 2, "players for a fresh game (0 keeps the current game)")
		moves   = flag.Int("moves", 10, "random moves to play (0 only watches)")
		every   = flag.Duration("every", 500*time.Millisecond, "delay between moves")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	base := strings.TrimRight(*baseURL, "/")
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	go watch(conn, logger)

	cl := &http.Client{Timeout: 5 * time.Second}
	if *players > 0 {
		if _, err := post(cl, base+"/api/game", map[string]int{"players": *players}); err != nil {
			logger.Fatalf("start: %v", err)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	rng := rand.New(rand.NewSource(*seed))
	for i := 0; *moves == 0 || i < *moves; i++ {
		select {
		case <-stop:
			return
		case <-time.After(*every):
		}
		if *moves == 0 {
			continue
		}
		if err := playOne(cl, base, rng, logger); err != nil {
			logger.Printf("move %d: %v", i+1, err)
		}
	}
	// Let the last broadcasts arrive before closing.
	time.Sleep(200 * time.Millisecond)
}

func watch(conn *websocket.Conn, logger *log.Logger) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			v := st.View
			logger.Printf("STATE %s turn=%d/%d players=%d undo=%d", st.Reason, v.Turn, v.TotalTurns, v.NumPlayers, v.UndoDepth)
		case protocol.TypeNotice:
			var n protocol.NoticeMsg
			if err := json.Unmarshal(msg, &n); err != nil {
				continue
			}
			logger.Printf("NOTICE %s %s", n.Level, n.Message)
		}
	}
}

func playOne(cl *http.Client, base string, rng *rand.Rand, logger *log.Logger) error {
	resp, err := cl.Get(base + "/api/game")
	if err != nil {
		return err
	}
	var v protocol.View
	err = json.NewDecoder(resp.Body).Decode(&v)
	resp.Body.Close()
	if err != nil {
		return err
	}
	if !v.Ready || len(v.Players) == 0 {
		return fmt.Errorf("no game running")
	}
	p := v.Players[rng.Intn(len(v.Players))]

	switch n := rng.Intn(10); {
	case n < 5:
		c := game.Counters[rng.Intn(len(game.Counters))]
		_, err = post(cl, fmt.Sprintf("%s/api/game/players/%d/change", base, p.ID), map[game.Counter]int{c: rng.Intn(3) - 1})
	case n < 7 && len(v.ActionOrder) > 0:
		name := v.ActionOrder[rng.Intn(len(v.ActionOrder))]
		_, err = post(cl, base+"/api/game/actions/"+name+"/bump", map[string]int{"player": p.ID, "delta": 1})
	case n < 8:
		_, err = post(cl, base+"/api/game/undo", nil)
	case n < 9:
		_, err = post(cl, base+"/api/game/next-turn", nil)
	default:
		var b []byte
		b, err = post(cl, base+"/api/saves", nil)
		if err == nil {
			logger.Printf("saved %s", bytes.TrimSpace(b))
		}
	}
	return err
}

func post(cl *http.Client, url string, body any) ([]byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	resp, err := cl.Post(url, "application/json", &buf)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	if resp.StatusCode/100 != 2 {
		var e protocol.ErrorBody
		if json.Unmarshal(out.Bytes(), &e) == nil && e.Code != "" {
			return nil, fmt.Errorf("%s: %s", e.Code, e.Message)
		}
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return out.Bytes(), nil
}
