package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestFeed_ReportsConnectionState(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Accept the subscribe frame, then drop the session.
		conn.ReadMessage()
		conn.Close()
	}))
	defer srv.Close()

	feed, err := NewFeed(FeedConfig{
		URL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		Timeframe: "5m",
		Symbols:   []string{"BTCUSDT"},
	})
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}

	var (
		mu     sync.Mutex
		states []bool
	)
	feed.OnStateChange = func(up bool) {
		mu.Lock()
		states = append(states, up)
		mu.Unlock()
	}

	if err := feed.connectAndConsume(context.Background()); err == nil {
		t.Fatal("expected session error after server hangup")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || !states[0] || states[1] {
		t.Fatalf("state transitions = %v, want [true false]", states)
	}
}

func TestFeed_RunSignalsReconnectAttempts(t *testing.T) {
	// Nothing listens on this port, so every dial fails fast.
	feed, err := NewFeed(FeedConfig{
		URL:       "ws://127.0.0.1:1",
		Timeframe: "5m",
		Symbols:   []string{"BTCUSDT"},
	})
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	feed.retryIn = time.Millisecond

	var (
		mu       sync.Mutex
		attempts int
	)
	feed.OnReconnect = func() {
		mu.Lock()
		attempts++
		mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	feed.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if attempts == 0 {
		t.Fatal("expected at least one reconnect attempt")
	}
}
