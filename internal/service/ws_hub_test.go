package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsPair upgrades one connection against a test server and returns both
// ends of it.
func wsPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()

	serverCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverCh <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	server = <-serverCh
	t.Cleanup(func() { server.Close() })
	return server, client
}

func clientCount(h *WSHub) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func TestWSHub_BroadcastPrunesFailedConn(t *testing.T) {
	h := NewWSHub()
	go h.Run()

	healthy, healthyClient := wsPair(t)
	dead, _ := wsPair(t)

	h.mu.Lock()
	h.clients[healthy] = true
	h.clients[dead] = true
	h.mu.Unlock()

	// Writes to this conn fail deterministically from here on.
	dead.Close()

	// Concurrent map reader standing in for the per-connection ping loop,
	// which polls membership under its own read lock while broadcasts run.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				clientCount(h)
			}
		}
	}()

	h.Broadcast(WSMessage{Type: "wager_recorded", MarketID: "m1", Probabilities: []float64{0.6, 0.4}})

	deadline := time.Now().Add(2 * time.Second)
	for clientCount(h) != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	close(stop)
	wg.Wait()

	if got := clientCount(h); got != 1 {
		t.Fatalf("failed conn should be pruned after broadcast, have %d clients", got)
	}

	healthyClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := healthyClient.ReadMessage(); err != nil {
		t.Fatalf("healthy client should still receive broadcasts: %v", err)
	}
}

func TestWSHub_RegisterUnregisterThroughHandler(t *testing.T) {
	h := NewWSHub()
	go h.Run()

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for clientCount(h) != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if clientCount(h) != 1 {
		t.Fatal("handler should register the connection")
	}

	client.Close()
	deadline = time.Now().Add(2 * time.Second)
	for clientCount(h) != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if clientCount(h) != 0 {
		t.Fatal("read pump should unregister a closed connection")
	}
}
