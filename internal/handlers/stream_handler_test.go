package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/curlos/twitter-2.0-sub000/internal/realtime"
	"github.com/curlos/twitter-2.0-sub000/internal/store"
)

func newStreamServer(t *testing.T) (*store.MemStore, *realtime.Manager, *httptest.Server) {
	t.Helper()
	st := store.NewMemStore()
	mgr := realtime.NewManager(st, zerolog.Nop())
	e := echo.New()
	e.GET("/ws", NewStreamHandler(mgr, zerolog.Nop()).HandleStream)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return st, mgr, srv
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	return conn
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStreamDeliversUpdates(t *testing.T) {
	st, _, srv := newStreamServer(t)
	conn := dialStream(t, srv)
	defer conn.Close()

	if err := conn.WriteJSON(streamRequest{Type: "subscribe", Path: "tweets/t1"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitFor(t, "server-side subscription", func() bool {
		return st.SubscriberCount("tweets/t1") == 1
	})

	batch := store.NewBatch().Set("tweets/t1", map[string]any{"text": "hello"})
	if err := st.Apply(context.Background(), batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var upd streamUpdate
	if err := conn.ReadJSON(&upd); err != nil {
		t.Fatalf("reading update: %v", err)
	}
	if upd.Type != "update" || upd.Path != "tweets/t1" || upd.Event != "added" || upd.DocID != "t1" {
		t.Fatalf("unexpected update: %+v", upd)
	}
}

func TestStreamRejectsInvalidPath(t *testing.T) {
	_, _, srv := newStreamServer(t)
	conn := dialStream(t, srv)
	defer conn.Close()

	if err := conn.WriteJSON(streamRequest{Type: "subscribe", Path: "secrets/x"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var upd streamUpdate
	if err := conn.ReadJSON(&upd); err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if upd.Type != "error" || upd.Path != "secrets/x" {
		t.Fatalf("unexpected response: %+v", upd)
	}
}

func TestStreamTeardownReleasesEverythingUnderBurst(t *testing.T) {
	st, mgr, srv := newStreamServer(t)
	conn := dialStream(t, srv)

	if err := conn.WriteJSON(streamRequest{Type: "subscribe", Path: "tweets/t1"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitFor(t, "server-side subscription", func() bool {
		return st.SubscriberCount("tweets/t1") == 1
	})

	// Drop the client without reading, then keep publishing: the handler
	// must tear down fully even with updates in flight and a writer that
	// dies mid-burst.
	conn.Close()
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		batch := store.NewBatch().Set("tweets/t1", map[string]any{"n": int64(i)})
		if err := st.Apply(ctx, batch); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	waitFor(t, "subscription teardown", func() bool {
		return mgr.ActiveSubscriptions() == 0 && st.SubscriberCount("tweets/t1") == 0
	})
}
