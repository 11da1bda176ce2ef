package handlers

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/curlos/twitter-2.0-sub000/internal/realtime"
	"github.com/curlos/twitter-2.0-sub000/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler pushes realtime document updates to websocket clients.
// Clients subscribe to store paths (a tweet, a user, a relationship
// subcollection) and must unsubscribe when the watched identity changes;
// closing the socket releases everything.
type StreamHandler struct {
	realtime *realtime.Manager
	log      zerolog.Logger
}

func NewStreamHandler(manager *realtime.Manager, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{realtime: manager, log: logger}
}

type streamRequest struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

type streamUpdate struct {
	Type  string         `json:"type"`
	Path  string         `json:"path"`
	Event string         `json:"event,omitempty"`
	DocID string         `json:"docId,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
}

func (h *StreamHandler) HandleStream(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return nil
	}
	defer conn.Close()

	out := make(chan streamUpdate, 64)
	writerDone := make(chan struct{})
	releases := make(map[string]func())
	var wg sync.WaitGroup

	go func() {
		defer close(writerDone)
		for msg := range out {
			if err := conn.WriteJSON(msg); err != nil {
				conn.Close()
				return
			}
		}
	}()

	// send never blocks on a dead writer: once the writer exits, pending
	// forwarders drain through the writerDone arm instead of wedging on a
	// full buffer.
	send := func(msg streamUpdate) {
		select {
		case out <- msg:
		case <-writerDone:
		}
	}

	ctx := c.Request().Context()
	for {
		var req streamRequest
		if err := conn.ReadJSON(&req); err != nil {
			break
		}
		switch req.Type {
		case "subscribe":
			if !validStreamPath(req.Path) {
				send(streamUpdate{Type: "error", Path: req.Path, Error: "invalid path"})
				continue
			}
			if _, ok := releases[req.Path]; ok {
				continue
			}
			ch, release, err := h.realtime.Observe(ctx, req.Path)
			if err != nil {
				send(streamUpdate{Type: "error", Path: req.Path, Error: err.Error()})
				continue
			}
			releases[req.Path] = release
			wg.Add(1)
			go func(path string, ch <-chan store.Event) {
				defer wg.Done()
				for ev := range ch {
					send(streamUpdate{
						Type:  "update",
						Path:  path,
						Event: eventName(ev.Type),
						DocID: ev.Doc.ID,
						Data:  ev.Doc.Data,
					})
				}
			}(req.Path, ch)
		case "unsubscribe":
			if release, ok := releases[req.Path]; ok {
				release()
				delete(releases, req.Path)
			}
		}
	}

	// Socket closed: cancel every subscription this client opened so no
	// listener outlives its view.
	for _, release := range releases {
		release()
	}
	wg.Wait()
	close(out)
	return nil
}

func eventName(t store.EventType) string {
	switch t {
	case store.EventAdded:
		return "added"
	case store.EventModified:
		return "modified"
	case store.EventRemoved:
		return "removed"
	}
	return "unknown"
}

func validStreamPath(path string) bool {
	segs := strings.Split(path, "/")
	if len(segs) < 1 || len(segs) > 4 {
		return false
	}
	if segs[0] != store.Users && segs[0] != store.Tweets {
		return false
	}
	for _, s := range segs {
		if s == "" {
			return false
		}
	}
	return true
}
