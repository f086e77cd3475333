// Package hub pushes widget updates to browsers over WebSocket.
package hub

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	outBuffer    = 256
	pingInterval = 45 * time.Second
	readTimeout  = 90 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

type statusMsg struct {
	Type  string `json:"type"`
	Level string `json:"level"`
	Text  string `json:"text"`
}

type controlMsg struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

type client struct {
	id     string
	c      *websocket.Conn
	out    chan any
	done   chan struct{}
	paused atomic.Bool
}

// send never blocks; a full buffer drops the message for that client.
func (cl *client) send(v any) {
	select {
	case cl.out <- v:
	default:
	}
}

type Hub struct {
	log *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func New(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{log: log, clients: make(map[*client]struct{})}
}

func (h *Hub) Broadcast(v any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.send(v)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the client. snapshot, when set,
// is sent right after the greeting so a new tab renders without waiting for
// the next tick. A client may send {"type":"control","action":"pause"} to stop
// receiving quote updates, and "resume" to start again; status messages are
// always delivered.
func (h *Hub) ServeWS(snapshot func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Debug("ws upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		cl := &client{
			id:   uuid.NewString(),
			c:    conn,
			out:  make(chan any, outBuffer),
			done: make(chan struct{}),
		}
		h.mu.Lock()
		h.clients[cl] = struct{}{}
		n := len(h.clients)
		h.mu.Unlock()
		h.log.Info("ws client connected", zap.String("client", cl.id), zap.Int("clients", n))

		go h.writeLoop(cl)

		cl.send(statusMsg{Type: "status", Level: "info", Text: "Connected"})
		if snapshot != nil {
			cl.send(snapshot())
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if mt != websocket.TextMessage {
				continue
			}
			var ctrl controlMsg
			if err := json.Unmarshal(data, &ctrl); err != nil || ctrl.Type != "control" {
				continue
			}
			switch strings.ToLower(ctrl.Action) {
			case "pause":
				cl.paused.Store(true)
				cl.send(statusMsg{Type: "status", Level: "info", Text: "Paused (this tab)"})
			case "resume":
				cl.paused.Store(false)
				cl.send(statusMsg{Type: "status", Level: "success", Text: "Resumed (this tab)"})
				if snapshot != nil {
					cl.send(snapshot())
				}
			}
		}

		close(cl.done)
		h.mu.Lock()
		delete(h.clients, cl)
		n = len(h.clients)
		h.mu.Unlock()
		h.log.Info("ws client gone", zap.String("client", cl.id), zap.Int("clients", n))
	}
}

func (h *Hub) writeLoop(cl *client) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case v := <-cl.out:
			if cl.paused.Load() && !isStatus(v) {
				continue
			}
			if err := cl.c.WriteJSON(v); err != nil {
				h.log.Debug("ws write failed", zap.String("client", cl.id), zap.Error(err))
			}
		case <-ping.C:
			_ = cl.c.WriteMessage(websocket.PingMessage, nil)
		case <-cl.done:
			return
		}
	}
}

// isStatus matches the local status type and any message that names itself "status".
func isStatus(v any) bool {
	if _, ok := v.(statusMsg); ok {
		return true
	}
	if t, ok := v.(interface{ MessageType() string }); ok {
		return t.MessageType() == "status"
	}
	return false
}
