package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sweeney/heater-controller/internal/status"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12
	clientBuf  = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func envelope(kind string, data []byte) []byte {
	msg, _ := json.Marshal(wsEnvelope{Type: kind, Data: data})
	return msg
}

// hub fans messages out to websocket clients. Slow clients lose messages
// rather than stall the broadcaster.
type hub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
	quit    chan struct{}
	closed  bool
}

func newHub() *hub {
	return &hub{
		clients: make(map[chan []byte]struct{}),
		quit:    make(chan struct{}),
	}
}

func (h *hub) subscribe() chan []byte {
	ch := make(chan []byte, clientBuf)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.quit)
	}
}

func (s *Server) wsConnect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	msgs := s.hub.subscribe()
	defer s.hub.unsubscribe(msgs)

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go readLoop(conn, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := write(conn, websocket.TextMessage, envelope("status", status.FormatJSON(s.tracker.Snapshot()))); err != nil {
		s.log.Debugw("websocket initial write failed", "err", err)
		return
	}

	for {
		select {
		case <-done:
			return
		case <-s.hub.quit:
			_ = write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		case <-ping.C:
			if err := write(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-msgs:
			if err := write(conn, websocket.TextMessage, msg); err != nil {
				s.log.Debugw("websocket write failed", "err", err)
				return
			}
		}
	}
}

func write(conn *websocket.Conn, kind int, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(kind, data)
}

// readLoop drains control frames and reports when the peer goes away.
func readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
