package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// wsClient is one live websocket channel. Writes are serialized by the
// client mutex so broadcasts and the ping ticker never interleave frames.
type wsClient struct {
	channelID     string
	roomCode      string
	participantID string

	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// hub tracks which channels are subscribed to which room code. It holds no
// session state; membership here is purely transport-level.
type hub struct {
	logger *zap.Logger
	mu     sync.Mutex
	rooms  map[string]map[*wsClient]struct{}
}

func newHub(logger *zap.Logger) *hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &hub{
		logger: logger,
		rooms:  make(map[string]map[*wsClient]struct{}),
	}
}

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	if h.rooms[c.roomCode] == nil {
		h.rooms[c.roomCode] = make(map[*wsClient]struct{})
	}
	h.rooms[c.roomCode][c] = struct{}{}
	peers := len(h.rooms[c.roomCode])
	h.mu.Unlock()

	h.logger.Info("channel subscribed",
		zap.String("room", c.roomCode),
		zap.Int("peers", peers),
	)
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	peers := h.rooms[c.roomCode]
	if peers != nil {
		delete(peers, c)
		if len(peers) == 0 {
			delete(h.rooms, c.roomCode)
		}
	}
	remaining := len(peers)
	h.mu.Unlock()

	h.logger.Info("channel unsubscribed",
		zap.String("room", c.roomCode),
		zap.Int("peers", remaining),
	)
}

// broadcast sends an event to every channel subscribed to the room,
// skipping except when non-nil. The member list is snapshotted so the hub
// lock is never held during socket writes.
func (h *hub) broadcast(roomCode string, except *wsClient, v any) {
	h.mu.Lock()
	peers := h.rooms[roomCode]
	conns := make([]*wsClient, 0, len(peers))
	for c := range peers {
		if c != except {
			conns = append(conns, c)
		}
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.send(v); err != nil {
			h.logger.Error("broadcast write",
				zap.String("room", roomCode),
				zap.Error(err),
			)
		}
	}
}

// closeAll closes every subscribed channel; used during shutdown.
func (h *hub) closeAll() {
	h.mu.Lock()
	var conns []*wsClient
	for _, peers := range h.rooms {
		for c := range peers {
			conns = append(conns, c)
		}
	}
	h.rooms = make(map[string]map[*wsClient]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.Close()
	}
}
