package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/robosim/backend/internal/sim"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster mirrors the live session's events to browser spectators.
// Delivery here is best-effort: a spectator that cannot keep up is
// disconnected rather than allowed to stall the session, because the
// authoritative ordered stream is the start request's own response.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	registry *sim.Registry
}

func NewBroadcaster(registry *sim.Registry) *Broadcaster {
	return &Broadcaster{
		clients:  make(map[*client]bool),
		registry: registry,
	}
}

// AddClient registers a connection and sends it the current session
// snapshot.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	snapshot := Message{Type: MsgSnapshot, Payload: b.snapshotPayload()}
	data, _ := json.Marshal(snapshot)
	select {
	case c.send <- data:
	default:
		// Client too slow already; it will be dropped on the next
		// broadcast.
	}
	return c
}

func (b *Broadcaster) snapshotPayload() SnapshotPayload {
	p := SnapshotPayload{Phase: sim.Idle, Step: -1}
	if r, ok := b.registry.Current(); ok {
		cfg := r.Config()
		p.Phase = r.Phase()
		p.Step = r.Step()
		p.Config = &cfg
	}
	return p
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// PublishFrame mirrors one frame to all spectators.
func (b *Broadcaster) PublishFrame(step int, frame []byte) {
	b.broadcast(Message{Type: MsgFrame, Payload: FramePayload{Step: step, Frame: frame}})
}

// PublishStatus announces a phase change. errMsg is set only for Failed.
func (b *Broadcaster) PublishStatus(phase sim.Phase, step int, errMsg string) {
	b.broadcast(Message{Type: MsgStatus, Payload: StatusPayload{Phase: phase, Step: step, Error: errMsg}})
}

func (b *Broadcaster) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("ws: broadcast marshal error: %v", err)
		return
	}

	// Sends happen under the read lock: RemoveClient closes send under
	// the write lock, so a close can never land between seeing a client
	// and sending to it. Slow clients are dropped after the lock is
	// released; RemoveClient needs the write lock itself.
	b.mu.RLock()
	var slow []*client
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		log.Printf("ws: spectator too slow, disconnecting")
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
