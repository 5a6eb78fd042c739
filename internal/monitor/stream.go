package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"analogpad/internal/gamepad"
	"analogpad/internal/mapping"
	"analogpad/internal/profile"
)

const (
	clientBuffer = 8
	writeWait    = time.Second
)

// ProfileInfo names the active sub-profile.
type ProfileInfo struct {
	ProfileID      uuid.UUID `json:"profile_id"`
	ProfileName    string    `json:"profile_name"`
	SubProfileID   uuid.UUID `json:"sub_profile_id"`
	SubProfileName string    `json:"sub_profile_name"`
}

// Frame is one stream message.
type Frame struct {
	Seq     uint64          `json:"seq"`
	Report  gamepad.Report  `json:"report"`
	Metrics mapping.Metrics `json:"metrics"`
	Profile *ProfileInfo    `json:"profile"`
}

// Sources supplies the values sampled on every stream tick.
type Sources struct {
	Report  func() gamepad.Report
	Metrics func() mapping.Metrics
	Profile func() *profile.Compiled
}

// Streamer samples the controller state at a fixed interval and fans it
// out to websocket clients. A client that cannot keep up is disconnected.
type Streamer struct {
	src Sources

	mu      sync.Mutex
	clients map[*client]struct{}

	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewStreamer creates a streamer with no clients.
func NewStreamer(src Sources) *Streamer {
	return &Streamer{src: src, clients: make(map[*client]struct{})}
}

// frame samples the sources.
func (s *Streamer) frame(seq uint64) Frame {
	f := Frame{Seq: seq}
	if s.src.Report != nil {
		f.Report = s.src.Report()
	}
	if s.src.Metrics != nil {
		f.Metrics = s.src.Metrics()
	}
	if s.src.Profile != nil {
		if c := s.src.Profile(); c != nil {
			f.Profile = &ProfileInfo{
				ProfileID:      c.ProfileID,
				ProfileName:    c.ProfileName,
				SubProfileID:   c.SubProfileID,
				SubProfileName: c.SubProfileName,
			}
		}
	}
	return f
}

// Run broadcasts a frame every interval until ctx is done. Ticks with no
// clients are skipped.
func (s *Streamer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			if s.Clients() == 0 {
				continue
			}
			s.Broadcast()
		}
	}
}

// Broadcast sends one frame to every client.
func (s *Streamer) Broadcast() {
	data, err := json.Marshal(s.frame(s.seq.Add(1)))
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.dropped.Add(1)
			s.removeLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (s *Streamer) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped returns how many clients were disconnected for falling behind.
func (s *Streamer) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Streamer) register(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Streamer) unregister(c *client) {
	s.mu.Lock()
	s.removeLocked(c)
	s.mu.Unlock()
}

func (s *Streamer) removeLocked(c *client) {
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Streamer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		s.removeLocked(c)
	}
}

type client struct {
	streamer *Streamer
	conn     *websocket.Conn
	send     chan []byte
}

func newClient(s *Streamer, conn *websocket.Conn) *client {
	return &client{streamer: s, conn: conn, send: make(chan []byte, clientBuffer)}
}

// writePump writes queued frames. It exits when the send channel closes or a
// write fails, closing the connection either way.
func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.streamer.unregister(c)
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump discards client messages and notices disconnects.
func (c *client) readPump() {
	defer c.streamer.unregister(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
