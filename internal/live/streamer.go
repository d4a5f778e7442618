// Package live streams navigation samples (the estimator's state plus
// part of its covariance diagonal) to WebSocket subscribers as they are
// broadcast, for dashboards watching a run.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Sample is one broadcast tick: the navigation solution plus the x, y
// and heading variances from its covariance diagonal, keyed by the same
// timestamp.
type Sample struct {
	TUs    uint64  `json:"t_us"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Psi    float64 `json:"psi"`
	V      float64 `json:"v"`
	R      float64 `json:"r"`
	BG     float64 `json:"bg"`
	PXX    float64 `json:"p_xx,omitempty"`
	PYY    float64 `json:"p_yy,omitempty"`
	PPsi   float64 `json:"p_psi,omitempty"`
}

// Streamer broadcasts Sample values to connected WebSocket clients.
type Streamer struct {
	mu        sync.RWMutex
	clients   map[*client]bool
	broadcast chan Sample
	upgrader  websocket.Upgrader
	logger    *logrus.Logger

	messagesSent  uint64
	clientsServed uint64
}

type client struct {
	conn *websocket.Conn
	send chan Sample
	id   string
}

// New constructs a Streamer. log may be nil, in which case a default
// logrus.Logger is used.
func New(log *logrus.Logger) *Streamer {
	if log == nil {
		log = logrus.New()
	}
	return &Streamer{
		clients:   make(map[*client]bool),
		broadcast: make(chan Sample, 256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log,
	}
}

// HandleWebSocket upgrades r to a WebSocket connection and registers a
// new subscriber.
func (s *Streamer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan Sample, 64), id: r.RemoteAddr}
	s.register(c)
	s.logger.WithField("client", c.id).Info("live client connected")

	ctx, cancel := context.WithCancel(context.Background())
	go s.writePump(ctx, c)
	go s.readPump(ctx, cancel, c)
}

func (s *Streamer) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = true
	s.clientsServed++
}

func (s *Streamer) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// Broadcast enqueues a sample for delivery to every connected client,
// dropping the oldest pending sample if the broadcast buffer is full.
func (s *Streamer) Broadcast(sample Sample) {
	select {
	case s.broadcast <- sample:
	default:
		select {
		case <-s.broadcast:
		default:
		}
		s.broadcast <- sample
	}
}

// Run drains the broadcast queue and fans samples out to clients until
// ctx is cancelled.
func (s *Streamer) Run(ctx context.Context) error {
	s.logger.Info("live streamer started")
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return ctx.Err()
		case sample := <-s.broadcast:
			s.fanOut(sample)
		}
	}
}

func (s *Streamer) fanOut(sample Sample) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- sample:
			s.messagesSent++
		default:
		}
	}
}

func (s *Streamer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.conn.Close()
		close(c.send)
		delete(s.clients, c)
	}
}

// Stats reports the current client count and lifetime message counters.
func (s *Streamer) Stats() (clients int, sent, served uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients), s.messagesSent, s.clientsServed
}

func (s *Streamer) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			data, err := json.Marshal(sample)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Streamer) readPump(ctx context.Context, cancel context.CancelFunc, c *client) {
	defer func() {
		cancel()
		s.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.WithError(err).Error("websocket read error")
			}
			return
		}
		// Inbound client messages are not part of the read-only contract;
		// the pump only needs to drain them to keep pings flowing.
	}
}
