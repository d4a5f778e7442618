// Package eventbus mirrors the codec's event stream onto NATS, so other
// services on the bus can observe mission events without tailing
// events.jsonl directly.
package eventbus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/danielflataker/usv-autopilot/internal/codec"
)

// Subject is the NATS subject events are mirrored onto.
const Subject = "usvtwin.events"

// Config configures the bus connection.
type Config struct {
	URL           string
	ClientID      string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns sane defaults for a local NATS deployment.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		ClientID:      "usvtwin-eventbus",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Bus publishes codec.Event values to NATS and tracks basic delivery
// stats.
type Bus struct {
	mu   sync.RWMutex
	nc   *nats.Conn
	sent uint64
}

// Connect dials the NATS server described by cfg.
func Connect(cfg Config) (*Bus, error) {
	if cfg.URL == "" {
		cfg = DefaultConfig()
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ClientID),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	return &Bus{nc: nc}, nil
}

// Publish mirrors one event onto Subject.
func (b *Bus) Publish(e codec.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	b.mu.RLock()
	nc := b.nc
	b.mu.RUnlock()
	if nc == nil || !nc.IsConnected() {
		return fmt.Errorf("eventbus: not connected")
	}
	if err := nc.Publish(Subject, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	b.mu.Lock()
	b.sent++
	b.mu.Unlock()
	return nil
}

// Sent returns the number of events successfully published.
func (b *Bus) Sent() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sent
}

// Close drains and closes the connection.
func (b *Bus) Close() error {
	b.mu.RLock()
	nc := b.nc
	b.mu.RUnlock()
	if nc == nil {
		return nil
	}
	return nc.Drain()
}
