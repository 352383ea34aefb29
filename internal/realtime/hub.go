package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
	"github.com/angelmondragon/fueldrop-backend/pkg/metrics"
)

const (
	defaultSendBuffer    = 32
	defaultFanoutWorkers = 8
)

// Client is one registered connection. Outbound frames are queued on a
// bounded buffer drained by the connection's write loop.
type Client struct {
	ID      uuid.UUID
	ActorID uuid.UUID
	Role    enums.ActorRole

	send   chan []byte
	done   chan struct{}
	closed sync.Once
}

// Send exposes queued frames to the write loop.
func (c *Client) Send() <-chan []byte { return c.send }

// Done is closed once the hub evicts the client.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) close() {
	c.closed.Do(func() { close(c.done) })
}

func (c *Client) offer(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// HubOptions configures buffer sizes and observers.
type HubOptions struct {
	SendBuffer    int
	FanoutWorkers int
	Logger        *logger.Logger
	Metrics       *metrics.RealtimeMetrics
}

// Hub is the in-process connection registry. An actor may hold several
// connections at once; all of them receive the actor's events.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[uuid.UUID]*Client

	sendBuffer int
	workers    int
	logg       *logger.Logger
	metrics    *metrics.RealtimeMetrics
}

func NewHub(opts HubOptions) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.FanoutWorkers <= 0 {
		opts.FanoutWorkers = defaultFanoutWorkers
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Hub{
		clients:    make(map[uuid.UUID]map[uuid.UUID]*Client),
		sendBuffer: opts.SendBuffer,
		workers:    opts.FanoutWorkers,
		logg:       opts.Logger,
		metrics:    opts.Metrics,
	}
}

// Register adds a new connection for the actor.
func (h *Hub) Register(actorID uuid.UUID, role enums.ActorRole) *Client {
	client := &Client{
		ID:      uuid.New(),
		ActorID: actorID,
		Role:    role,
		send:    make(chan []byte, h.sendBuffer),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	conns, ok := h.clients[actorID]
	if !ok {
		conns = make(map[uuid.UUID]*Client)
		h.clients[actorID] = conns
	}
	conns[client.ID] = client
	h.mu.Unlock()

	h.metrics.Connected()
	return client
}

// Unregister removes the connection; other connections of the actor stay.
func (h *Hub) Unregister(client *Client) {
	if client == nil {
		return
	}
	h.mu.Lock()
	removed := false
	if conns, ok := h.clients[client.ActorID]; ok {
		if _, ok := conns[client.ID]; ok {
			delete(conns, client.ID)
			removed = true
		}
		if len(conns) == 0 {
			delete(h.clients, client.ActorID)
		}
	}
	h.mu.Unlock()

	client.close()
	if removed {
		h.metrics.Disconnected()
	}
}

// ConnectionCount returns the number of live connections for the actor.
func (h *Hub) ConnectionCount(actorID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[actorID])
}

// Publish encodes the event and delivers it to local connections.
func (h *Hub) Publish(ctx context.Context, audience Audience, event Event) error {
	frame, err := encodeEvent(&event)
	if err != nil {
		return err
	}
	h.Deliver(ctx, audience, event.Type, frame)
	return nil
}

// Deliver queues an encoded frame on every matching connection and returns
// how many accepted it. Connections whose buffer is full are evicted.
func (h *Hub) Deliver(ctx context.Context, audience Audience, eventType enums.EventType, frame []byte) int {
	recipients := h.resolve(audience)
	if len(recipients) == 0 {
		h.metrics.Dropped("offline")
		return 0
	}

	var delivered atomic.Int64
	workers := h.workers
	if workers > len(recipients) {
		workers = len(recipients)
	}
	p := pool.New().WithMaxGoroutines(workers)
	for _, client := range recipients {
		c := client
		p.Go(func() {
			if c.offer(frame) {
				delivered.Add(1)
				h.metrics.Delivered(eventType.String())
				return
			}
			h.metrics.Dropped("slow_consumer")
			h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
				"actor_id":   c.ActorID.String(),
				"conn_id":    c.ID.String(),
				"event_type": eventType.String(),
			}), "evicting slow realtime consumer")
			h.Unregister(c)
		})
	}
	p.Wait()
	return int(delivered.Load())
}

func (h *Hub) resolve(audience Audience) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{})
	var out []*Client
	add := func(c *Client) {
		if _, ok := seen[c.ID]; ok {
			return
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	for _, actorID := range audience.ActorIDs {
		for _, c := range h.clients[actorID] {
			add(c)
		}
	}
	if len(audience.Roles) > 0 {
		for _, conns := range h.clients {
			for _, c := range conns {
				for _, role := range audience.Roles {
					if c.Role == role {
						add(c)
						break
					}
				}
			}
		}
	}
	return out
}

func encodeEvent(event *Event) ([]byte, error) {
	if !event.Type.IsValid() {
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}
	frame, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	return frame, nil
}
