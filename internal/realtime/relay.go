package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
)

type pubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)
}

type relayMessage struct {
	Audience Audience        `json:"audience"`
	Type     enums.EventType `json:"type"`
	Frame    json.RawMessage `json:"frame"`
}

// RedisRelay fans events out across API instances. Each instance runs the
// relay and delivers what it receives to its own Hub.
type RedisRelay struct {
	bus     pubSub
	hub     *Hub
	channel string
	logg    *logger.Logger
}

func NewRedisRelay(bus pubSub, hub *Hub, channel string, logg *logger.Logger) (*RedisRelay, error) {
	if bus == nil {
		return nil, errors.New("redis pubsub required")
	}
	if hub == nil {
		return nil, errors.New("realtime hub required")
	}
	if channel == "" {
		return nil, errors.New("relay channel required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &RedisRelay{bus: bus, hub: hub, channel: channel, logg: logg}, nil
}

// Publish sends the event through Redis. When Redis is unreachable the event
// still reaches connections on this instance.
func (r *RedisRelay) Publish(ctx context.Context, audience Audience, event Event) error {
	frame, err := encodeEvent(&event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(relayMessage{Audience: audience, Type: event.Type, Frame: frame})
	if err != nil {
		return fmt.Errorf("encode relay message: %w", err)
	}
	if err := r.bus.Publish(ctx, r.channel, payload); err != nil {
		r.logg.Error(ctx, "realtime relay publish failed, delivering locally", err)
		r.hub.Deliver(ctx, audience, event.Type, frame)
	}
	return nil
}

// Run consumes relayed events until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	messages, closeFn, err := r.bus.Subscribe(ctx, r.channel)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	r.logg.Info(ctx, "realtime relay subscribed")
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			var msg relayMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				r.logg.Error(ctx, "discarding malformed relay message", err)
				continue
			}
			r.hub.Deliver(ctx, msg.Audience, msg.Type, msg.Frame)
		}
	}
}
