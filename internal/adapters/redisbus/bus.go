// Package redisbus lets other platform services (tournaments, clans,
// notifications) push events into the hub over Redis pub/sub.
package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/core"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

var ErrBadMessage = errors.New("bad bus message")

// Sink receives decoded bus messages.
type Sink interface {
	PushNotification(uid domain.UserID, payload json.RawMessage) (int, error)
	PushRoomEvent(room domain.RoomID, payload json.RawMessage) (core.PublishResult, error)
}

type Options struct {
	Addr             string
	DB               int
	NotifyChannel    string
	RoomEventChannel string
}

type Bus struct {
	rdb  *redis.Client
	opts Options
	sink Sink
}

// New connects to redis and verifies connectivity.
func New(ctx context.Context, opts Options, sink Sink) (*Bus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: opts.Addr,
		DB:   opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{rdb: rdb, opts: opts, sink: sink}, nil
}

// Run forwards messages until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	pubsub := b.rdb.Subscribe(ctx, b.opts.NotifyChannel, b.opts.RoomEventChannel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	log.Info().Str("module", "adapters.redisbus").Str("notify", b.opts.NotifyChannel).Str("room_events", b.opts.RoomEventChannel).Msg("subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := b.handle(msg.Channel, msg.Payload); err != nil {
				log.Warn().Err(err).Str("module", "adapters.redisbus").Str("channel", msg.Channel).Msg("dropped bus message")
			}
		}
	}
}

// Publish is used by tools and tests to inject events.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *Bus) Close() { _ = b.rdb.Close() }

// handle decodes {"userId": ..., "payload": {...}} on the notify channel and
// {"roomId": ..., "payload": {...}} on the room event channel.
func (b *Bus) handle(channel, raw string) error {
	if !gjson.Valid(raw) {
		return ErrBadMessage
	}
	payload := gjson.Get(raw, "payload")
	if !payload.IsObject() {
		return fmt.Errorf("%w: payload must be an object", ErrBadMessage)
	}
	switch channel {
	case b.opts.NotifyChannel:
		uid := gjson.Get(raw, "userId").String()
		if uid == "" {
			return fmt.Errorf("%w: userId missing", ErrBadMessage)
		}
		n, err := b.sink.PushNotification(domain.UserID(uid), json.RawMessage(payload.Raw))
		if err != nil {
			return err
		}
		log.Debug().Str("module", "adapters.redisbus").Str("user", uid).Int("devices", n).Msg("notification forwarded")
	case b.opts.RoomEventChannel:
		room, err := domain.ParseRoomID(gjson.Get(raw, "roomId").String())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadMessage, err)
		}
		res, err := b.sink.PushRoomEvent(room, json.RawMessage(payload.Raw))
		if err != nil {
			return err
		}
		log.Debug().Str("module", "adapters.redisbus").Str("room", string(room)).Int("delivered", len(res.Delivered)).Msg("room event forwarded")
	default:
		return fmt.Errorf("%w: unexpected channel %q", ErrBadMessage, channel)
	}
	return nil
}
