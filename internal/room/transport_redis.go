package room

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/park285/cheese-xiangqi/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisTransport relays envelopes over Redis pub/sub, one channel per room.
type RedisTransport struct {
	rdb    *redis.Client
	buffer int
}

func NewRedisTransport(rdb *redis.Client, buffer int) *RedisTransport {
	if buffer <= 0 {
		buffer = 64
	}
	return &RedisTransport{rdb: rdb, buffer: buffer}
}

func relayChannel(code string) string { return "room:relay:" + NormalizeCode(code) }

func (t *RedisTransport) Send(ctx context.Context, code string, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return t.rdb.Publish(ctx, relayChannel(code), raw).Err()
}

func (t *RedisTransport) Receive(ctx context.Context, code string) (<-chan Envelope, error) {
	ps := t.rdb.Subscribe(ctx, relayChannel(code))
	// wait for the subscription confirmation so nothing published after we return is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", code, err)
	}
	msgs := ps.Channel(redis.WithChannelSize(t.buffer))
	out := make(chan Envelope)
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					obslog.L().Warn("relay_decode_error", zap.String("code", code), zap.Error(err))
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
