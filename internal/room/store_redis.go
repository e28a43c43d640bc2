package room

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-xiangqi/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const updateRetries = 5

// RedisStore keeps rooms as JSON under room:<code> plus a set of waiting codes.
// Several server instances can share one Redis.
type RedisStore struct {
	rdb  *redis.Client
	opts StoreOptions
}

func NewRedisStore(rdb *redis.Client, opts StoreOptions) *RedisStore {
	return &RedisStore{rdb: rdb, opts: opts.withDefaults()}
}

func (s *RedisStore) keyMeta(code string) string { return "room:" + NormalizeCode(code) }
func (s *RedisStore) keyLobby() string           { return "room:lobby" }

// Claim reserves r.Code with SETNX and indexes it as waiting.
func (s *RedisStore) Claim(ctx context.Context, r *Room) (bool, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return false, err
	}
	ok, err := s.rdb.SetNX(ctx, s.keyMeta(r.Code), raw, s.opts.ttlFor(r)).Result()
	if err != nil || !ok {
		return false, err
	}
	if r.Status == StatusWaiting {
		if err := s.rdb.SAdd(ctx, s.keyLobby(), r.Code).Err(); err != nil {
			return false, err
		}
		_ = s.rdb.Expire(ctx, s.keyLobby(), s.opts.TTL).Err()
	}
	return true, nil
}

func (s *RedisStore) Load(ctx context.Context, code string) (*Room, error) {
	raw, err := s.rdb.Get(ctx, s.keyMeta(code)).Bytes()
	if err == redis.Nil {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	var r Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", code, err)
	}
	return &r, nil
}

// Update runs fn under WATCH on the room key and retries when another writer wins.
func (s *RedisStore) Update(ctx context.Context, code string, fn func(*Room) error) (*Room, error) {
	key := s.keyMeta(code)
	var out *Room
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		var cur Room
		if err := json.Unmarshal(raw, &cur); err != nil {
			return fmt.Errorf("decode room %s: %w", code, err)
		}
		if err := fn(&cur); err != nil {
			return err
		}
		cur.UpdatedAt = time.Now()
		next, err := json.Marshal(&cur)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, next, s.opts.ttlFor(&cur))
		if cur.Status == StatusWaiting {
			pipe.SAdd(ctx, s.keyLobby(), cur.Code)
		} else {
			pipe.SRem(ctx, s.keyLobby(), cur.Code)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		out = &cur
		return nil
	}
	for i := 0; i < updateRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		obslog.L().Debug("room_update_retry", zap.String("code", code), zap.Int("attempt", i+1))
	}
	return nil, fmt.Errorf("room %s: concurrent updates, giving up", code)
}

func (s *RedisStore) Close(ctx context.Context, code, reason string) (*Room, error) {
	return s.Update(ctx, code, closeFn(reason))
}

// ListWaiting reads the lobby set and prunes codes whose room expired or started.
func (s *RedisStore) ListWaiting(ctx context.Context) ([]*Room, error) {
	codes, err := s.rdb.SMembers(ctx, s.keyLobby()).Result()
	if err != nil {
		return nil, err
	}
	var out []*Room
	for _, c := range codes {
		r, err := s.Load(ctx, c)
		if errors.Is(err, ErrRoomNotFound) || (err == nil && r.Status != StatusWaiting) {
			_ = s.rdb.SRem(ctx, s.keyLobby(), c).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	sortByCreated(out)
	return out, nil
}

// ParseRedisURL turns redis://[:password@]host:port[/db] into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("redis db %q: %w", p, err)
		}
		db = n
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{Addr: u.Host, Password: pass, DB: db}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{ServerName: u.Hostname(), MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// Dial connects to REDIS_URL and pings it.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
