package room

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func waitingRoom(code, host string) *Room {
	now := time.Now()
	return &Room{Code: code, Status: StatusWaiting, HostID: host, HostName: host, CreatedAt: now, UpdatedAt: now}
}

func storeSuite(t *testing.T, s Store) {
	ctx := context.Background()

	ok, err := s.Claim(ctx, waitingRoom("AAAAAA", "u1"))
	if err != nil || !ok {
		t.Fatalf("Claim: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.Claim(ctx, waitingRoom("AAAAAA", "u9")); ok {
		t.Fatalf("second Claim of the same code must fail")
	}
	if _, err := s.Load(ctx, "ZZZZZZ"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Load missing: %v", err)
	}
	r, err := s.Load(ctx, " aaaaaa ")
	if err != nil || r.HostID != "u1" {
		t.Fatalf("Load normalized code: %+v, %v", r, err)
	}

	waiting, err := s.ListWaiting(ctx)
	if err != nil || len(waiting) != 1 {
		t.Fatalf("ListWaiting: %d rooms, err=%v", len(waiting), err)
	}

	boom := errors.New("boom")
	if _, err := s.Update(ctx, "AAAAAA", func(r *Room) error {
		r.GuestID = "ghost"
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("Update error not propagated: %v", err)
	}
	if r, _ := s.Load(ctx, "AAAAAA"); r.GuestID != "" {
		t.Fatalf("failed Update must not persist")
	}

	r, err = s.Update(ctx, "AAAAAA", func(r *Room) error {
		r.GuestID, r.Status = "u2", StatusActive
		return nil
	})
	if err != nil || r.Status != StatusActive {
		t.Fatalf("Update: %+v, %v", r, err)
	}
	if waiting, _ := s.ListWaiting(ctx); len(waiting) != 0 {
		t.Fatalf("active room still listed as waiting")
	}

	r, err = s.Close(ctx, "AAAAAA", ReasonDesync)
	if err != nil || r.Status != StatusClosed || r.Reason != ReasonDesync {
		t.Fatalf("Close: %+v, %v", r, err)
	}
	r, err = s.Close(ctx, "AAAAAA", ReasonLeave)
	if err != nil || r.Reason != ReasonDesync {
		t.Fatalf("second Close must keep the first reason: %+v, %v", r, err)
	}
	if _, err := s.Update(ctx, "NOPE00", func(*Room) error { return nil }); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Update missing: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	storeSuite(t, NewMemoryStore(StoreOptions{}))
}

func TestRedisStore(t *testing.T) {
	_, rdb := newMiniRedis(t)
	storeSuite(t, NewRedisStore(rdb, StoreOptions{}))
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(StoreOptions{TTL: time.Minute, ClosedTTL: time.Second})
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()
	if ok, _ := s.Claim(ctx, waitingRoom("BBBBBB", "u1")); !ok {
		t.Fatalf("Claim failed")
	}
	if _, err := s.Close(ctx, "BBBBBB", ReasonClosed); err != nil {
		t.Fatalf("Close: %v", err)
	}
	now = now.Add(2 * time.Second)
	if _, err := s.Load(ctx, "BBBBBB"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("closed room should expire after ClosedTTL: %v", err)
	}
	if ok, _ := s.Claim(ctx, waitingRoom("BBBBBB", "u3")); !ok {
		t.Fatalf("expired code should be claimable again")
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	s := NewRedisStore(rdb, StoreOptions{TTL: time.Minute, ClosedTTL: 5 * time.Second})
	ctx := context.Background()
	if ok, _ := s.Claim(ctx, waitingRoom("CCCCCC", "u1")); !ok {
		t.Fatalf("Claim failed")
	}
	if _, err := s.Close(ctx, "CCCCCC", ReasonClosed); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ttl := mr.TTL("room:CCCCCC"); ttl != 5*time.Second {
		t.Fatalf("closed TTL = %v", ttl)
	}
	mr.FastForward(6 * time.Second)
	if _, err := s.Load(ctx, "CCCCCC"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("room should have expired: %v", err)
	}
}

func TestRedisListWaitingPrunesStale(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	s := NewRedisStore(rdb, StoreOptions{TTL: time.Minute})
	ctx := context.Background()
	for _, c := range []string{"DDDDDD", "EEEEEE"} {
		if ok, _ := s.Claim(ctx, waitingRoom(c, "u-"+c)); !ok {
			t.Fatalf("Claim %s failed", c)
		}
	}
	mr.Del("room:DDDDDD")
	list, err := s.ListWaiting(ctx)
	if err != nil || len(list) != 1 || list[0].Code != "EEEEEE" {
		t.Fatalf("ListWaiting = %+v, %v", list, err)
	}
	if ok, _ := mr.SIsMember("room:lobby", "DDDDDD"); ok {
		t.Fatalf("stale code not pruned from lobby")
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := ParseRedisURL("redis://:secret@localhost:6380/3")
	if err != nil {
		t.Fatalf("ParseRedisURL: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 3 || opts.TLSConfig != nil {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts, err := ParseRedisURL("rediss://cache:6379"); err != nil || opts.TLSConfig == nil {
		t.Fatalf("rediss should enable TLS: %v", err)
	}
	for _, bad := range []string{"http://x", "redis://h/abc"} {
		if _, err := ParseRedisURL(bad); err == nil {
			t.Fatalf("ParseRedisURL(%q): expected error", bad)
		}
	}
}

func TestCodeGen(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		c, err := codeGen(6)
		if err != nil || len(c) != 6 {
			t.Fatalf("codeGen: %q, %v", c, err)
		}
		for _, ch := range c {
			if ch == '0' || ch == 'O' || ch == '1' || ch == 'I' {
				t.Fatalf("ambiguous character in %q", c)
			}
		}
		seen[c] = true
	}
	if len(seen) < 45 {
		t.Fatalf("codes repeat too often: %d unique of 50", len(seen))
	}
}
