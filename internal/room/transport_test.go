package room

import (
	"context"
	"testing"
	"time"
)

func recvOne(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for envelope")
	}
	return Envelope{}
}

func transportSuite(t *testing.T, tr Transport) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := tr.Receive(ctx, "ROOM01")
	if err != nil {
		t.Fatalf("Receive a: %v", err)
	}
	b, err := tr.Receive(ctx, "room01")
	if err != nil {
		t.Fatalf("Receive b: %v", err)
	}
	other, err := tr.Receive(ctx, "ROOM02")
	if err != nil {
		t.Fatalf("Receive other: %v", err)
	}

	moves := []string{"h2e2", "h9g7", "h0g2"}
	for i, mv := range moves {
		if err := tr.Send(ctx, "ROOM01", Envelope{Type: EnvMove, Code: "ROOM01", From: "u1", Ply: i + 1, Move: mv}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	for _, ch := range []<-chan Envelope{a, b} {
		for i, mv := range moves {
			env := recvOne(t, ch)
			if env.Move != mv || env.Ply != i+1 {
				t.Fatalf("out of order: got %s/%d want %s/%d", env.Move, env.Ply, mv, i+1)
			}
		}
	}
	select {
	case env := <-other:
		t.Fatalf("envelope leaked to another room: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-a:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("subscription channel not closed after cancel")
		}
	}
}

func TestMemoryHub(t *testing.T) {
	hub := NewMemoryHub(4)
	transportSuite(t, hub)
	eventually(t, func() bool { return hub.Subscribers("ROOM01") == 0 }, "hub subscriptions not released")
}

func TestRedisTransport(t *testing.T) {
	_, rdb := newMiniRedis(t)
	transportSuite(t, NewRedisTransport(rdb, 16))
}

func TestMemoryHubSendHonoursContext(t *testing.T) {
	hub := NewMemoryHub(1)
	ctx := context.Background()
	if _, err := hub.Receive(ctx, "SLOW01"); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	// nobody reads: one envelope sits in the forwarder, one in the buffer
	_ = hub.Send(ctx, "SLOW01", Envelope{Type: EnvAck})
	_ = hub.Send(ctx, "SLOW01", Envelope{Type: EnvAck})
	tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := hub.Send(tctx, "SLOW01", Envelope{Type: EnvAck}); err == nil {
		t.Fatalf("expected Send to give up when the subscriber is stuck")
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s", msg)
}
