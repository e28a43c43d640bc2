package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-xiangqi/internal/api"
	"github.com/park285/cheese-xiangqi/internal/msgcat"
	"github.com/park285/cheese-xiangqi/internal/panel"
	"github.com/park285/cheese-xiangqi/internal/room"
	"github.com/park285/cheese-xiangqi/internal/roomclient"
	"github.com/park285/cheese-xiangqi/internal/session"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRunLocalScript(t *testing.T) {
	in := strings.NewReader("h2e2\nundo\nundo\nzz\nh7e7\nreset\nquit\nh2e2\n")
	var out bytes.Buffer
	if err := runLocal(context.Background(), in, &out, msgcat.MustDefault(), "Mei"); err != nil {
		t.Fatalf("runLocal: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"Hello Mei, ELO: 1200",
		"Red played h2e2",
		"Move taken back",
		"Nothing to undo",
		"Cannot read move",
		"It is not your turn",
		"New game started",
		"Red to move",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "Red played h2e2") != 1 {
		t.Fatalf("input after quit was played:\n%s", got)
	}
}

func TestRunLocalEndsAtEOF(t *testing.T) {
	var out bytes.Buffer
	if err := runLocal(context.Background(), strings.NewReader("h2e2\n"), &out, nil, ""); err != nil {
		t.Fatalf("runLocal: %v", err)
	}
	if !strings.Contains(out.String(), "Hello player") || !strings.Contains(out.String(), "Blue to move") {
		t.Fatalf("output:\n%s", out.String())
	}
}

func TestRunOnlineHostAgainstRemotePeer(t *testing.T) {
	hub := room.NewMemoryHub(16)
	mgr := room.NewManager(room.NewMemoryStore(room.StoreOptions{}), hub, room.Options{SendTimeout: time.Second})
	t.Cleanup(mgr.Stop)
	ts := httptest.NewServer(api.New(mgr, hub).Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	inR, inW := io.Pipe()
	t.Cleanup(func() { _ = inW.Close() })
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runOnline(ctx, inR, out, msgcat.MustDefault(), onlineOpts{
			server: ts.URL,
			id:     "h1",
			name:   "Hana",
			poll:   20 * time.Millisecond,
			peer:   room.PeerOptions{SendTimeout: time.Second},
		})
	}()

	client := roomclient.NewClient(ts.URL)
	var code string
	eventually(t, func() bool {
		rooms, err := client.ListRooms(ctx)
		if err != nil || len(rooms) == 0 {
			return false
		}
		code = rooms[0].Code
		return true
	}, "host never created a room")

	gus := room.Identity{ID: "g1", Name: "Gus"}
	r, err := client.JoinRoom(ctx, code, gus)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	tr, err := roomclient.NewWSTransport(ts.URL, gus.ID, roomclient.WithSeats(client))
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	defer tr.Close()
	guest, err := room.NewPeer(ctx, tr, r, gus, room.PeerOptions{SendTimeout: time.Second})
	if err != nil {
		t.Fatalf("guest peer: %v", err)
	}
	defer guest.Close()

	eventually(t, func() bool { return strings.Contains(out.String(), "You play Red") }, "host never attached")
	if _, err := io.WriteString(inW, "undo\nh2e2\n"); err != nil {
		t.Fatalf("write input: %v", err)
	}

	select {
	case ev := <-guest.Events():
		if ev.Kind != room.EventOpponentMove || ev.Outcome.Move.String() != "h2e2" {
			t.Fatalf("guest event: %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("guest never saw the host move")
	}
	if _, err := guest.Play("h9g7"); err != nil {
		t.Fatalf("guest move: %v", err)
	}
	eventually(t, func() bool { return strings.Contains(out.String(), "Blue played h9g7") }, "host never saw the guest move")

	if err := guest.Leave(ctx); err != nil {
		t.Fatalf("leave: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runOnline: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("host did not stop after the guest left")
	}

	got := out.String()
	for _, want := range []string{"Room " + code + " created", "Gus joined", "Undo and reset are only available in a local game", "Red played h2e2", "Room " + code + " is closed"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestDrainEventsShowsQueuedMoveBeforeClose(t *testing.T) {
	game := session.New()
	outcome, err := game.Play("h2e2")
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	p := panel.New(game, nil, panel.UserInfo{ID: "g1", Username: "Gus", Elo: 1200}, msgcat.MustDefault())

	events := make(chan room.Event, 2)
	events <- room.Event{Kind: room.EventOpponentMove, Outcome: outcome, Ply: 1}
	events <- room.Event{Kind: room.EventClosed, Err: room.ErrRoomClosed}

	var out bytes.Buffer
	stop, err := drainEvents(&out, p, game, "ABC234", events)
	if !stop || err != nil {
		t.Fatalf("drainEvents = %v, %v; want stop without error", stop, err)
	}
	text := out.String()
	moved := strings.Index(text, "Red played h2e2")
	gone := strings.Index(text, "Room ABC234 is closed")
	if moved < 0 || gone < 0 || moved > gone {
		t.Fatalf("output should show the move then the close:\n%s", text)
	}
}

func TestDrainEventsReturnsWhenQueueIsEmpty(t *testing.T) {
	game := session.New()
	p := panel.New(game, nil, panel.UserInfo{ID: "g1", Username: "Gus"}, msgcat.MustDefault())
	var out bytes.Buffer
	stop, err := drainEvents(&out, p, game, "ABC234", make(chan room.Event))
	if stop || err != nil || out.Len() != 0 {
		t.Fatalf("drainEvents on empty queue = %v, %v, %q", stop, err, out.String())
	}
}
