package roomclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/cheese-xiangqi/internal/api"
	"github.com/park285/cheese-xiangqi/internal/panel"
	"github.com/park285/cheese-xiangqi/internal/room"
	"github.com/park285/cheese-xiangqi/internal/session"
	"github.com/park285/cheese-xiangqi/internal/xiangqi"
	"github.com/park285/cheese-xiangqi/pkg/xiangqidto"
)

var _ panel.Lobby = (*Client)(nil)

var (
	hana = room.Identity{ID: "h1", Name: "Hana"}
	gus  = room.Identity{ID: "g1", Name: "Gus"}
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	hub := room.NewMemoryHub(16)
	mgr := room.NewManager(room.NewMemoryStore(room.StoreOptions{}), hub, room.Options{SendTimeout: time.Second})
	t.Cleanup(mgr.Stop)
	ts := httptest.NewServer(api.New(mgr, hub).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestClientLobbyRoundTrip(t *testing.T) {
	ts := newServer(t)
	c := NewClient(ts.URL + "/")
	ctx := context.Background()

	created, err := c.CreateRoom(ctx, hana)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != room.StatusWaiting || created.HostID != "h1" || created.HostName != "Hana" {
		t.Fatalf("created room: %+v", created)
	}

	list, err := c.ListRooms(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Code != created.Code {
		t.Fatalf("list = %+v", list)
	}
	if created.HostSeat == "" || c.Seat(created.Code, "h1") != created.HostSeat || list[0].HostSeat != "" {
		t.Fatalf("seat: created=%q recorded=%q listed=%q", created.HostSeat, c.Seat(created.Code, "h1"), list[0].HostSeat)
	}

	joined, err := c.JoinRoom(ctx, created.Code, gus)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.Status != room.StatusActive || joined.GuestID != "g1" {
		t.Fatalf("joined room: %+v", joined)
	}

	mv, err := c.SubmitMove(ctx, created.Code, "h1", "h2e2")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if mv.Ply != 1 || mv.Move != "h2e2" {
		t.Fatalf("move response: %+v", mv)
	}
	st, err := c.State(ctx, created.Code)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Ply != 1 || len(st.Moves) != 1 {
		t.Fatalf("state: %+v", st)
	}

	left, err := c.Leave(ctx, created.Code, "g1")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if left.Status != room.StatusClosed || left.Winner != "h1" {
		t.Fatalf("after leave: %+v", left)
	}

	got, err := c.GetRoom(ctx, created.Code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Reason != room.ReasonLeave {
		t.Fatalf("reason = %q", got.Reason)
	}

	p, err := c.Profile(ctx, "h1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Rating != room.DefaultElo {
		t.Fatalf("rating without archive = %d", p.Rating)
	}
}

func TestClientErrorsMapToSentinels(t *testing.T) {
	ts := newServer(t)
	c := NewClient(ts.URL, WithRetry(1))
	ctx := context.Background()

	if _, err := c.GetRoom(ctx, "ZZZZZZ"); !errors.Is(err, room.ErrRoomNotFound) {
		t.Fatalf("missing room err = %v", err)
	}
	if _, err := c.Game(ctx, "no-archive"); !errors.Is(err, room.ErrGameNotFound) {
		t.Fatalf("missing game err = %v", err)
	}
	r, err := c.CreateRoom(ctx, hana)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.JoinRoom(ctx, r.Code, hana); !errors.Is(err, room.ErrSelfJoin) {
		t.Fatalf("self join err = %v", err)
	}
	if _, err := c.SubmitMove(ctx, r.Code, "h1", "h2e2"); !errors.Is(err, room.ErrNotStarted) {
		t.Fatalf("move before join err = %v", err)
	}
	if _, err := c.JoinRoom(ctx, r.Code, gus); err != nil {
		t.Fatalf("join: %v", err)
	}
	cases := []struct {
		player, move string
		want         error
	}{
		{"h1", "z9", xiangqi.ErrBadNotation},
		{"g1", "h7e7", session.ErrNotYourTurn},
		{"h1", "e3e5", xiangqi.ErrIllegalMove},
		{"x9", "h2e2", room.ErrNotParticipant},
	}
	for _, tc := range cases {
		if _, err := c.SubmitMove(ctx, r.Code, tc.player, tc.move); !errors.Is(err, tc.want) {
			t.Fatalf("%s %s: err = %v, want %v", tc.player, tc.move, err, tc.want)
		}
	}

	// a client that only learned the ids from the lobby holds no seat
	other := NewClient(ts.URL, WithRetry(1))
	if _, err := other.Leave(ctx, r.Code, "h1"); !errors.Is(err, room.ErrBadSeat) {
		t.Fatalf("leave without seat err = %v", err)
	}
	if _, err := other.JoinRoom(ctx, r.Code, gus); !errors.Is(err, room.ErrBadSeat) {
		t.Fatalf("rejoin without seat err = %v", err)
	}
	if again, err := c.JoinRoom(ctx, r.Code, gus); err != nil || again.GuestSeat != c.Seat(r.Code, "g1") {
		t.Fatalf("rejoin with seat: %+v, %v", again, err)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(xiangqidto.Error{Code: xiangqidto.CodeInternal, Message: "busy", Retryable: true})
			return
		}
		_ = json.NewEncoder(w).Encode(xiangqidto.Room{Code: "ABC234", Status: string(room.StatusWaiting), HostID: "h1"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithRetry(3))
	r, err := c.GetRoom(context.Background(), "abc234")
	if err != nil {
		t.Fatalf("get after retries: %v", err)
	}
	if r.Code != "ABC234" || hits.Load() != 3 {
		t.Fatalf("room %+v after %d hits", r, hits.Load())
	}

	hits.Store(0)
	_, err = c.CreateRoom(context.Background(), hana)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusServiceUnavailable || se.Body.Code != xiangqidto.CodeInternal {
		t.Fatalf("create err = %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("create was retried: %d hits", hits.Load())
	}
}

func TestClientHonoursContextDeadline(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := NewClient(ts.URL, WithRetry(1)).GetRoom(ctx, "ABC234"); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 250*time.Millisecond {
		t.Fatalf("deadline ignored: took %s", time.Since(start))
	}
}

func TestBackoffDuration(t *testing.T) {
	cases := map[int]time.Duration{
		0: 100 * time.Millisecond,
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
		6: 3200 * time.Millisecond,
		9: 3200 * time.Millisecond,
	}
	for attempt, want := range cases {
		if got := backoffDuration(attempt); got != want {
			t.Fatalf("backoffDuration(%d) = %s, want %s", attempt, got, want)
		}
	}
}

func TestDecodeErrorKeepsUnknownBodies(t *testing.T) {
	err := decodeError(http.StatusBadGateway, []byte("<html>bad gateway</html>"))
	var se *StatusError
	if !errors.As(err, &se) || se.Raw != "<html>bad gateway</html>" {
		t.Fatalf("err = %v", err)
	}
}
