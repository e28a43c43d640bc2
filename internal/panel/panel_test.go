package panel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/park285/cheese-xiangqi/internal/msgcat"
	"github.com/park285/cheese-xiangqi/internal/room"
	"github.com/park285/cheese-xiangqi/internal/session"
	"github.com/park285/cheese-xiangqi/internal/xiangqi"
)

type fakeLobby struct {
	created []room.Identity
	joinErr error
}

func (f *fakeLobby) CreateRoom(_ context.Context, host room.Identity) (*room.Room, error) {
	f.created = append(f.created, host)
	return &room.Room{Code: "ABC234", Status: room.StatusWaiting, HostID: host.ID, HostName: host.Name}, nil
}

func (f *fakeLobby) JoinRoom(_ context.Context, code string, guest room.Identity) (*room.Room, error) {
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	return &room.Room{Code: code, Status: room.StatusActive, HostID: "h1", HostName: "Hana", GuestID: guest.ID}, nil
}

func newPanel(t *testing.T, lobby Lobby) (*Panel, *session.Session) {
	t.Helper()
	sess := session.New()
	return New(sess, lobby, UserInfo{ID: "u1", Username: "Alice", Elo: 1200}, msgcat.MustDefault()), sess
}

func TestEveryCommandHasHandler(t *testing.T) {
	cmds := Commands()
	if len(cmds) != 4 {
		t.Fatalf("expected 4 commands, got %d", len(cmds))
	}
	for _, c := range cmds {
		if handlers[c] == nil {
			t.Fatalf("no handler for %s", c)
		}
		got, err := ParseCommand(c.String())
		if err != nil || got != c {
			t.Fatalf("ParseCommand(%q) = %v, %v", c.String(), got, err)
		}
	}
}

func TestParseCommand(t *testing.T) {
	cases := map[string]Command{
		"Undo":        CmdUndo,
		" reset ":     CmdReset,
		"New Room":    CmdNewRoom,
		"newroom":     CmdNewRoom,
		"JOIN   ROOM": CmdJoinRoom,
	}
	for label, want := range cases {
		got, err := ParseCommand(label)
		if err != nil || got != want {
			t.Fatalf("ParseCommand(%q) = %v, %v; want %v", label, got, err, want)
		}
	}
	if _, err := ParseCommand("Resign"); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("unknown label: %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	p, _ := newPanel(t, nil)
	res, err := p.Run(context.Background(), Command(42), "")
	if !errors.Is(err, ErrUnknownCommand) || !strings.Contains(res.Text, "Unknown command") {
		t.Fatalf("Run(42) = %+v, %v", res, err)
	}
	res, err = p.RunLabel(context.Background(), "Fly", "")
	if !errors.Is(err, ErrUnknownCommand) || res.Text != "Unknown command: Fly" {
		t.Fatalf("RunLabel(Fly) = %+v, %v", res, err)
	}
}

func TestUndoAndReset(t *testing.T) {
	p, sess := newPanel(t, nil)
	ctx := context.Background()

	res, err := p.Run(ctx, CmdUndo, "")
	if err != nil || res.Text != "Nothing to undo" {
		t.Fatalf("undo on empty history: %+v, %v", res, err)
	}

	if _, err := p.Play("e3e4"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if _, err := p.Play("e6e5"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	res, err = p.RunLabel(ctx, "Undo", "")
	if err != nil || res.Command != CmdUndo || res.Text != "Move taken back" {
		t.Fatalf("undo: %+v, %v", res, err)
	}
	if sess.Ply() != 1 || sess.Turn() != xiangqi.Blue {
		t.Fatalf("after undo: ply=%d turn=%s", sess.Ply(), sess.Turn())
	}

	for i := 0; i < 2; i++ {
		res, err = p.Run(ctx, CmdReset, "")
		if err != nil || res.Text != "New game started" {
			t.Fatalf("reset #%d: %+v, %v", i+1, res, err)
		}
		if sess.Ply() != 0 || sess.Turn() != xiangqi.Red || sess.FEN() != xiangqi.StartFEN {
			t.Fatalf("reset #%d left ply=%d turn=%s", i+1, sess.Ply(), sess.Turn())
		}
	}
}

func TestPlayErrorsAreCatalogTexts(t *testing.T) {
	p, _ := newPanel(t, nil)
	cases := []struct {
		move string
		want string
		err  error
	}{
		{"e6e5", "It is not your turn", session.ErrNotYourTurn},
		{"e3e5", "Illegal move: ", xiangqi.ErrIllegalMove},
		{"zz", "Cannot read move", xiangqi.ErrBadNotation},
	}
	for _, tc := range cases {
		res, err := p.Play(tc.move)
		if !errors.Is(err, tc.err) {
			t.Fatalf("%s: err = %v, want %v", tc.move, err, tc.err)
		}
		if !strings.HasPrefix(res.Text, tc.want) {
			t.Fatalf("%s: text = %q, want prefix %q", tc.move, res.Text, tc.want)
		}
	}
	res, err := p.Play("h2e2")
	if err != nil || res.Text != "Red played h2e2" {
		t.Fatalf("Play: %+v, %v", res, err)
	}
}

func TestErrorTextForRejectedSeat(t *testing.T) {
	p, _ := newPanel(t, nil)
	err := fmt.Errorf("dial relay ABC234: %w", room.ErrBadSeat)
	if got := p.ErrorText(err, "ABC234"); got != "Your seat in room ABC234 could not be verified" {
		t.Fatalf("ErrorText = %q", got)
	}
}

func TestStatus(t *testing.T) {
	p, _ := newPanel(t, nil)
	lines := p.Status()
	if len(lines) != 2 || lines[0] != "Hello Alice, ELO: 1200" || lines[1] != "Red to move" {
		t.Fatalf("Status = %q", lines)
	}
	p.SetElo(1216)
	if got := p.Status()[0]; got != "Hello Alice, ELO: 1216" {
		t.Fatalf("greeting after SetElo = %q", got)
	}

	mated, err := session.NewFromFEN("R3k4/1R7/9/9/9/9/9/9/9/3K5 b")
	if err != nil {
		t.Fatalf("NewFromFEN: %v", err)
	}
	p.Attach(mated, nil)
	lines = p.Status()
	if lines[1] != "Red won" {
		t.Fatalf("winner line = %q", lines[1])
	}

	// Blue delivers mate, so Red is to move and Blue won
	blueMate, err := session.NewFromFEN("3k5/9/9/9/9/9/9/9/1r7/r3K4 w")
	if err != nil {
		t.Fatalf("NewFromFEN: %v", err)
	}
	p.Attach(blueMate, nil)
	if got := p.Status()[1]; got != "Blue won" {
		t.Fatalf("winner line = %q", got)
	}
}

func TestStatusNamesWinnerWhenLoserIsNotToMove(t *testing.T) {
	p, _ := newPanel(t, nil)
	// Blue has no general while Red is to move
	noBlueGeneral, err := session.NewFromFEN("9/9/9/9/9/9/9/9/9/4K4 w")
	if err != nil {
		t.Fatalf("NewFromFEN: %v", err)
	}
	if !noBlueGeneral.IsOver() {
		t.Fatalf("position without a Blue general should be decided")
	}
	p.Attach(noBlueGeneral, nil)
	if got := p.Status()[1]; got != "Red won" {
		t.Fatalf("winner line = %q, want Red won", got)
	}
}

func TestRoomCommands(t *testing.T) {
	lobby := &fakeLobby{}
	p, _ := newPanel(t, lobby)
	ctx := context.Background()

	res, err := p.Run(ctx, CmdNewRoom, "")
	if err != nil || res.Room == nil || res.Text != "Room ABC234 created, waiting for an opponent" {
		t.Fatalf("New Room: %+v, %v", res, err)
	}
	if len(lobby.created) != 1 || lobby.created[0].ID != "u1" || lobby.created[0].Name != "Alice" {
		t.Fatalf("lobby saw %+v", lobby.created)
	}

	res, err = p.Run(ctx, CmdJoinRoom, "  ")
	if !errors.Is(err, ErrRoomCodeRequired) || res.Text != "A room code is required" {
		t.Fatalf("Join without code: %+v, %v", res, err)
	}

	res, err = p.Run(ctx, CmdJoinRoom, "xyz789")
	if err != nil || res.Text != "Joined room XYZ789 against Hana" {
		t.Fatalf("Join: %+v, %v", res, err)
	}

	lobby.joinErr = room.ErrRoomNotFound
	res, err = p.Run(ctx, CmdJoinRoom, "nope22")
	if !errors.Is(err, room.ErrRoomNotFound) || res.Text != "Room NOPE22 does not exist" {
		t.Fatalf("Join unknown: %+v, %v", res, err)
	}
	lobby.joinErr = room.ErrRoomFull
	if res, _ := p.Run(ctx, CmdJoinRoom, "full22"); res.Text != "Room FULL22 is full" {
		t.Fatalf("Join full: %q", res.Text)
	}
}

func TestRoomCommandsWithoutLobby(t *testing.T) {
	p, _ := newPanel(t, nil)
	if _, err := p.Run(context.Background(), CmdNewRoom, ""); !errors.Is(err, ErrNoLobby) {
		t.Fatalf("New Room offline: %v", err)
	}
}

func TestPanelWithRoomManager(t *testing.T) {
	mgr := room.NewManager(room.NewMemoryStore(room.StoreOptions{}), room.NewMemoryHub(8), room.Options{})
	defer mgr.Stop()
	ctx := context.Background()

	host := New(session.New(), mgr, UserInfo{ID: "h1", Username: "Hana"}, nil)
	guest := New(session.New(), mgr, UserInfo{ID: "g1", Username: "Gus"}, nil)

	created, err := host.Run(ctx, CmdNewRoom, "")
	if err != nil {
		t.Fatalf("New Room: %v", err)
	}
	joined, err := guest.Run(ctx, CmdJoinRoom, created.Room.Code)
	if err != nil || joined.Room.Status != room.StatusActive {
		t.Fatalf("Join Room: %+v, %v", joined, err)
	}
	if _, err := host.Run(ctx, CmdJoinRoom, created.Room.Code); !errors.Is(err, room.ErrSelfJoin) {
		t.Fatalf("host joining own room: %v", err)
	}
}

type stubMover struct{ played []string }

func (s *stubMover) Play(iccs string) (session.Outcome, error) {
	s.played = append(s.played, iccs)
	mv, err := xiangqi.ParseMove(iccs)
	return session.Outcome{Move: mv, Side: xiangqi.Red, Ply: len(s.played)}, err
}

func TestOnlineModeRoutesMovesAndBlocksUndo(t *testing.T) {
	p, _ := newPanel(t, nil)
	mover := &stubMover{}
	p.Attach(session.New(), mover)

	if _, err := p.Play("h2e2"); err != nil || len(mover.played) != 1 {
		t.Fatalf("Play through mover: %v, %v", err, mover.played)
	}
	for _, c := range []Command{CmdUndo, CmdReset} {
		res, err := p.Run(context.Background(), c, "")
		if !errors.Is(err, ErrLocalOnly) || !strings.Contains(res.Text, "local game") {
			t.Fatalf("%s online: %+v, %v", c, res, err)
		}
	}
}
