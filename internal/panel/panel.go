// Package panel is the headless control surface. It forwards button commands
// to an injected game session and lobby and renders their results as text.
package panel

import (
	"context"
	"errors"
	"strings"

	"github.com/park285/cheese-xiangqi/internal/msgcat"
	"github.com/park285/cheese-xiangqi/internal/obslog"
	"github.com/park285/cheese-xiangqi/internal/room"
	"github.com/park285/cheese-xiangqi/internal/session"
	"github.com/park285/cheese-xiangqi/internal/xiangqi"
	"go.uber.org/zap"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrUnknownCommand   error = staticErr("unknown command")
	ErrRoomCodeRequired error = staticErr("room code required")
	ErrNoLobby          error = staticErr("no lobby attached")
	ErrLocalOnly        error = staticErr("only available in a local game")
)

// Game is what the panel needs from a Game Session. *session.Session satisfies it.
type Game interface {
	Undo() bool
	ResetGame()
	IsOver() bool
	Turn() xiangqi.Side
	Winner() (xiangqi.Side, bool)
	Play(iccs string) (session.Outcome, error)
}

// Mover plays moves on behalf of the user. An online *room.Peer is one.
type Mover interface {
	Play(iccs string) (session.Outcome, error)
}

// Lobby creates and joins rooms. *room.Manager and *roomclient.Client satisfy it.
type Lobby interface {
	CreateRoom(ctx context.Context, host room.Identity) (*room.Room, error)
	JoinRoom(ctx context.Context, code string, guest room.Identity) (*room.Room, error)
}

type UserInfo struct {
	ID       string
	Username string
	Elo      int
}

func (u UserInfo) identity() room.Identity {
	return room.Identity{ID: u.ID, Name: u.Username}
}

// Result is what a command produced. Room is set by NewRoom and JoinRoom.
type Result struct {
	Command Command
	Text    string
	Room    *room.Room
}

// Panel holds references to the session and lobby; it owns neither.
type Panel struct {
	game  Game
	mover Mover
	lobby Lobby
	user  UserInfo
	cat   *msgcat.Catalog
}

func New(game Game, lobby Lobby, user UserInfo, cat *msgcat.Catalog) *Panel {
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	return &Panel{game: game, lobby: lobby, user: user, cat: cat}
}

// Attach switches the panel to another game, e.g. after joining a room. A
// non-nil mover routes moves through it and disables Undo and Reset.
func (p *Panel) Attach(game Game, mover Mover) {
	p.game = game
	p.mover = mover
}

func (p *Panel) SetElo(elo int) { p.user.Elo = elo }

func (p *Panel) User() UserInfo { return p.user }

type handler func(p *Panel, ctx context.Context, arg string) (Result, error)

// handlers is indexed by Command; every command has exactly one entry.
var handlers = [cmdEnd]handler{
	CmdUndo:     (*Panel).undo,
	CmdReset:    (*Panel).reset,
	CmdNewRoom:  (*Panel).newRoom,
	CmdJoinRoom: (*Panel).joinRoom,
}

// Run dispatches cmd. On failure Result.Text still carries the user-facing message.
func (p *Panel) Run(ctx context.Context, cmd Command, arg string) (Result, error) {
	if cmd < CmdUndo || cmd >= cmdEnd || handlers[cmd] == nil {
		return Result{Command: cmd, Text: p.cat.Text("panel.unknown_command", map[string]any{"label": cmd.String()})}, ErrUnknownCommand
	}
	res, err := handlers[cmd](p, ctx, strings.TrimSpace(arg))
	res.Command = cmd
	if err != nil {
		obslog.L().Debug("panel_command_error", zap.String("command", cmd.String()), zap.String("user_id", p.user.ID), zap.Error(err))
	}
	return res, err
}

// RunLabel parses a button label and runs it.
func (p *Panel) RunLabel(ctx context.Context, label, arg string) (Result, error) {
	cmd, err := ParseCommand(label)
	if err != nil {
		return Result{Text: p.cat.Text("panel.unknown_command", map[string]any{"label": strings.TrimSpace(label)})}, err
	}
	return p.Run(ctx, cmd, arg)
}

func (p *Panel) undo(_ context.Context, _ string) (Result, error) {
	if p.mover != nil {
		return Result{Text: p.ErrorText(ErrLocalOnly, "")}, ErrLocalOnly
	}
	if !p.game.Undo() {
		return Result{Text: p.cat.Text("panel.undo_empty", nil)}, nil
	}
	return Result{Text: p.cat.Text("panel.undone", nil)}, nil
}

func (p *Panel) reset(_ context.Context, _ string) (Result, error) {
	if p.mover != nil {
		return Result{Text: p.ErrorText(ErrLocalOnly, "")}, ErrLocalOnly
	}
	p.game.ResetGame()
	return Result{Text: p.cat.Text("panel.reset", nil)}, nil
}

func (p *Panel) newRoom(ctx context.Context, _ string) (Result, error) {
	if p.lobby == nil {
		return Result{Text: p.ErrorText(ErrNoLobby, "")}, ErrNoLobby
	}
	r, err := p.lobby.CreateRoom(ctx, p.user.identity())
	if err != nil {
		return Result{Text: p.ErrorText(err, "")}, err
	}
	return Result{Text: p.cat.Text("panel.room_created", map[string]any{"code": r.Code}), Room: r}, nil
}

func (p *Panel) joinRoom(ctx context.Context, code string) (Result, error) {
	if p.lobby == nil {
		return Result{Text: p.ErrorText(ErrNoLobby, "")}, ErrNoLobby
	}
	code = room.NormalizeCode(code)
	if code == "" {
		return Result{Text: p.ErrorText(ErrRoomCodeRequired, "")}, ErrRoomCodeRequired
	}
	r, err := p.lobby.JoinRoom(ctx, code, p.user.identity())
	if err != nil {
		return Result{Text: p.ErrorText(err, code)}, err
	}
	opponent := r.HostName
	if opponent == "" {
		opponent = r.HostID
	}
	return Result{Text: p.cat.Text("panel.room_joined", map[string]any{"code": r.Code, "opponent": opponent}), Room: r}, nil
}

// Play submits a move for the user and describes it.
func (p *Panel) Play(iccs string) (Result, error) {
	var m Mover = p.game
	if p.mover != nil {
		m = p.mover
	}
	out, err := m.Play(iccs)
	if err != nil {
		return Result{Text: p.ErrorText(err, "")}, err
	}
	return Result{Text: p.cat.Text("panel.moved", map[string]any{"side": out.Side.String(), "move": out.Move.String()})}, nil
}

// Status renders the greeting, then either whose turn it is or who won. The
// winner is the side that is not to move once the game is over.
func (p *Panel) Status() []string {
	lines := []string{p.cat.Text("panel.greeting", map[string]any{"username": p.user.Username, "elo": p.user.Elo})}
	if p.game == nil {
		return lines
	}
	if winner, ok := p.game.Winner(); ok {
		return append(lines, p.cat.Text("panel.winner", map[string]any{"side": winner.String()}))
	}
	return append(lines, p.cat.Text("panel.turn", map[string]any{"side": p.game.Turn().String()}))
}

// ErrorText renders err with the catalog. code fills room messages.
func (p *Panel) ErrorText(err error, code string) string {
	data := map[string]any{"code": code}
	var ill *xiangqi.IllegalMoveError
	switch {
	case errors.As(err, &ill):
		return p.cat.Text("error.illegal_move", map[string]any{"reason": ill.Reason})
	case errors.Is(err, xiangqi.ErrBadNotation):
		return p.cat.Text("error.bad_notation", map[string]any{"input": strings.TrimPrefix(err.Error(), xiangqi.ErrBadNotation.Error()+": ")})
	case errors.Is(err, session.ErrNotYourTurn):
		return p.cat.Text("error.not_your_turn", nil)
	case errors.Is(err, session.ErrGameOver):
		return p.cat.Text("error.game_over", nil)
	case errors.Is(err, room.ErrRoomNotFound):
		return p.cat.Text("error.room_not_found", data)
	case errors.Is(err, room.ErrRoomFull):
		return p.cat.Text("error.room_full", data)
	case errors.Is(err, room.ErrRoomClosed):
		return p.cat.Text("error.room_closed", data)
	case errors.Is(err, room.ErrSelfJoin):
		return p.cat.Text("error.self_join", nil)
	case errors.Is(err, room.ErrBadSeat):
		return p.cat.Text("error.bad_seat", data)
	case errors.Is(err, room.ErrDesync):
		return p.cat.Text("error.desync", nil)
	case errors.Is(err, ErrRoomCodeRequired):
		return p.cat.Text("error.room_code_required", nil)
	case errors.Is(err, ErrLocalOnly):
		return p.cat.Text("error.local_only", nil)
	case errors.Is(err, ErrNoLobby):
		return p.cat.Text("error.offline", nil)
	}
	obslog.L().Warn("panel_unmapped_error", zap.Error(err))
	return p.cat.Text("error.internal", nil)
}
