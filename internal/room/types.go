package room

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-xiangqi/internal/xiangqi"
)

// Status is the room lifecycle: Waiting until a guest joins, Active while the
// game runs, Closed once it ends for any reason. Closed is terminal.
type Status string

const (
	StatusWaiting Status = "WAITING"
	StatusActive  Status = "ACTIVE"
	StatusClosed  Status = "CLOSED"
)

// Close reasons recorded on Room.Reason.
const (
	ReasonFinished = "finished"
	ReasonLeave    = "leave"
	ReasonDesync   = "desync"
	ReasonIllegal  = "illegal_move"
	ReasonClosed   = "closed"
)

// Identity is a player as the room sees it.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (id Identity) normalized() Identity {
	id.ID = strings.TrimSpace(id.ID)
	id.Name = strings.TrimSpace(id.Name)
	if id.Name == "" {
		id.Name = id.ID
	}
	return id
}

// Room is stored as JSON under room:<code>. The host plays Red, the guest Blue.
// HostSeat and GuestSeat are the per-room tokens handed out at create and join;
// they never leave the server except to the player they were issued to.
type Room struct {
	Code      string    `json:"code"`
	Status    Status    `json:"status"`
	HostID    string    `json:"host_id"`
	HostName  string    `json:"host_name"`
	GuestID   string    `json:"guest_id,omitempty"`
	GuestName string    `json:"guest_name,omitempty"`
	HostSeat  string    `json:"host_seat,omitempty"`
	GuestSeat string    `json:"guest_seat,omitempty"`
	GameID    string    `json:"game_id,omitempty"`
	Moves     []string  `json:"moves,omitempty"`
	Winner    string    `json:"winner,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Room) Host() Identity  { return Identity{ID: r.HostID, Name: r.HostName} }
func (r *Room) Guest() Identity { return Identity{ID: r.GuestID, Name: r.GuestName} }

// SideOf returns the color played by id.
func (r *Room) SideOf(id string) (xiangqi.Side, bool) {
	id = strings.TrimSpace(id)
	switch {
	case id == "":
		return xiangqi.Red, false
	case id == r.HostID:
		return xiangqi.Red, true
	case id == r.GuestID:
		return xiangqi.Blue, true
	}
	return xiangqi.Red, false
}

// SeatOf returns the seat token issued to id.
func (r *Room) SeatOf(id string) string {
	side, ok := r.SideOf(id)
	switch {
	case !ok:
		return ""
	case side == xiangqi.Red:
		return r.HostSeat
	}
	return r.GuestSeat
}

// Seated reports whether seat is the token issued to participant id.
func (r *Room) Seated(id, seat string) bool {
	want := r.SeatOf(id)
	if want == "" || seat == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(seat)) == 1
}

// PlayerOf returns the identity playing side.
func (r *Room) PlayerOf(side xiangqi.Side) Identity {
	if side == xiangqi.Red {
		return r.Host()
	}
	return r.Guest()
}

// Opponent returns the other participant.
func (r *Room) Opponent(id string) (Identity, bool) {
	side, ok := r.SideOf(id)
	if !ok {
		return Identity{}, false
	}
	return r.PlayerOf(side.Opponent()), true
}

func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Moves = append([]string(nil), r.Moves...)
	return &c
}

// EnvelopeType tags relay messages.
type EnvelopeType string

const (
	EnvMove   EnvelopeType = "move"
	EnvAck    EnvelopeType = "ack"
	EnvLeave  EnvelopeType = "leave"
	EnvDesync EnvelopeType = "desync"
	EnvClosed EnvelopeType = "closed"
)

// Envelope is one relay message. Ply is the history length after Move was
// applied, so receivers can tell duplicates and gaps apart.
type Envelope struct {
	Type   EnvelopeType `json:"type"`
	Code   string       `json:"code"`
	From   string       `json:"from,omitempty"`
	Ply    int          `json:"ply,omitempty"`
	Move   string       `json:"move,omitempty"`
	FEN    string       `json:"fen,omitempty"`
	Reason string       `json:"reason,omitempty"`
	SentAt time.Time    `json:"sent_at"`
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrInvalidArgs    error = staticErr("invalid arguments")
	ErrRoomNotFound   error = staticErr("room not found or expired")
	ErrRoomFull       error = staticErr("room already has two players")
	ErrSelfJoin       error = staticErr("host cannot join own room")
	ErrNotParticipant error = staticErr("player is not in this room")
	ErrBadSeat        error = staticErr("seat token does not match")
	ErrRoomClosed     error = staticErr("room is closed")
	ErrNotStarted     error = staticErr("room is still waiting for an opponent")
	ErrDesync         error = staticErr("boards out of sync")
	ErrGameNotFound   error = staticErr("game not found in archive")
)

// DesyncError reports a relayed move that could not be reconciled with the
// local board. Want is what the sender claimed, Got is what the receiver has.
type DesyncError struct {
	Code string
	Ply  int
	Want string
	Got  string
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("room %s: desync at ply %d: want %q, got %q", e.Code, e.Ply, e.Want, e.Got)
}

func (e *DesyncError) Unwrap() error { return ErrDesync }

// NormalizeCode trims and upper-cases a user-typed room code.
func NormalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }
