package xiangqidto

import "time"

type Room struct {
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	HostID    string    `json:"host_id"`
	HostName  string    `json:"host_name,omitempty"`
	GuestID   string    `json:"guest_id,omitempty"`
	GuestName string    `json:"guest_name,omitempty"`
	SeatToken string    `json:"seat_token,omitempty"`
	GameID    string    `json:"game_id,omitempty"`
	Moves     []string  `json:"moves,omitempty"`
	Winner    string    `json:"winner,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RoomList struct {
	Rooms []Room `json:"rooms"`
}

// PlayerRequest identifies the caller for create, join and leave. SeatToken is
// the token returned by create or join; leave and a repeated join require it.
type PlayerRequest struct {
	PlayerID  string `json:"player_id"`
	Name      string `json:"name,omitempty"`
	SeatToken string `json:"seat_token,omitempty"`
}

type MoveRequest struct {
	PlayerID  string `json:"player_id"`
	SeatToken string `json:"seat_token"`
	Move      string `json:"move"`
}

type MoveResponse struct {
	Move    string `json:"move"`
	Side    string `json:"side"`
	Ply     int    `json:"ply"`
	FEN     string `json:"fen"`
	Verdict string `json:"verdict"`
}

// State is the authoritative board of an active room.
type State struct {
	Code    string   `json:"code"`
	FEN     string   `json:"fen"`
	Turn    string   `json:"turn"`
	Ply     int      `json:"ply"`
	Moves   []string `json:"moves"`
	Verdict string   `json:"verdict"`
}

// Game is an archived game with its final position.
type Game struct {
	GameID string   `json:"game_id"`
	Result string   `json:"result"`
	Moves  []string `json:"moves"`
	FEN    string   `json:"fen"`
}
