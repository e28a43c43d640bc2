package xiangqidto

// Error is the body of every non-2xx API response.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "xiangqi service error"
}

// Error codes shared by the server and its clients.
const (
	CodeInvalidArgs    = "invalid_args"
	CodeRoomNotFound   = "room_not_found"
	CodeGameNotFound   = "game_not_found"
	CodeRoomFull       = "room_full"
	CodeRoomClosed     = "room_closed"
	CodeSelfJoin       = "self_join"
	CodeNotParticipant = "not_participant"
	CodeBadSeat        = "bad_seat"
	CodeNotStarted     = "not_started"
	CodeNotYourTurn    = "not_your_turn"
	CodeGameOver       = "game_over"
	CodeIllegalMove    = "illegal_move"
	CodeBadNotation    = "bad_notation"
	CodeDesync         = "desync"
	CodeInternal       = "internal"
)
