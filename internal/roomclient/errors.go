package roomclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/park285/cheese-xiangqi/internal/room"
	"github.com/park285/cheese-xiangqi/internal/session"
	"github.com/park285/cheese-xiangqi/internal/xiangqi"
	"github.com/park285/cheese-xiangqi/pkg/xiangqidto"
)

var sentinels = map[string]error{
	xiangqidto.CodeInvalidArgs:    room.ErrInvalidArgs,
	xiangqidto.CodeRoomNotFound:   room.ErrRoomNotFound,
	xiangqidto.CodeGameNotFound:   room.ErrGameNotFound,
	xiangqidto.CodeRoomFull:       room.ErrRoomFull,
	xiangqidto.CodeRoomClosed:     room.ErrRoomClosed,
	xiangqidto.CodeSelfJoin:       room.ErrSelfJoin,
	xiangqidto.CodeNotParticipant: room.ErrNotParticipant,
	xiangqidto.CodeBadSeat:        room.ErrBadSeat,
	xiangqidto.CodeNotStarted:     room.ErrNotStarted,
	xiangqidto.CodeDesync:         room.ErrDesync,
	xiangqidto.CodeNotYourTurn:    session.ErrNotYourTurn,
	xiangqidto.CodeGameOver:       session.ErrGameOver,
	xiangqidto.CodeIllegalMove:    xiangqi.ErrIllegalMove,
	xiangqidto.CodeBadNotation:    xiangqi.ErrBadNotation,
}

// StatusError is a non-2xx response the client could not map to a domain error.
type StatusError struct {
	Status int
	Body   xiangqidto.Error
	Raw    string
}

func (e *StatusError) Error() string {
	if e.Body.Message != "" {
		return fmt.Sprintf("xiangqi api error: status=%d code=%s message=%s", e.Status, e.Body.Code, e.Body.Message)
	}
	return fmt.Sprintf("xiangqi api error: status=%d body=%s", e.Status, e.Raw)
}

// decodeError turns an error response back into the sentinel the server
// mapped, so errors.Is works the same locally and remotely.
func decodeError(status int, body []byte) error {
	var e xiangqidto.Error
	if err := json.Unmarshal(body, &e); err == nil {
		if sentinel, ok := sentinels[e.Code]; ok {
			return fmt.Errorf("%w: %s", sentinel, e.Message)
		}
	}
	return &StatusError{Status: status, Body: e, Raw: truncate(strings.TrimSpace(string(body)), 512)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
