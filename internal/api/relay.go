package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/park285/cheese-xiangqi/internal/obslog"
	"github.com/park285/cheese-xiangqi/internal/room"
	"go.uber.org/zap"
)

const relayWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// relaySocket bridges one player's websocket to the room relay. The relay
// subscription is live before the upgrade completes, so a client that has
// finished dialing cannot miss envelopes.
func (s *Server) relaySocket(c *gin.Context) {
	code := room.NormalizeCode(c.Param("code"))
	player := strings.TrimSpace(c.Query("player"))
	if player == "" {
		badRequest(c, "player required")
		return
	}
	r, err := s.mgr.Get(c.Request.Context(), code)
	if err != nil {
		writeError(c, err)
		return
	}
	if _, ok := r.SideOf(player); !ok {
		writeError(c, room.ErrNotParticipant)
		return
	}
	if !r.Seated(player, c.Query("seat")) {
		writeError(c, room.ErrBadSeat)
		return
	}
	if r.Status == room.StatusClosed {
		writeError(c, room.ErrRoomClosed)
		return
	}
	if r.Status == room.StatusActive {
		// starts this server's referee when another instance ran the join
		if _, err := s.mgr.Session(c.Request.Context(), code); err != nil {
			writeError(c, err)
			return
		}
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	sub, err := s.relay.Receive(ctx, code)
	if err != nil {
		writeError(c, err)
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		obslog.L().Warn("ws_upgrade_error", zap.String("code", code), zap.Error(err))
		return
	}
	defer conn.Close()
	obslog.L().Info("ws_connect", zap.String("code", code), zap.String("player_id", player))

	go func() {
		// closing the conn unblocks ReadJSON below
		defer conn.Close()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-sub:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
				if err := conn.WriteJSON(env); err != nil {
					return
				}
			}
		}
	}()

	for {
		var env room.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				obslog.L().Debug("ws_read_end", zap.String("code", code), zap.String("player_id", player), zap.Error(err))
			}
			break
		}
		if env.From != player {
			obslog.L().Warn("ws_spoofed_envelope", zap.String("code", code), zap.String("player_id", player), zap.String("from", env.From))
			closeWith(conn, websocket.ClosePolicyViolation, "envelope from another player")
			return
		}
		env.Code = code
		if err := s.relay.Send(ctx, code, env); err != nil {
			obslog.L().Warn("relay_send_error", zap.String("code", code), zap.String("player_id", player), zap.Error(err))
			closeWith(conn, websocket.CloseInternalServerErr, "relay unavailable")
			return
		}
	}
	obslog.L().Info("ws_disconnect", zap.String("code", code), zap.String("player_id", player))
	closeWith(conn, websocket.CloseNormalClosure, "")
}

func closeWith(conn *websocket.Conn, status int, reason string) {
	msg := websocket.FormatCloseMessage(status, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
