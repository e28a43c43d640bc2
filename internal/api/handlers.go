package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/park285/cheese-xiangqi/internal/room"
	"github.com/park285/cheese-xiangqi/pkg/xiangqidto"
)

func (s *Server) createRoom(c *gin.Context) {
	var req xiangqidto.PlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PlayerID) == "" {
		badRequest(c, "player_id required")
		return
	}
	r, err := s.mgr.CreateRoom(c.Request.Context(), room.Identity{ID: req.PlayerID, Name: req.Name})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, seatDTO(r, r.HostID))
}

func (s *Server) listRooms(c *gin.Context) {
	rooms, err := s.mgr.ListWaiting(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := xiangqidto.RoomList{Rooms: make([]xiangqidto.Room, 0, len(rooms))}
	for _, r := range rooms {
		out.Rooms = append(out.Rooms, RoomDTO(r))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getRoom(c *gin.Context) {
	r, err := s.mgr.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, RoomDTO(r))
}

func (s *Server) getState(c *gin.Context) {
	code := room.NormalizeCode(c.Param("code"))
	sess, err := s.mgr.Session(c.Request.Context(), code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, xiangqidto.State{
		Code:    code,
		FEN:     sess.FEN(),
		Turn:    sess.Turn().String(),
		Ply:     sess.Ply(),
		Moves:   sess.Moves(),
		Verdict: sess.Verdict().String(),
	})
}

func (s *Server) joinRoom(c *gin.Context) {
	var req xiangqidto.PlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PlayerID) == "" {
		badRequest(c, "player_id required")
		return
	}
	r, err := s.mgr.JoinSeat(c.Request.Context(), c.Param("code"), room.Identity{ID: req.PlayerID, Name: req.Name}, req.SeatToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, seatDTO(r, r.GuestID))
}

func (s *Server) leaveRoom(c *gin.Context) {
	var req xiangqidto.PlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PlayerID) == "" {
		badRequest(c, "player_id required")
		return
	}
	if !s.seated(c, c.Param("code"), req.PlayerID, req.SeatToken) {
		return
	}
	r, err := s.mgr.Leave(c.Request.Context(), c.Param("code"), req.PlayerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, RoomDTO(r))
}

func (s *Server) submitMove(c *gin.Context) {
	var req xiangqidto.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PlayerID) == "" || strings.TrimSpace(req.Move) == "" {
		badRequest(c, "player_id and move required")
		return
	}
	if !s.seated(c, c.Param("code"), req.PlayerID, req.SeatToken) {
		return
	}
	out, err := s.mgr.SubmitMove(c.Request.Context(), c.Param("code"), req.PlayerID, req.Move)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, xiangqidto.MoveResponse{
		Move:    out.Move.String(),
		Side:    out.Side.String(),
		Ply:     out.Ply,
		FEN:     out.FEN,
		Verdict: out.Verdict.String(),
	})
}

func (s *Server) getProfile(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	repo := s.mgr.Repository()
	if repo == nil {
		// no archive configured: everyone sits at the default rating
		c.JSON(http.StatusOK, xiangqidto.Profile{PlayerID: id, Name: id, Rating: room.DefaultElo})
		return
	}
	p, err := repo.Profile(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProfileDTO(p))
}

func (s *Server) getGame(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	repo := s.mgr.Repository()
	if repo == nil {
		writeError(c, room.ErrGameNotFound)
		return
	}
	g, err := repo.Game(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, xiangqidto.Game{GameID: g.GameID, Result: g.Result, Moves: g.Moves, FEN: g.FEN})
}

// seated checks that seat is the token issued to player in the room, writing
// the error response when it is not.
func (s *Server) seated(c *gin.Context, code, player, seat string) bool {
	r, err := s.mgr.Get(c.Request.Context(), code)
	if err != nil {
		writeError(c, err)
		return false
	}
	if _, ok := r.SideOf(player); !ok {
		writeError(c, room.ErrNotParticipant)
		return false
	}
	if !r.Seated(player, seat) {
		writeError(c, room.ErrBadSeat)
		return false
	}
	return true
}

// seatDTO is RoomDTO plus the seat token of player, for the create and join
// responses only.
func seatDTO(r *room.Room, player string) xiangqidto.Room {
	d := RoomDTO(r)
	d.SeatToken = r.SeatOf(player)
	return d
}

func RoomDTO(r *room.Room) xiangqidto.Room {
	return xiangqidto.Room{
		Code:      r.Code,
		Status:    string(r.Status),
		HostID:    r.HostID,
		HostName:  r.HostName,
		GuestID:   r.GuestID,
		GuestName: r.GuestName,
		GameID:    r.GameID,
		Moves:     append([]string(nil), r.Moves...),
		Winner:    r.Winner,
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
		StartedAt: r.StartedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func ProfileDTO(p *room.Profile) xiangqidto.Profile {
	return xiangqidto.Profile{
		PlayerID:    p.PlayerID,
		Name:        p.Name,
		Rating:      p.Rating,
		GamesPlayed: p.GamesPlayed,
		Wins:        p.Wins,
		Losses:      p.Losses,
		Draws:       p.Draws,
		UpdatedAt:   p.UpdatedAt,
	}
}
