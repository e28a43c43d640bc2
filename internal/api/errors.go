package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/park285/cheese-xiangqi/internal/obslog"
	"github.com/park285/cheese-xiangqi/internal/room"
	"github.com/park285/cheese-xiangqi/internal/session"
	"github.com/park285/cheese-xiangqi/internal/xiangqi"
	"github.com/park285/cheese-xiangqi/pkg/xiangqidto"
	"go.uber.org/zap"
)

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{room.ErrInvalidArgs, http.StatusBadRequest, xiangqidto.CodeInvalidArgs},
	{xiangqi.ErrBadNotation, http.StatusBadRequest, xiangqidto.CodeBadNotation},
	{room.ErrRoomNotFound, http.StatusNotFound, xiangqidto.CodeRoomNotFound},
	{room.ErrGameNotFound, http.StatusNotFound, xiangqidto.CodeGameNotFound},
	{room.ErrNotParticipant, http.StatusForbidden, xiangqidto.CodeNotParticipant},
	{room.ErrBadSeat, http.StatusForbidden, xiangqidto.CodeBadSeat},
	{room.ErrRoomFull, http.StatusConflict, xiangqidto.CodeRoomFull},
	{room.ErrSelfJoin, http.StatusConflict, xiangqidto.CodeSelfJoin},
	{room.ErrRoomClosed, http.StatusConflict, xiangqidto.CodeRoomClosed},
	{room.ErrNotStarted, http.StatusConflict, xiangqidto.CodeNotStarted},
	{room.ErrDesync, http.StatusConflict, xiangqidto.CodeDesync},
	{session.ErrNotYourTurn, http.StatusConflict, xiangqidto.CodeNotYourTurn},
	{session.ErrGameOver, http.StatusConflict, xiangqidto.CodeGameOver},
	{xiangqi.ErrIllegalMove, http.StatusUnprocessableEntity, xiangqidto.CodeIllegalMove},
}

// statusOf maps a domain error to its HTTP status and body.
func statusOf(err error) (int, xiangqidto.Error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, xiangqidto.Error{Code: e.code, Message: err.Error()}
		}
	}
	return http.StatusInternalServerError, xiangqidto.Error{Code: xiangqidto.CodeInternal, Message: "internal error", Retryable: true}
}

func writeError(c *gin.Context, err error) {
	status, body := statusOf(err)
	if status >= http.StatusInternalServerError {
		obslog.L().Error("http_handler_error", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, xiangqidto.Error{Code: xiangqidto.CodeInvalidArgs, Message: msg})
}
