// Package api serves rooms over HTTP and bridges player websockets to the room relay.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/park285/cheese-xiangqi/internal/obslog"
	"github.com/park285/cheese-xiangqi/internal/room"
	"go.uber.org/zap"
)

type Server struct {
	mgr    *room.Manager
	relay  room.Transport
	engine *gin.Engine
}

func New(mgr *room.Manager, relay room.Transport) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{mgr: mgr, relay: relay, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	api.POST("/rooms", s.createRoom)
	api.GET("/rooms", s.listRooms)
	api.GET("/rooms/:code", s.getRoom)
	api.GET("/rooms/:code/state", s.getState)
	api.POST("/rooms/:code/join", s.joinRoom)
	api.POST("/rooms/:code/leave", s.leaveRoom)
	api.POST("/rooms/:code/moves", s.submitMove)
	api.GET("/rooms/:code/ws", s.relaySocket)
	api.GET("/profiles/:id", s.getProfile)
	api.GET("/games/:id", s.getGame)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		obslog.L().Debug("http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
