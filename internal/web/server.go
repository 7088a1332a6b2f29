package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chengloutai/emg-ble-receiver/internal/processing"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// local display surface only
		return true
	},
}

// Server is the renderer-facing boundary: the latest DisplayFrame over
// plain HTTP plus a websocket push of every published frame.
type Server struct {
	hub    *Hub
	logger *zap.Logger
	engine *gin.Engine
	latest atomic.Value // []byte, marshalled DisplayFrame
}

func NewServer(hub *Hub, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		hub:    hub,
		logger: logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	engine.GET("/api/frame", s.handleFrame)
	engine.GET("/ws", s.handleWS)
	s.engine = engine

	return s
}

// Publish implements processing.FrameSink.
func (s *Server) Publish(frame processing.DisplayFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	s.latest.Store(payload)
	s.hub.Broadcast(payload)
	return nil
}

func (s *Server) handleFrame(c *gin.Context) {
	payload, ok := s.latest.Load().([]byte)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("[web] websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}
	s.hub.register <- cl

	go cl.writePump()
	go cl.readPump(s.hub)
}

func (s *Server) Run(ctx context.Context, addr string) {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Warn("[web] live view server stopped", zap.Error(err), zap.String("addr", addr))
	}
}
