package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"taskherd/src/internal/gateway"
	"taskherd/src/internal/notify"
	"taskherd/src/internal/storage"
	"taskherd/src/internal/tasks"
)

// Server is the admin HTTP surface: task queries, completion, a manual
// reminder trigger, and a websocket feed of dispatched notifications.
type Server struct {
	Gateway *gateway.Gateway
	Engine  *gin.Engine

	wsMu    sync.Mutex
	wsConns []*websocket.Conn
}

func NewServer(gw *gateway.Gateway) *Server {
	e := gin.Default()
	s := &Server{
		Gateway: gw,
		Engine:  e,
	}
	s.Engine.Use(s.authMiddleware())
	s.setupRoutes()
	s.Gateway.Hub.AddObserver(s.broadcastEvent)
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.Engine.Group("/api/v1")
	{
		v1.GET("/tasks", s.handleListTasks)
		v1.GET("/tasks/:id", s.handleGetTask)
		v1.POST("/tasks/:id/complete", s.handleCompleteTask)
		v1.POST("/reminders/run", s.handleRunReminders)
		v1.GET("/events", s.handleEvents)
		v1.GET("/channels/:name/status", s.handleChannelStatus)
		v1.POST("/channels/:name/enroll", s.handleChannelEnroll)
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := s.Gateway.Config.Server.Key
		if key != "" && c.GetHeader("X-Server-Key") != key {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid server key"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleListTasks(c *gin.Context) {
	status := tasks.StatusPending
	if c.Query("status") == "completed" {
		status = tasks.StatusCompleted
	}
	list, err := s.Gateway.Storage.ListAll(c.Request.Context(), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []*tasks.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": list})
}

func (s *Server) handleGetTask(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	t, err := s.Gateway.Storage.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleCompleteTask(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	if err := s.Gateway.Storage.MarkCompleted(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found or already completed"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

func (s *Server) handleRunReminders(c *gin.Context) {
	report, err := s.Gateway.RunReminders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleChannelStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Gateway.ChannelStatus(c.Param("name")))
}

func (s *Server) handleChannelEnroll(c *gin.Context) {
	if err := s.Gateway.ChannelEnroll(c.Request.Context(), c.Param("name")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "enrolling"})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents upgrades to a websocket and streams every dispatched
// notification as JSON until the client goes away.
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	s.wsMu.Lock()
	s.wsConns = append(s.wsConns, conn)
	s.wsMu.Unlock()

	// Reader loop only exists to notice the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.dropConn(conn)
				return
			}
		}
	}()
}

func (s *Server) broadcastEvent(n notify.Notification) {
	s.wsMu.Lock()
	conns := make([]*websocket.Conn, len(s.wsConns))
	copy(conns, s.wsConns)
	s.wsMu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(n); err != nil {
			slog.Warn("failed to push event to websocket", "error", err)
			s.dropConn(conn)
		}
	}
}

func (s *Server) dropConn(conn *websocket.Conn) {
	s.wsMu.Lock()
	for i, c := range s.wsConns {
		if c == conn {
			s.wsConns = append(s.wsConns[:i], s.wsConns[i+1:]...)
			break
		}
	}
	s.wsMu.Unlock()
	conn.Close()
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Engine}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	slog.Info("admin api listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
