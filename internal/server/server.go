// Package server exposes the notification feed over HTTP and hands live
// websocket connections to the registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hirewave/notify/internal/auth"
	"github.com/hirewave/notify/internal/builder"
	"github.com/hirewave/notify/internal/config"
	"github.com/hirewave/notify/internal/model"
	"github.com/hirewave/notify/internal/registry"
	"github.com/hirewave/notify/internal/store"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// NotificationStore is the persistence surface the HTTP handlers need.
type NotificationStore interface {
	ListNotifications(ctx context.Context, userID string, cursor *string, limit int) ([]store.NotificationWithActor, *string, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID string, ids []uuid.UUID) (int, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

// Server exposes the notification HTTP API and the websocket endpoint.
type Server struct {
	router  *gin.Engine
	cfg     config.ServerConfig
	store   NotificationStore
	builder *builder.Builder
	hub     *registry.Hub
	auth    auth.Authenticator
	logger  *slog.Logger

	httpServer *http.Server
}

// New wires the routes. The gin engine runs without its default logger; slog
// covers request-level failures where they happen.
func New(cfg config.ServerConfig, st NotificationStore, b *builder.Builder, hub *registry.Hub, a auth.Authenticator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:  router,
		cfg:     cfg,
		store:   st,
		builder: b,
		hub:     hub,
		auth:    a,
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api/v1")
	api.Use(s.requireAuth())
	{
		api.GET("/notifications", s.handleListNotifications)
		api.POST("/notifications/read", s.handleMarkRead)
	}
}

// Run serves until the context is cancelled, then drains with a short grace
// period.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("http server listening", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// Handler returns the underlying router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requireAuth resolves the bearer token and stashes the identity on the
// request context. 401 on anything else.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		ident, err := s.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("identity", ident)
		c.Next()
	}
}

func identityFrom(c *gin.Context) auth.Identity {
	v, _ := c.Get("identity")
	ident, _ := v.(auth.Identity)
	return ident
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.hub.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"users":       stats.Users,
		"connections": stats.Conns,
	})
}

// handleListNotifications serves one keyset page of the caller's history,
// newest first, plus the authoritative unread count.
func (s *Server) handleListNotifications(c *gin.Context) {
	ident := identityFrom(c)

	limit := defaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if n > maxPageLimit {
			n = maxPageLimit
		}
		limit = n
	}

	var cursor *string
	if raw := c.Query("cursor"); raw != "" {
		if _, _, err := store.DecodeCursor(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		cursor = &raw
	}

	ctx := c.Request.Context()
	rows, next, err := s.store.ListNotifications(ctx, ident.UserID, cursor, limit)
	if err != nil {
		s.logger.Error("list notifications failed", "user_id", ident.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	unread, err := s.store.UnreadCount(ctx, ident.UserID)
	if err != nil {
		s.logger.Error("unread count failed", "user_id", ident.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	views := make([]model.NotificationView, 0, len(rows))
	for _, row := range rows {
		views = append(views, s.builder.View(ctx, row.Notification, row.Actor))
	}

	c.JSON(http.StatusOK, model.FeedPage{
		Notifications: views,
		NextCursor:    next,
		UnreadCount:   unread,
	})
}

// handleMarkRead flags either the given ids or the whole feed read and
// returns the post-update unread count.
func (s *Server) handleMarkRead(c *gin.Context) {
	ident := identityFrom(c)

	var req model.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if !req.All && len(req.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids or all required"})
		return
	}

	ctx := c.Request.Context()
	var (
		unread int
		err    error
	)
	if req.All {
		unread, err = s.store.MarkAllRead(ctx, ident.UserID)
	} else {
		ids := make([]uuid.UUID, 0, len(req.IDs))
		for _, raw := range req.IDs {
			id, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
				return
			}
			ids = append(ids, id)
		}
		unread, err = s.store.MarkRead(ctx, ident.UserID, ids)
	}
	if err != nil {
		s.logger.Error("mark read failed", "user_id", ident.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, model.MarkReadResponse{UnreadCount: unread})
}
