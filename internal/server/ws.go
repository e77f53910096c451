package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Token auth covers origin concerns; browsers cannot forge the token.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket authenticates the ?token= query parameter and hands the
// connection to the registry. A bad token still gets an upgrade so the close
// code reaches the client, then a 1008 policy-violation close and nothing
// else.
func (s *Server) handleWebSocket(c *gin.Context) {
	token := c.Query("token")
	ident, authErr := s.auth.Authenticate(c.Request.Context(), token)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	if authErr != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
		ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		ws.Close()
		return
	}

	conn := s.hub.Register(ident.UserID, ws)
	s.logger.Info("websocket connected",
		"user_id", ident.UserID,
		"connections", s.hub.UserConns(ident.UserID),
	)
	s.hub.Serve(conn)
}
