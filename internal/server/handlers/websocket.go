package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudzz-dev/memberchat/internal/server/ratelimit"
	"github.com/cloudzz-dev/memberchat/internal/server/ws"
)

// HandleWebSocket upgrades GET /ws?token=... into a push connection.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	claims, err := h.auth.Parse(c.Query("token"))
	if err != nil {
		abort(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
		return
	}

	clientIP := ratelimit.GetClientIP(c.Request)
	if !h.limiter.Acquire(clientIP) {
		h.log.Warn("rate limited connection", "ip", clientIP)
		abort(c, http.StatusTooManyRequests, "rate_limited", "Too many connections from your IP")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.limiter.Release(clientIP)
		h.log.Debug("upgrade", "error", err)
		return
	}

	client := ws.NewClient(h.hub, conn, claims.UserID, clientIP)
	if !h.hub.Register(client) {
		h.limiter.Release(clientIP)
		conn.Close()
		return
	}

	go func() {
		defer h.limiter.Release(clientIP)
		client.WritePump()
	}()
	go client.ReadPump()
}
