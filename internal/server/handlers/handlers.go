// Package handlers exposes the chat REST API and the push socket over gin.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
	"github.com/cloudzz-dev/memberchat/internal/server/auth"
	"github.com/cloudzz-dev/memberchat/internal/server/bus"
	"github.com/cloudzz-dev/memberchat/internal/server/media"
	"github.com/cloudzz-dev/memberchat/internal/server/models"
	"github.com/cloudzz-dev/memberchat/internal/server/ratelimit"
	"github.com/cloudzz-dev/memberchat/internal/server/storage"
	"github.com/cloudzz-dev/memberchat/internal/server/ws"
)

const (
	historyLimit   = 100
	searchLimit    = 20
	minQueryLength = 2
	maxContentLen  = 4000
	maxTitleLen    = 80
)

// Deps are the collaborators a Handler needs. Media may be nil when no
// bucket is configured; uploads then answer 503.
type Deps struct {
	Store   storage.Store
	Auth    *auth.Manager
	Media   *media.Service
	Bus     bus.Bus
	Hub     *ws.Hub
	Limiter *ratelimit.RateLimiter
	Log     *logger.Logger
	Origins []string
}

type Handler struct {
	store    storage.Store
	auth     *auth.Manager
	media    *media.Service
	bus      bus.Bus
	hub      *ws.Hub
	limiter  *ratelimit.RateLimiter
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	h := &Handler{
		store:   d.Store,
		auth:    d.Auth,
		media:   d.Media,
		bus:     d.Bus,
		hub:     d.Hub,
		limiter: d.Limiter,
		log:     log.With("service", "Handlers"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     allowOrigins(d.Origins),
	}
	return h
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/ws", h.HandleWebSocket)

	authGroup := r.Group("/auth")
	authGroup.POST("/register", h.limiter.AuthLimit(), h.RegisterUser)
	authGroup.POST("/login", h.limiter.AuthLimit(), h.Login)
	authGroup.GET("/me", h.auth.Middleware(), h.Me)

	api := r.Group("/", h.auth.Middleware())
	api.GET("/threads", h.ListThreads)
	api.GET("/threads/:id/messages", h.ListMessages)
	api.POST("/threads/:id/messages", h.PostMessage)
	api.POST("/threads/:id/read", h.MarkRead)
	api.POST("/threads/direct", h.StartDirect)
	api.POST("/threads/group", h.CreateGroup)
	api.POST("/users/search", h.SearchUsers)
	api.POST("/chat/upload-media", h.UploadMedia)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

func (h *Handler) internal(c *gin.Context, op string, err error) {
	h.log.Error(op, "error", err, "path", c.FullPath())
	abort(c, http.StatusInternalServerError, "internal", "Something went wrong")
}

// publish is best effort: the write already succeeded.
func (h *Handler) publish(ctx context.Context, ev models.Event) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Publish(ctx, ev); err != nil {
		h.log.Warn("publish event", "type", ev.Type, "error", err)
	}
}

func allowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}
