package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cloudzz-dev/memberchat/internal/server/auth"
	"github.com/cloudzz-dev/memberchat/internal/server/models"
	"github.com/cloudzz-dev/memberchat/internal/server/storage"
)

func (h *Handler) RegisterUser(c *gin.Context) {
	var req models.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation", "Username must be 2-32 characters and password at least 6")
		return
	}
	username := strings.TrimSpace(req.Username)
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}

	hash, err := h.auth.HashPassword(req.Password)
	if err != nil {
		h.internal(c, "hash password", err)
		return
	}
	user, err := h.store.CreateUser(c.Request.Context(), username, displayName, hash)
	if errors.Is(err, storage.ErrUsernameTaken) {
		abort(c, http.StatusConflict, "conflict", "Username already taken")
		return
	}
	if err != nil {
		h.internal(c, "create user", err)
		return
	}
	h.respondWithToken(c, http.StatusCreated, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req models.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation", "Username and password are required")
		return
	}
	user, err := h.store.GetUserByUsername(c.Request.Context(), strings.TrimSpace(req.Username))
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		h.internal(c, "get user", err)
		return
	}
	if user == nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
		abort(c, http.StatusUnauthorized, "unauthorized", "Invalid username or password")
		return
	}
	h.respondWithToken(c, http.StatusOK, user)
}

func (h *Handler) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, err := h.auth.Issue(user.ID)
	if err != nil {
		h.internal(c, "issue token", err)
		return
	}
	u := user.Public()
	u.Username = user.Username
	c.JSON(status, models.AuthResponse{Token: token, User: u})
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.store.GetUserByID(c.Request.Context(), auth.UserID(c))
	if errors.Is(err, storage.ErrUserNotFound) {
		abort(c, http.StatusUnauthorized, "unauthorized", "Account no longer exists")
		return
	}
	if err != nil {
		h.internal(c, "get user", err)
		return
	}
	u := user.Public()
	u.Username = user.Username
	c.JSON(http.StatusOK, u)
}

// SearchUsers matches ?q= against usernames and display names. Queries
// shorter than two characters return an empty list; the caller never
// appears in its own results.
func (h *Handler) SearchUsers(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if len([]rune(q)) < minQueryLength {
		c.JSON(http.StatusOK, []models.User{})
		return
	}
	self := auth.UserID(c)
	users, err := h.store.SearchUsers(c.Request.Context(), q, searchLimit+1)
	if err != nil {
		h.internal(c, "search users", err)
		return
	}
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.ID != self {
			out = append(out, u.Public())
		}
	}
	if len(out) > searchLimit {
		out = out[:searchLimit]
	}
	c.JSON(http.StatusOK, out)
}
