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

func (h *Handler) ListThreads(c *gin.Context) {
	threads, err := h.store.ListThreads(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.internal(c, "list threads", err)
		return
	}
	c.JSON(http.StatusOK, threads)
}

// StartDirect returns the caller's direct thread with the target, creating
// it on first use. 201 means this call created it.
func (h *Handler) StartDirect(c *gin.Context) {
	var req models.DirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation", "targetUserId is required")
		return
	}
	ctx := c.Request.Context()
	self := auth.UserID(c)
	if req.TargetUserID == self {
		abort(c, http.StatusBadRequest, "validation", "You can't message yourself")
		return
	}
	if _, err := h.store.GetUserByID(ctx, req.TargetUserID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			abort(c, http.StatusNotFound, "not_found", "User not found")
			return
		}
		h.internal(c, "get user", err)
		return
	}

	thread, created, err := h.store.StartDirect(ctx, self, req.TargetUserID)
	if err != nil {
		h.internal(c, "start direct", err)
		return
	}
	if !created {
		c.JSON(http.StatusOK, thread)
		return
	}
	h.publish(ctx, models.Event{Type: models.EventThreadCreated, Recipients: []string{req.TargetUserID}, Thread: thread})
	c.JSON(http.StatusCreated, thread)
}

// CreateGroup always creates a new thread. The title must be non-empty and
// at least two distinct existing users besides the caller are required.
func (h *Handler) CreateGroup(c *gin.Context) {
	var req models.GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation", "Invalid request data")
		return
	}
	ctx := c.Request.Context()
	self := auth.UserID(c)

	title := strings.TrimSpace(req.Title)
	if title == "" {
		abort(c, http.StatusBadRequest, "validation", "Group title is required")
		return
	}
	if len([]rune(title)) > maxTitleLen {
		abort(c, http.StatusBadRequest, "validation", "Group title is too long")
		return
	}

	var members []string
	seen := map[string]bool{self: true}
	for _, id := range req.MemberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, err := h.store.GetUserByID(ctx, id); err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				abort(c, http.StatusBadRequest, "validation", "Unknown group member")
				return
			}
			h.internal(c, "get user", err)
			return
		}
		members = append(members, id)
	}
	if len(members) < 2 {
		abort(c, http.StatusBadRequest, "validation", "Pick at least two other members")
		return
	}

	thread, err := h.store.CreateGroup(ctx, self, title, members)
	if err != nil {
		h.internal(c, "create group", err)
		return
	}
	h.publish(ctx, models.Event{Type: models.EventThreadCreated, Recipients: members, Thread: thread})
	c.JSON(http.StatusCreated, thread)
}
