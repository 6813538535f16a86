package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cloudzz-dev/memberchat/internal/server/auth"
	"github.com/cloudzz-dev/memberchat/internal/server/models"
)

// participant aborts with 404 unless the caller belongs to the :id thread.
func (h *Handler) participant(c *gin.Context) (string, bool) {
	threadID := c.Param("id")
	ok, err := h.store.IsParticipant(c.Request.Context(), threadID, auth.UserID(c))
	if err != nil {
		h.internal(c, "check participant", err)
		return "", false
	}
	if !ok {
		abort(c, http.StatusNotFound, "not_found", "Thread not found")
		return "", false
	}
	return threadID, true
}

// ListMessages returns the newest history oldest first and marks the
// thread read for the caller.
func (h *Handler) ListMessages(c *gin.Context) {
	threadID, ok := h.participant(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	msgs, err := h.store.ListMessages(ctx, threadID, historyLimit)
	if err != nil {
		h.internal(c, "list messages", err)
		return
	}
	if err := h.store.MarkRead(ctx, threadID, auth.UserID(c)); err != nil {
		h.log.Warn("mark read", "thread_id", threadID, "error", err)
	}
	c.JSON(http.StatusOK, msgs)
}

// MarkRead moves the caller's read marker to now. Clients call it when a
// pushed message lands in the thread they have open.
func (h *Handler) MarkRead(c *gin.Context) {
	threadID, ok := h.participant(c)
	if !ok {
		return
	}
	if err := h.store.MarkRead(c.Request.Context(), threadID, auth.UserID(c)); err != nil {
		h.internal(c, "mark read", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) PostMessage(c *gin.Context) {
	threadID, ok := h.participant(c)
	if !ok {
		return
	}
	var req models.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation", "Invalid request data")
		return
	}
	self := auth.UserID(c)
	if msg := validateMessage(self, &req); msg != "" {
		abort(c, http.StatusBadRequest, "validation", msg)
		return
	}

	ctx := c.Request.Context()
	saved, err := h.store.SaveMessage(ctx, threadID, self, req)
	if err != nil {
		h.internal(c, "save message", err)
		return
	}
	if thread, err := h.store.GetThread(ctx, threadID, self); err == nil {
		h.publish(ctx, models.Event{Type: models.EventMessageCreated, Recipients: thread.ParticipantIDs, Message: saved})
	} else {
		h.log.Warn("load thread for push", "thread_id", threadID, "error", err)
	}
	c.JSON(http.StatusCreated, saved)
}

// validateMessage normalises req and returns a user-facing problem, if any.
// Text messages carry no attachment; media messages must reference an
// object the sender uploaded.
func validateMessage(senderID string, req *models.PostMessageRequest) string {
	if req.MessageType == "" {
		req.MessageType = models.MessageText
	}
	req.AttachmentURL = strings.TrimSpace(req.AttachmentURL)
	if len([]rune(req.Content)) > maxContentLen {
		return "Message is too long"
	}
	switch req.MessageType {
	case models.MessageText:
		if req.AttachmentURL != "" {
			return "Text messages can't carry an attachment"
		}
		if strings.TrimSpace(req.Content) == "" {
			return "Message can't be empty"
		}
	case models.MessageImage, models.MessageVideo:
		if req.AttachmentURL == "" {
			return "Attachment is missing"
		}
		if !strings.HasPrefix(req.AttachmentURL, "chat/"+senderID+"/") {
			return "Attachment doesn't belong to you"
		}
	default:
		return "Unknown message type"
	}
	return ""
}
