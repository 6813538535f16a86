package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudzz-dev/memberchat/internal/server/auth"
	"github.com/cloudzz-dev/memberchat/internal/server/media"
	"github.com/cloudzz-dev/memberchat/internal/server/models"
)

// UploadMedia validates an attachment and returns a signed PUT target.
func (h *Handler) UploadMedia(c *gin.Context) {
	if h.media == nil {
		abort(c, http.StatusServiceUnavailable, "unavailable", "Uploads are not configured")
		return
	}
	var req models.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation", "Invalid request data")
		return
	}
	target, err := h.media.Target(c.Request.Context(), auth.UserID(c), req)
	var tooLarge *media.TooLargeError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, target)
	case errors.Is(err, media.ErrUnsupportedMedia):
		abort(c, http.StatusUnsupportedMediaType, "unsupported_media", "Only images and videos can be attached")
	case errors.As(err, &tooLarge):
		abort(c, http.StatusRequestEntityTooLarge, "payload_too_large", tooLarge.Error())
	case errors.Is(err, media.ErrInvalidRequest):
		abort(c, http.StatusBadRequest, "validation", err.Error())
	default:
		h.internal(c, "upload target", err)
	}
}
