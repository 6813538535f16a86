// Package media hands out upload targets for chat attachments. Clients PUT
// bytes straight to object storage; the server only validates and signs.
package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloudzz-dev/memberchat/internal/server/models"
)

const (
	MaxImageBytes int64 = 10 * 1024 * 1024
	MaxVideoBytes int64 = 50 * 1024 * 1024

	maxNameLength = 100
)

var (
	ErrUnsupportedMedia = errors.New("only image and video uploads are allowed")
	ErrInvalidRequest   = errors.New("name, size and contentType are required")
)

// TooLargeError names the limit that was exceeded.
type TooLargeError struct {
	MediaType string
	Limit     int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("%s uploads are limited to %d MB", e.MediaType, e.Limit/(1024*1024))
}

// Signer produces a URL that accepts a single PUT of objectPath.
type Signer interface {
	SignPut(ctx context.Context, objectPath, contentType string, expires time.Time) (string, error)
}

type Service struct {
	signer Signer
	ttl    time.Duration
	now    func() time.Time
}

func NewService(signer Signer, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{signer: signer, ttl: ttl, now: time.Now}
}

// Classify maps a Content-Type to a message type, ignoring parameters.
func Classify(contentType string) (string, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", ErrUnsupportedMedia
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return models.MessageImage, nil
	case strings.HasPrefix(mt, "video/"):
		return models.MessageVideo, nil
	}
	return "", ErrUnsupportedMedia
}

func Validate(req models.UploadRequest) (string, error) {
	if strings.TrimSpace(req.Name) == "" || req.Size <= 0 || req.ContentType == "" {
		return "", ErrInvalidRequest
	}
	mediaType, err := Classify(req.ContentType)
	if err != nil {
		return "", err
	}
	limit := MaxImageBytes
	if mediaType == models.MessageVideo {
		limit = MaxVideoBytes
	}
	if req.Size > limit {
		return "", &TooLargeError{MediaType: mediaType, Limit: limit}
	}
	return mediaType, nil
}

// ObjectPath is chat/<userID>/<random>/<sanitized name>.
func ObjectPath(userID, name string) string {
	return path.Join("chat", userID, uuid.NewString(), sanitizeName(name))
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		out = "file"
	}
	if len(out) > maxNameLength {
		out = out[len(out)-maxNameLength:]
	}
	return out
}

// Target validates req and signs an upload URL for it.
func (s *Service) Target(ctx context.Context, userID string, req models.UploadRequest) (*models.UploadTarget, error) {
	mediaType, err := Validate(req)
	if err != nil {
		return nil, err
	}
	objectPath := ObjectPath(userID, req.Name)
	url, err := s.signer.SignPut(ctx, objectPath, req.ContentType, s.now().Add(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("sign upload url: %w", err)
	}
	return &models.UploadTarget{UploadURL: url, ObjectPath: objectPath, MediaType: mediaType}, nil
}
