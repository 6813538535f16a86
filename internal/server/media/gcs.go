package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
)

type GCSSigner struct {
	log          *logger.Logger
	client       *storage.Client
	bucket       string
	emulatorHost string
}

// NewGCSSigner signs V4 PUT URLs for bucket. With emulatorHost set it talks
// to a local fake-gcs server unauthenticated and returns plain object URLs.
func NewGCSSigner(ctx context.Context, log *logger.Logger, bucket, emulatorHost string) (*GCSSigner, error) {
	if bucket == "" {
		return nil, errors.New("missing MEDIA_GCS_BUCKET")
	}
	emulatorHost = strings.TrimRight(strings.TrimSpace(emulatorHost), "/")

	var opts []option.ClientOption
	if emulatorHost != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", emulatorHost)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	log = log.With("service", "MediaSigner")
	log.Info("object storage initialized",
		"bucket", bucket,
		"emulator_host", emulatorHost,
	)
	return &GCSSigner{log: log, client: client, bucket: bucket, emulatorHost: emulatorHost}, nil
}

func (s *GCSSigner) SignPut(ctx context.Context, objectPath, contentType string, expires time.Time) (string, error) {
	if s.emulatorHost != "" {
		return emulatorURL(s.emulatorHost, s.bucket, objectPath), nil
	}
	u, err := s.client.Bucket(s.bucket).SignedURL(objectPath, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      "PUT",
		ContentType: contentType,
		Expires:     expires,
	})
	if err != nil {
		s.log.Error("sign put url", "object", objectPath, "error", err)
		return "", err
	}
	return u, nil
}

func (s *GCSSigner) Close() error {
	return s.client.Close()
}

func emulatorURL(host, bucket, objectPath string) string {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return host + "/" + url.PathEscape(bucket) + "/" + (&url.URL{Path: objectPath}).EscapedPath()
}
