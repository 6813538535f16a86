// Package storage persists users, threads and messages for the chat server.
package storage

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/cloudzz-dev/memberchat/internal/server/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrUserNotFound  = errors.New("user not found")
)

// Store is implemented by the Postgres store and the in-memory store.
type Store interface {
	CreateUser(ctx context.Context, username, displayName, passwordHash string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error)

	ListThreads(ctx context.Context, userID string) ([]models.Thread, error)
	GetThread(ctx context.Context, threadID, viewerID string) (*models.Thread, error)
	IsParticipant(ctx context.Context, threadID, userID string) (bool, error)
	// StartDirect returns the direct thread for {userID, targetID}, creating
	// it on first use. created reports whether this call created it.
	StartDirect(ctx context.Context, userID, targetID string) (thread *models.Thread, created bool, err error)
	CreateGroup(ctx context.Context, creatorID, title string, memberIDs []string) (*models.Thread, error)

	ListMessages(ctx context.Context, threadID string, limit int) ([]models.Message, error)
	SaveMessage(ctx context.Context, threadID, senderID string, req models.PostMessageRequest) (*models.Message, error)
	MarkRead(ctx context.Context, threadID, userID string) error

	Close() error
}

// DirectKey identifies the direct thread of an unordered pair.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// Open picks the in-memory store for "memory" and Postgres otherwise.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "memory" {
		return NewMemory(), nil
	}
	pg, err := OpenPostgres(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

// Migrator is implemented by stores that own a schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

func sortThreads(threads []models.Thread) {
	activity := func(t models.Thread) int64 {
		if t.LastMessage != nil {
			return t.LastMessage.CreatedAt.UnixNano()
		}
		return t.CreatedAt.UnixNano()
	}
	sort.SliceStable(threads, func(i, j int) bool {
		ai, aj := activity(threads[i]), activity(threads[j])
		if ai != aj {
			return ai > aj
		}
		return threads[i].ID < threads[j].ID
	})
}
