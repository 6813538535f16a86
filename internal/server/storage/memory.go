package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudzz-dev/memberchat/internal/server/models"
	"github.com/google/uuid"
)

type memThread struct {
	thread   models.Thread
	members  []string
	lastRead map[string]time.Time
	messages []models.Message
}

// Memory keeps everything in process. It backs DATABASE_URL=memory and
// the handler tests.
type Memory struct {
	mu      sync.RWMutex
	now     func() time.Time
	users   map[string]*models.User
	byName  map[string]string
	threads map[string]*memThread
	direct  map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		now:     func() time.Time { return time.Now().UTC() },
		users:   make(map[string]*models.User),
		byName:  make(map[string]string),
		threads: make(map[string]*memThread),
		direct:  make(map[string]string),
	}
}

// SetClock replaces the time source.
func (s *Memory) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Memory) Close() error { return nil }

func (s *Memory) CreateUser(ctx context.Context, username, displayName, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(username)
	if _, ok := s.byName[key]; ok {
		return nil, ErrUsernameTaken
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    s.now(),
	}
	s.users[u.ID] = u
	s.byName[key] = u.ID
	out := *u
	return &out, nil
}

func (s *Memory) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[strings.ToLower(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *s.users[id]
	return &out, nil
}

func (s *Memory) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (s *Memory) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	out := []models.User{}
	for _, u := range s.users {
		if strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(strings.ToLower(u.DisplayName), q) {
			out = append(out, u.Public())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) ListThreads(ctx context.Context, userID string) ([]models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Thread{}
	for _, mt := range s.threads {
		if mt.has(userID) {
			out = append(out, s.view(mt, userID))
		}
	}
	sortThreads(out)
	return out, nil
}

func (s *Memory) GetThread(ctx context.Context, threadID, viewerID string) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mt, ok := s.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	t := s.view(mt, viewerID)
	return &t, nil
}

func (s *Memory) IsParticipant(ctx context.Context, threadID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mt, ok := s.threads[threadID]
	return ok && mt.has(userID), nil
}

func (s *Memory) StartDirect(ctx context.Context, userID, targetID string) (*models.Thread, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := DirectKey(userID, targetID)
	if id, ok := s.direct[key]; ok {
		t := s.view(s.threads[id], userID)
		return &t, false, nil
	}
	mt := s.newThread(models.ThreadDirect, "", []string{userID, targetID})
	s.direct[key] = mt.thread.ID
	t := s.view(mt, userID)
	return &t, true, nil
}

func (s *Memory) CreateGroup(ctx context.Context, creatorID, title string, memberIDs []string) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := []string{creatorID}
	seen := map[string]bool{creatorID: true}
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			members = append(members, id)
		}
	}
	mt := s.newThread(models.ThreadGroup, title, members)
	t := s.view(mt, creatorID)
	return &t, nil
}

func (s *Memory) newThread(kind, title string, members []string) *memThread {
	now := s.now()
	mt := &memThread{
		thread: models.Thread{
			ID:        uuid.NewString(),
			Type:      kind,
			Title:     title,
			CreatedAt: now,
		},
		members:  members,
		lastRead: make(map[string]time.Time, len(members)),
	}
	for _, id := range members {
		mt.lastRead[id] = now
	}
	s.threads[mt.thread.ID] = mt
	return mt
}

func (s *Memory) MarkRead(ctx context.Context, threadID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mt, ok := s.threads[threadID]; ok && mt.has(userID) {
		mt.lastRead[userID] = s.now()
	}
	return nil
}

func (s *Memory) ListMessages(ctx context.Context, threadID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mt, ok := s.threads[threadID]
	if !ok {
		return []models.Message{}, nil
	}
	msgs := mt.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.Message{}, msgs...), nil
}

func (s *Memory) SaveMessage(ctx context.Context, threadID, senderID string, req models.PostMessageRequest) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mt, ok := s.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	m := models.Message{
		ID:            id.String(),
		ThreadID:      threadID,
		SenderID:      senderID,
		Content:       req.Content,
		MessageType:   req.MessageType,
		AttachmentURL: req.AttachmentURL,
		CreatedAt:     s.now(),
	}
	mt.messages = append(mt.messages, m)
	sort.SliceStable(mt.messages, func(i, j int) bool {
		a, b := mt.messages[i], mt.messages[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	mt.lastRead[senderID] = m.CreatedAt
	return &m, nil
}

func (mt *memThread) has(userID string) bool {
	for _, id := range mt.members {
		if id == userID {
			return true
		}
	}
	return false
}

// view renders mt for viewer. Callers hold s.mu.
func (s *Memory) view(mt *memThread, viewer string) models.Thread {
	t := mt.thread
	t.ParticipantIDs = append([]string{}, mt.members...)
	t.Participants = make([]models.User, 0, len(mt.members))
	for _, id := range mt.members {
		if u, ok := s.users[id]; ok {
			t.Participants = append(t.Participants, u.Public())
		} else {
			t.Participants = append(t.Participants, models.User{ID: id})
		}
	}
	if n := len(mt.messages); n > 0 {
		t.LastMessage = mt.messages[n-1].Summary()
	}
	if read, ok := mt.lastRead[viewer]; ok {
		for _, m := range mt.messages {
			if m.SenderID != viewer && m.CreatedAt.After(read) {
				t.UnreadCount++
			}
		}
	}
	return t
}

var _ Store = (*Memory)(nil)
