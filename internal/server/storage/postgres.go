package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudzz-dev/memberchat/internal/server/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type Postgres struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Migrate creates missing tables and indexes.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

// User Methods

func (s *Postgres) CreateUser(ctx context.Context, username, displayName, passwordHash string) (*models.User, error) {
	u := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
	}
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO users (id, username, display_name, password_hash) VALUES ($1, $2, $3, $4) RETURNING created_at",
		u.ID, u.Username, u.DisplayName, u.PasswordHash,
	).Scan(&u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (s *Postgres) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *Postgres) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	return s.getUser(ctx, "id", id)
}

func (s *Postgres) getUser(ctx context.Context, column, value string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, display_name, avatar_url, password_hash, created_at FROM users WHERE "+column+" = $1",
		value,
	).Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by %s: %w", column, err)
	}
	return &u, nil
}

func (s *Postgres) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, avatar_url
		FROM users
		WHERE LOWER(username) LIKE $1 OR LOWER(display_name) LIKE $1
		ORDER BY display_name, id
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Thread Methods

func (s *Postgres) ListThreads(ctx context.Context, userID string) ([]models.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			t.id,
			t.type,
			COALESCE(t.title, ''),
			t.created_at,
			(SELECT COUNT(*) FROM messages m
			 WHERE m.thread_id = t.id
			 AND m.sender_id <> $1
			 AND m.created_at > tp.last_read_at) AS unread_count,
			lm.id, lm.sender_id, lm.content, lm.message_type, lm.created_at
		FROM threads t
		JOIN thread_participants tp ON tp.thread_id = t.id AND tp.user_id = $1
		LEFT JOIN LATERAL (
			SELECT id, sender_id, content, message_type, created_at
			FROM messages
			WHERE thread_id = t.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		ORDER BY COALESCE(lm.created_at, t.created_at) DESC, t.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	threads := []models.Thread{}
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	if err := s.attachParticipants(ctx, threads); err != nil {
		return nil, err
	}
	return threads, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanThread(row scanner) (models.Thread, error) {
	var (
		t         models.Thread
		lmID      sql.NullString
		lmSender  sql.NullString
		lmContent sql.NullString
		lmType    sql.NullString
		lmAt      sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Type, &t.Title, &t.CreatedAt, &t.UnreadCount,
		&lmID, &lmSender, &lmContent, &lmType, &lmAt); err != nil {
		return t, fmt.Errorf("scan thread: %w", err)
	}
	if lmID.Valid {
		t.LastMessage = &models.MessageSummary{
			ID:          lmID.String,
			SenderID:    lmSender.String,
			Content:     lmContent.String,
			MessageType: lmType.String,
			CreatedAt:   lmAt.Time,
		}
	}
	return t, nil
}

func (s *Postgres) attachParticipants(ctx context.Context, threads []models.Thread) error {
	if len(threads) == 0 {
		return nil
	}
	ids := make([]string, len(threads))
	index := make(map[string]int, len(threads))
	for i, t := range threads {
		ids[i] = t.ID
		index[t.ID] = i
		threads[i].ParticipantIDs = []string{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tp.thread_id, u.id, u.display_name, u.avatar_url
		FROM thread_participants tp
		JOIN users u ON u.id = tp.user_id
		WHERE tp.thread_id = ANY($1::uuid[])
		ORDER BY tp.joined_at, u.id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var threadID string
		var u models.User
		if err := rows.Scan(&threadID, &u.ID, &u.DisplayName, &u.AvatarURL); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		i := index[threadID]
		threads[i].ParticipantIDs = append(threads[i].ParticipantIDs, u.ID)
		threads[i].Participants = append(threads[i].Participants, u)
	}
	return rows.Err()
}

func (s *Postgres) GetThread(ctx context.Context, threadID, viewerID string) (*models.Thread, error) {
	if _, err := uuid.Parse(threadID); err != nil {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT
			t.id,
			t.type,
			COALESCE(t.title, ''),
			t.created_at,
			COALESCE((SELECT COUNT(*) FROM messages m
			 JOIN thread_participants tp ON tp.thread_id = m.thread_id AND tp.user_id = $2
			 WHERE m.thread_id = t.id
			 AND m.sender_id <> $2
			 AND m.created_at > tp.last_read_at), 0),
			lm.id, lm.sender_id, lm.content, lm.message_type, lm.created_at
		FROM threads t
		LEFT JOIN LATERAL (
			SELECT id, sender_id, content, message_type, created_at
			FROM messages
			WHERE thread_id = t.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		WHERE t.id = $1
	`, threadID, viewerID)
	t, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	threads := []models.Thread{t}
	if err := s.attachParticipants(ctx, threads); err != nil {
		return nil, err
	}
	return &threads[0], nil
}

func (s *Postgres) IsParticipant(ctx context.Context, threadID, userID string) (bool, error) {
	if _, err := uuid.Parse(threadID); err != nil {
		return false, nil
	}
	var ok bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM thread_participants WHERE thread_id = $1 AND user_id = $2)",
		threadID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return ok, nil
}

func (s *Postgres) StartDirect(ctx context.Context, userID, targetID string) (*models.Thread, bool, error) {
	key := DirectKey(userID, targetID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var threadID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO threads (id, type, direct_key) VALUES ($1, 'direct', $2)
		ON CONFLICT (direct_key) DO NOTHING
		RETURNING id
	`, uuid.NewString(), key).Scan(&threadID)
	created := err == nil
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := tx.QueryRowContext(ctx, "SELECT id FROM threads WHERE direct_key = $1", key).Scan(&threadID); err != nil {
			return nil, false, fmt.Errorf("find direct thread: %w", err)
		}
	case err != nil:
		return nil, false, fmt.Errorf("insert direct thread: %w", err)
	default:
		for _, id := range []string{userID, targetID} {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO thread_participants (thread_id, user_id) VALUES ($1, $2)",
				threadID, id,
			); err != nil {
				return nil, false, fmt.Errorf("add participant: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	t, err := s.GetThread(ctx, threadID, userID)
	return t, created, err
}

func (s *Postgres) CreateGroup(ctx context.Context, creatorID, title string, memberIDs []string) (*models.Thread, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	threadID := uuid.NewString()
	if _, err = tx.ExecContext(ctx,
		"INSERT INTO threads (id, type, title) VALUES ($1, 'group', $2)",
		threadID, title,
	); err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}

	for _, id := range append([]string{creatorID}, memberIDs...) {
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO thread_participants (thread_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			threadID, id,
		); err != nil {
			return nil, fmt.Errorf("add participant %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetThread(ctx, threadID, creatorID)
}

func (s *Postgres) MarkRead(ctx context.Context, threadID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE thread_participants
		SET last_read_at = NOW()
		WHERE thread_id = $1 AND user_id = $2
	`, threadID, userID)
	return err
}

// Message Methods

func (s *Postgres) ListMessages(ctx context.Context, threadID string, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, sender_id, content, message_type, COALESCE(attachment_url, ''), created_at
		FROM messages
		WHERE thread_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.SenderID, &m.Content, &m.MessageType, &m.AttachmentURL, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get oldest first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Postgres) SaveMessage(ctx context.Context, threadID, senderID string, req models.PostMessageRequest) (*models.Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	var attachment sql.NullString
	if req.AttachmentURL != "" {
		attachment = sql.NullString{String: req.AttachmentURL, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	m := models.Message{
		ID:            id.String(),
		ThreadID:      threadID,
		SenderID:      senderID,
		Content:       req.Content,
		MessageType:   req.MessageType,
		AttachmentURL: req.AttachmentURL,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (id, thread_id, sender_id, content, message_type, attachment_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, m.ID, threadID, senderID, req.Content, req.MessageType, attachment).Scan(&m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	// The sender has read everything up to their own message.
	if _, err := tx.ExecContext(ctx,
		"UPDATE thread_participants SET last_read_at = $3 WHERE thread_id = $1 AND user_id = $2",
		threadID, senderID, m.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("update read marker: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &m, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var _ Store = (*Postgres)(nil)
