package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cloudzz-dev/memberchat/internal/client/chat"
	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
)

// Client talks to the chat REST API and implements chat.Backend.
type Client struct {
	baseURL string
	http    *http.Client
	upload  *http.Client
	log     *logger.Logger

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithUploadClient sets the client used for PUTs to object storage.
func WithUploadClient(c *http.Client) Option {
	return func(cl *Client) { cl.upload = c }
}

func WithLogger(l *logger.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		upload:  &http.Client{Timeout: 10 * time.Minute},
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "api")
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// AuthRequest is the body of POST /auth/login and /auth/register.
type AuthRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

type AuthResponse struct {
	Token string    `json:"token"`
	User  chat.User `json:"user"`
}

func (c *Client) Login(ctx context.Context, username, password string) (AuthResponse, error) {
	return c.authenticate(ctx, "/auth/login", AuthRequest{Username: username, Password: password})
}

func (c *Client) Register(ctx context.Context, username, password, displayName string) (AuthResponse, error) {
	return c.authenticate(ctx, "/auth/register", AuthRequest{Username: username, Password: password, DisplayName: displayName})
}

func (c *Client) authenticate(ctx context.Context, path string, req AuthRequest) (AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, path, nil, req, &resp, false); err != nil {
		return AuthResponse{}, err
	}
	c.SetToken(resp.Token)
	return resp, nil
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (chat.User, error) {
	var u chat.User
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &u, true)
	return u, err
}

func (c *Client) ListThreads(ctx context.Context) ([]chat.Thread, error) {
	var threads []chat.Thread
	if err := c.do(ctx, http.MethodGet, "/threads", nil, nil, &threads, true); err != nil {
		return nil, err
	}
	return threads, nil
}

func (c *Client) ListMessages(ctx context.Context, threadID string) ([]chat.Message, error) {
	var msgs []chat.Message
	if err := c.do(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID)+"/messages", nil, nil, &msgs, true); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) PostMessage(ctx context.Context, threadID string, req chat.PostMessageRequest) (chat.Message, error) {
	var m chat.Message
	err := c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", nil, req, &m, true)
	return m, err
}

// MarkRead tells the server the local user has seen everything in the
// thread up to now.
func (c *Client) MarkRead(ctx context.Context, threadID string) error {
	return c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/read", nil, nil, nil, true)
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]chat.User, error) {
	var users []chat.User
	q := url.Values{"q": {query}}
	if err := c.do(ctx, http.MethodPost, "/users/search", q, nil, &users, true); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) StartDirect(ctx context.Context, targetUserID string) (chat.Thread, error) {
	var t chat.Thread
	body := map[string]string{"targetUserId": targetUserID}
	err := c.do(ctx, http.MethodPost, "/threads/direct", nil, body, &t, true)
	return t, err
}

func (c *Client) CreateGroup(ctx context.Context, title string, memberIDs []string) (chat.Thread, error) {
	var t chat.Thread
	body := struct {
		Title     string   `json:"title"`
		MemberIDs []string `json:"memberIds"`
	}{title, memberIDs}
	err := c.do(ctx, http.MethodPost, "/threads/group", nil, body, &t, true)
	return t, err
}

func (c *Client) RequestUpload(ctx context.Context, req chat.UploadRequest) (chat.UploadTarget, error) {
	var target chat.UploadTarget
	err := c.do(ctx, http.MethodPost, "/chat/upload-media", nil, req, &target, true)
	return target, err
}

// PutObject uploads raw bytes to a pre-signed URL. The bearer token is not
// sent: the URL itself carries the authorization.
func (c *Client) PutObject(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error {
	const op = "upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return &chat.Error{Kind: chat.KindUpload, Op: op, Msg: "invalid upload URL", Err: err}
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	resp, err := c.upload.Do(req)
	if err != nil {
		return &chat.Error{Kind: chat.KindUpload, Op: op, Msg: "transfer failed", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("object upload rejected", "status", resp.StatusCode)
		return &chat.Error{Kind: chat.KindUpload, Op: op, Status: resp.StatusCode, Msg: fmt.Sprintf("storage answered %d", resp.StatusCode)}
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}, auth bool) error {
	op := method + " " + path
	token := c.Token()
	if auth && token == "" {
		return &chat.Error{Kind: chat.KindAuthorization, Op: op, Msg: "not signed in"}
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &chat.Error{Kind: chat.KindValidation, Op: op, Msg: "can't encode request", Err: err}
		}
		body = bytes.NewReader(raw)
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return &chat.Error{Kind: chat.KindNetwork, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", "op", op, "error", err)
		return &chat.Error{Kind: chat.KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.log.Debug("request", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb)
		return statusError(op, resp.StatusCode, eb)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &chat.Error{Kind: chat.KindServer, Op: op, Msg: "malformed response", Status: resp.StatusCode, Err: err}
	}
	return nil
}

func statusError(op string, status int, eb errorBody) *chat.Error {
	e := &chat.Error{Op: op, Status: status, Msg: eb.Error}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = chat.KindAuthorization
	case status == http.StatusRequestEntityTooLarge:
		e.Kind = chat.KindPayloadTooLarge
	case status == http.StatusUnsupportedMediaType:
		e.Kind = chat.KindUnsupportedMedia
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusNotFound || status == http.StatusConflict:
		e.Kind = chat.KindValidation
	default:
		e.Kind = chat.KindServer
	}
	if e.Msg == "" {
		e.Msg = http.StatusText(status)
	}
	return e
}

var _ chat.Backend = (*Client)(nil)
