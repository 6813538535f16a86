package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.cost = bcrypt.MinCost
	return m
}

func TestIssueAndParse(t *testing.T) {
	m := newTestManager(t)
	token, err := m.Issue("u1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != "u1" {
		t.Errorf("UserID = %q", claims.UserID)
	}
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	m := newTestManager(t)
	token, _ := m.Issue("u1")

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := m.Parse(token); err == nil {
		t.Error("expired token accepted")
	}

	other, _ := NewManager("other-secret", time.Hour)
	foreign, _ := other.Issue("u1")
	if _, err := newTestManager(t).Parse(foreign); err == nil {
		t.Error("token signed with another secret accepted")
	}
}

func TestNewManagerValidates(t *testing.T) {
	if _, err := NewManager("", time.Hour); err == nil {
		t.Error("empty secret accepted")
	}
	if _, err := NewManager("x", 0); err == nil {
		t.Error("zero max age accepted")
	}
}

func TestPasswordHashing(t *testing.T) {
	m := newTestManager(t)
	hash, err := m.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword("hunter22", hash) {
		t.Error("correct password rejected")
	}
	if CheckPassword("wrong", hash) || CheckPassword("", hash) {
		t.Error("wrong password accepted")
	}
	if _, err := m.HashPassword(""); err == nil {
		t.Error("empty password hashed")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(t)
	r := gin.New()
	r.GET("/me", m.Middleware(), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	token, _ := m.Issue("u42")
	tests := []struct {
		header string
		status int
		body   string
	}{
		{"", http.StatusUnauthorized, ""},
		{"Token " + token, http.StatusUnauthorized, ""},
		{"Bearer garbage", http.StatusUnauthorized, ""},
		{"Bearer " + token, http.StatusOK, "u42"},
		{"bearer " + token, http.StatusOK, "u42"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		r.ServeHTTP(w, req)
		if w.Code != tt.status {
			t.Errorf("%q: status = %d, want %d", tt.header, w.Code, tt.status)
		}
		if tt.body != "" && w.Body.String() != tt.body {
			t.Errorf("%q: body = %q", tt.header, w.Body.String())
		}
	}
}
