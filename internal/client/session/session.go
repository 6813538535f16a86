// Package session persists the signed-in identity between client runs.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const fileName = "session.json"

// Session holds a bearer token, never the password.
type Session struct {
	ServerURL   string    `json:"server_url"`
	Username    string    `json:"username"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Token       string    `json:"token"`
	SavedAt     time.Time `json:"saved_at"`
}

// Valid reports whether s can be used to resume without logging in.
func (s *Session) Valid(serverURL string) bool {
	return s != nil && s.Token != "" && s.UserID != "" && s.ServerURL == serverURL
}

// Store reads and writes one profile's session file, sealed with a key
// bound to this machine.
type Store struct {
	path string
	key  []byte
}

// ForProfile resolves ~/.config/memberchat/<profile>/session.json.
func ForProfile(profile string) (*Store, error) {
	dir := GetConfigDir(profile)
	if dir == "" {
		return nil, errors.New("could not get config directory")
	}
	return &Store{path: filepath.Join(dir, fileName), key: machineKey()}, nil
}

func GetConfigDir(profile string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	if profile == "" {
		profile = "default"
	}
	return filepath.Join(home, ".config", "memberchat", profile)
}

func machineKey() []byte {
	var id string
	for _, p := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(p); err == nil {
			id = strings.TrimSpace(string(data))
			break
		}
	}
	if id == "" {
		id, _ = os.Hostname()
	}
	sum := sha256.Sum256([]byte("memberchat:" + id))
	return sum[:]
}

func (st *Store) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(st.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (st *Store) seal(plain []byte) (string, error) {
	gcm, err := st.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, plain, nil)), nil
}

func (st *Store) open(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sealed))
	if err != nil {
		return nil, err
	}
	gcm, err := st.aead()
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	n := gcm.NonceSize()
	return gcm.Open(nil, raw[:n], raw[n:], nil)
}

// Load returns nil when no readable session exists.
func (st *Store) Load() *Session {
	data, err := os.ReadFile(st.path)
	if err != nil {
		return nil
	}
	plain, err := st.open(string(data))
	if err != nil {
		return nil
	}
	var s Session
	if err := json.Unmarshal(plain, &s); err != nil {
		return nil
	}
	return &s
}

func (st *Store) Save(s Session) error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now().UTC()
	}
	plain, err := json.Marshal(s)
	if err != nil {
		return err
	}
	sealed, err := st.seal(plain)
	if err != nil {
		return fmt.Errorf("encrypt session: %w", err)
	}
	return os.WriteFile(st.path, []byte(sealed), 0o600)
}

// Clear forgets the session; a missing file is not an error.
func (st *Store) Clear() error {
	if err := os.Remove(st.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
