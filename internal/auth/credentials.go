// Package auth keeps the bearer token on disk and drives the login and
// logout exchanges with the backend.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// Credentials is what a successful login leaves behind.
type Credentials struct {
	AccessToken string
	ExpiresAt   time.Time // zero when the backend sent no expiry
	Email       string
	Name        string
	Picture     string
}

// Valid reports whether the credentials carry a token that has not expired.
func (c Credentials) Valid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

type credentialsFile struct {
	AccessToken string `yaml:"access_token"`
	ExpiresAt   string `yaml:"expires_at,omitempty"`
	Email       string `yaml:"email,omitempty"`
	Name        string `yaml:"name,omitempty"`
	Picture     string `yaml:"picture,omitempty"`
}

// Store is the durable token storage. Reads are served from memory and
// refreshed by Reload, which the watcher calls when the file changes.
type Store struct {
	path string
	now  func() time.Time

	mu    sync.RWMutex
	creds Credentials
}

// NewStore opens the credentials file at path. A missing file is not an
// error; the store then starts logged out.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, now: time.Now}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Reload re-reads the file from disk.
func (s *Store) Reload() error {
	creds, err := readCredentials(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	return nil
}

// Credentials returns the stored credentials.
func (s *Store) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Token returns the stored access token, or "" when there is none.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken
}

// Authenticated decides whether the logged-in view is shown.
func (s *Store) Authenticated() bool {
	return s.Credentials().Valid(s.now())
}

// Save writes creds to disk with owner-only permissions.
func (s *Store) Save(creds Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	file := credentialsFile{
		AccessToken: creds.AccessToken,
		Email:       creds.Email,
		Name:        creds.Name,
		Picture:     creds.Picture,
	}
	if !creds.ExpiresAt.IsZero() {
		file.ExpiresAt = creds.ExpiresAt.UTC().Format(time.RFC3339)
	}
	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace credentials: %w", err)
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	return nil
}

// ClearToken removes the stored credentials.
func (s *Store) ClearToken() error {
	s.mu.Lock()
	s.creds = Credentials{}
	s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}

func readCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials: %w", err)
	}
	var file credentialsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse credentials %s: %w", path, err)
	}
	expires, err := ParseExpiry(file.ExpiresAt)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		AccessToken: strings.TrimSpace(file.AccessToken),
		ExpiresAt:   expires,
		Email:       file.Email,
		Name:        file.Name,
		Picture:     file.Picture,
	}, nil
}

// ParseExpiry accepts RFC 3339 timestamps and unix seconds, the two forms
// the backend has been seen to send.
func ParseExpiry(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Unix(int64(secs), 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid expires_at %q", v)
}
