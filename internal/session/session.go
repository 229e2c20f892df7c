package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const keyUserID = "user_id"

// Session is the per-request view of a stored session. It is not safe for
// concurrent use.
type Session struct {
	id      string
	oldID   string
	data    Data
	dirty   bool
	flushed bool
}

// UserID returns the logged-in user, if any.
func (s *Session) UserID() (string, bool) {
	v, ok := s.data[keyUserID]
	return v, ok && v != ""
}

// SetUserID records the logged-in user.
func (s *Session) SetUserID(id string) {
	s.data[keyUserID] = id
	s.dirty = true
}

// Cycle assigns a fresh identifier while keeping the data. The previous
// identifier is invalidated on commit.
func (s *Session) Cycle() {
	if s.oldID == "" {
		s.oldID = s.id
	}
	s.id = ""
	s.dirty = true
}

// Flush discards the session entirely.
func (s *Session) Flush() {
	s.data = Data{}
	s.flushed = true
	s.dirty = true
}

// Manager loads sessions from request cookies and commits them back.
type Manager struct {
	Store      Store
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Load returns the session named by the request cookie, or a new empty one
// when the cookie is missing or the stored session expired.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.CookieName)
	if err != nil || c.Value == "" {
		return &Session{data: Data{}}, nil
	}
	data, err := m.Store.Load(ctx, c.Value)
	if errors.Is(err, ErrNotFound) {
		return &Session{data: Data{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &Session{id: c.Value, data: data}, nil
}

// Commit persists pending changes and sets or clears the cookie. It must
// be called before the response is written. Unchanged sessions are a no-op.
func (m *Manager) Commit(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if !s.dirty {
		return nil
	}
	if s.oldID != "" {
		if err := m.Store.Delete(ctx, s.oldID); err != nil {
			return fmt.Errorf("delete previous session: %w", err)
		}
		s.oldID = ""
	}
	if s.flushed {
		if s.id != "" {
			if err := m.Store.Delete(ctx, s.id); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
		}
		s.id = ""
		http.SetCookie(w, m.cookie("", -1))
		s.dirty = false
		return nil
	}
	if s.id == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		s.id = id
	}
	if err := m.Store.Save(ctx, s.id, s.data, m.TTL); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	http.SetCookie(w, m.cookie(s.id, int(m.TTL.Seconds())))
	s.dirty = false
	return nil
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func newID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
