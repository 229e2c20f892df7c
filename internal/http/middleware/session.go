// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file attaches the cookie session to each request and provides the two
// authentication gates used by the router:
//   - RequireLogin: admin pages; anonymous visitors are redirected to /login
//   - SessionOrBasicAuth: the publish API; a logged-in session or an
//     Authorization: Basic header is accepted
//
// Both gates store the authenticated user under the "userID" Gin context key,
// which Logger and KeyByUserOrIP already read.
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/auth"
	"github.com/tbourn/go-newsletter-backend/internal/session"
)

const (
	ctxKeySession = "session"
	ctxKeyUserID  = "userID"

	basicRealm = `Basic realm="publish"`
)

// CredentialValidator checks a username/password pair and returns the user ID.
type CredentialValidator interface {
	ValidateCredentials(ctx context.Context, c auth.Credentials) (string, error)
}

// Sessions loads the request's session through m and stores it in the Gin
// context. A store failure aborts with 500.
func Sessions(m *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := m.Load(c.Request.Context(), c.Request)
		if err != nil {
			LoggerFrom(c).Error().Err(err).Msg("load session")
			abortInternal(c)
			return
		}
		c.Set(ctxKeySession, s)
		c.Next()
	}
}

// SessionFrom returns the session attached by Sessions, or nil.
func SessionFrom(c *gin.Context) *session.Session {
	if v, ok := c.Get(ctxKeySession); ok {
		if s, ok := v.(*session.Session); ok {
			return s
		}
	}
	return nil
}

// UserID returns the authenticated user stored by an auth gate.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RequireLogin lets through requests whose session carries a user and
// redirects everyone else to /login with 303 See Other.
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s := SessionFrom(c); s != nil {
			if id, ok := s.UserID(); ok {
				c.Set(ctxKeyUserID, id)
				c.Next()
				return
			}
		}
		c.Redirect(http.StatusSeeOther, "/login")
		c.Abort()
	}
}

// SessionOrBasicAuth accepts a logged-in session first, then HTTP Basic
// credentials. Missing or wrong credentials get 401 with a
// WWW-Authenticate challenge.
func SessionOrBasicAuth(v CredentialValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s := SessionFrom(c); s != nil {
			if id, ok := s.UserID(); ok {
				c.Set(ctxKeyUserID, id)
				c.Next()
				return
			}
		}

		username, password, ok := c.Request.BasicAuth()
		if !ok {
			abortUnauthorized(c, "missing credentials")
			return
		}
		id, err := v.ValidateCredentials(c.Request.Context(), auth.Credentials{Username: username, Password: password})
		switch {
		case err == nil:
			c.Set(ctxKeyUserID, id)
			c.Next()
		case auth.IsInvalidCredentials(err):
			abortUnauthorized(c, "invalid username or password")
		default:
			LoggerFrom(c).Error().Err(err).Msg("validate basic credentials")
			abortInternal(c)
		}
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", basicRealm)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}

func abortInternal(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "internal_error",
		"message":    "internal server error",
	})
}
