// Login HTTP handlers.
//
//   - GET  /login  login form, shows a verified flash message if present
//   - POST /login  checks credentials, rotates the session, redirects
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/auth"
	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
)

const (
	msgAuthFailed      = "Authentication failed"
	msgUnexpectedError = "Something went wrong. Please try again."
)

// LoginRequest is the login form.
type LoginRequest struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{"Message": flashMessage(c, h.codec)})
}

// Login validates the form credentials. On success the session gets a new
// identifier and the user ID, and the browser is sent to the dashboard. Any
// failure sends it back to /login with a signed error.
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	_ = c.ShouldBind(&req)
	lg := middleware.LoggerFrom(c)

	id, err := h.creds.ValidateCredentials(c.Request.Context(), auth.Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		if auth.IsInvalidCredentials(err) {
			lg.Warn().Str("username", req.Username).Msg("login rejected")
			redirectWithMessage(c, "/login", h.codec.Error(msgAuthFailed))
			return
		}
		lg.Error().Err(err).Msg("login failed")
		redirectWithMessage(c, "/login", h.codec.Error(msgUnexpectedError))
		return
	}

	s := middleware.SessionFrom(c)
	if s == nil {
		internalError(c, errNoSession)
		return
	}
	s.Cycle()
	s.SetUserID(id)
	if err := h.sessions.Commit(c.Request.Context(), c.Writer, s); err != nil {
		lg.Error().Err(err).Msg("store login session")
		redirectWithMessage(c, "/login", h.codec.Error(msgUnexpectedError))
		return
	}
	lg.Info().Str("user_id", id).Msg("user logged in")
	c.Redirect(http.StatusSeeOther, "/admin/dashboard")
}
