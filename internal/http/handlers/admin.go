// Admin HTTP handlers. Every route here sits behind middleware.RequireLogin.
//
//   - GET  /admin/dashboard
//   - GET  /admin/password
//   - POST /admin/password
//   - POST /admin/logout
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
	"github.com/tbourn/go-newsletter-backend/internal/services"
)

const (
	msgPasswordMismatch = "You entered two different new passwords - the field values must match."
	msgPasswordTooShort = "Your password is too short!"
	msgPasswordWrong    = "The current password is incorrect."
	msgPasswordChanged  = "Your password has been changed."
	msgLoggedOut        = "You have successfully logged out."
)

var errNoSession = errors.New("session middleware is not installed")

// ChangePasswordRequest is the change-password form.
type ChangePasswordRequest struct {
	CurrentPassword  string `form:"current_password"`
	NewPassword      string `form:"new_password"`
	NewPasswordCheck string `form:"new_password_check"`
}

// Dashboard greets the logged-in admin.
func (h *Handlers) Dashboard(c *gin.Context) {
	username, err := h.accounts.Username(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		internalError(c, err)
		return
	}
	c.HTML(http.StatusOK, "dashboard.html", gin.H{"Username": username})
}

// PasswordForm renders the change-password page.
func (h *Handlers) PasswordForm(c *gin.Context) {
	c.HTML(http.StatusOK, "password.html", gin.H{"Message": flashMessage(c, h.codec)})
}

// ChangePassword applies the change-password form and redirects back to it
// with the outcome.
func (h *Handlers) ChangePassword(c *gin.Context) {
	const back = "/admin/password"

	var req ChangePasswordRequest
	_ = c.ShouldBind(&req)

	err := h.accounts.ChangePassword(c.Request.Context(), middleware.UserID(c), services.PasswordChange{
		Current:  req.CurrentPassword,
		New:      req.NewPassword,
		NewCheck: req.NewPasswordCheck,
	})
	switch {
	case err == nil:
		redirectWithMessage(c, back, h.codec.Info(msgPasswordChanged))
	case errors.Is(err, services.ErrPasswordMismatch):
		redirectWithMessage(c, back, h.codec.Error(msgPasswordMismatch))
	case errors.Is(err, services.ErrPasswordTooShort):
		redirectWithMessage(c, back, h.codec.Error(msgPasswordTooShort))
	case services.KindOf(err) == services.KindUnauthorized:
		redirectWithMessage(c, back, h.codec.Error(msgPasswordWrong))
	default:
		internalError(c, err)
	}
}

// Logout drops the session and sends the browser to /login.
func (h *Handlers) Logout(c *gin.Context) {
	s := middleware.SessionFrom(c)
	if s == nil {
		internalError(c, errNoSession)
		return
	}
	s.Flush()
	if err := h.sessions.Commit(c.Request.Context(), c.Writer, s); err != nil {
		internalError(c, err)
		return
	}
	redirectWithMessage(c, "/login", h.codec.Info(msgLoggedOut))
}
