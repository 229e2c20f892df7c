// Subscription HTTP handlers.
//
//   - POST /subscriptions          (form sign-up, sends the confirmation email)
//   - GET  /subscriptions/confirm  (confirmation link target)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/services"
)

// SubscribeForm is the urlencoded sign-up form.
type SubscribeForm struct {
	Name  string `form:"name" example:"Ursula Le Guin"`
	Email string `form:"email" example:"ursula_le_guin@gmail.com"`
}

// Subscribe godoc
// @ID          subscribe
// @Summary     Subscribe to the newsletter
// @Description Stores a pending subscriber and emails a confirmation link.
// @Tags        Subscriptions
// @Accept      x-www-form-urlencoded
// @Produce     json
// @Param       name  formData string true "Subscriber name"
// @Param       email formData string true "Subscriber email"
// @Success     200 {string} string "OK"
// @Failure     400 {object} handlers.ErrorResponse "Invalid name or email"
// @Failure     500 {object} handlers.ErrorResponse "Storage or email failure"
// @Router      /subscriptions [post]
func (h *Handlers) Subscribe(c *gin.Context) {
	var form SubscribeForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed form")
		return
	}

	if err := h.subs.Subscribe(c.Request.Context(), form.Name, form.Email); err != nil {
		switch services.KindOf(err) {
		case services.KindValidation:
			fail(c, http.StatusBadRequest, ErrCodeInvalidSubscriber, "name or email is invalid")
		default:
			internalError(c, err)
		}
		return
	}
	c.Status(http.StatusOK)
}

// ConfirmSubscription godoc
// @ID          confirmSubscription
// @Summary     Confirm a subscription
// @Tags        Subscriptions
// @Produce     json
// @Param       subscription_token query string true "Token from the confirmation email"
// @Success     200 {string} string "OK"
// @Failure     400 {object} handlers.ErrorResponse "Missing token"
// @Failure     401 {object} handlers.ErrorResponse "Unknown token"
// @Failure     500 {object} handlers.ErrorResponse "Storage failure"
// @Router      /subscriptions/confirm [get]
func (h *Handlers) ConfirmSubscription(c *gin.Context) {
	if err := h.subs.Confirm(c.Request.Context(), c.Query("subscription_token")); err != nil {
		switch services.KindOf(err) {
		case services.KindValidation:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subscription_token is required")
		case services.KindUnauthorized:
			fail(c, http.StatusUnauthorized, ErrCodeUnknownToken, "subscription token is not recognized")
		default:
			internalError(c, err)
		}
		return
	}
	c.Status(http.StatusOK)
}
