// Package handlers provides HTTP handler implementations for the public API
// and the admin pages.
//
// This file defines the response helpers shared by all endpoints:
//   - fail / internalError: the JSON error envelope, with 5xx causes logged
//     through the request-scoped logger and never sent to the client
//   - redirectWithMessage: 303 See Other carrying an HMAC-signed flash
//     message in the query string
//   - writeStored: replays a recorded publish response byte for byte
//
// Example error response:
//
//	HTTP/1.1 400 Bad Request
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "invalid_subscriber",
//	  "message": "name or email is invalid"
//	}
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
	"github.com/tbourn/go-newsletter-backend/internal/services"
	"github.com/tbourn/go-newsletter-backend/internal/signing"
)

// ErrorResponse is the standard error envelope returned by the JSON
// endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"invalid_subscriber"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"name or email is invalid"`
}

// fail aborts the request with a structured error. Server errors are logged
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// internalError logs err with its full chain and answers with a generic 500.
func internalError(c *gin.Context, err error) {
	middleware.LoggerFrom(c).Error().Err(err).Msg("request failed")
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// redirectWithMessage answers 303 See Other to path with query, which is a
// signed message produced by signing.Codec.
func redirectWithMessage(c *gin.Context, path, query string) {
	c.Redirect(http.StatusSeeOther, redirectLocation(path, query))
}

// redirectLocation is the Location value written by redirectWithMessage.
func redirectLocation(path, query string) string {
	return path + "?" + query
}

// flashMessage verifies the signed message in the request query. Tampered
// or unsigned messages are dropped and logged as a warning.
func flashMessage(c *gin.Context, codec *signing.Codec) *signing.Message {
	msg, err := codec.Decode(c.Request.URL.Query())
	if err != nil {
		if !errors.Is(err, signing.ErrNoMessage) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("dropping unverified flash message")
		}
		return nil
	}
	return &msg
}

// writeStored replays resp: headers in their recorded order, then status,
// then body.
func writeStored(c *gin.Context, resp services.StoredResponse) {
	h := c.Writer.Header()
	for _, p := range resp.Headers {
		h.Add(p.Name, string(p.Value))
	}
	c.Status(resp.StatusCode)
	c.Writer.WriteHeaderNow()
	if len(resp.Body) > 0 {
		_, _ = c.Writer.Write(resp.Body)
	}
	c.Abort()
}

// isJSON reports whether the request body is declared as JSON.
func isJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "application/json")
}
