// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file extracts and validates the idempotency key of a publish request.
// The key is read from, in order:
//   - the Idempotency-Key header
//   - the idempotency_key form field (urlencoded or multipart bodies)
//   - the idempotency_key member of a JSON body
//
// The validated key is stashed in the Gin context (GetIdempotencyKey). When a
// lookup reports that the user already completed a request with this key, the
// request is marked as a replay so the rate limiter lets it through; serving
// the stored response stays the handler's job.
//
// JSON bodies are read with ShouldBindBodyWith so the handler can bind the
// same body again.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// HeaderIdempotencyKey is the request header that may carry the key.
const HeaderIdempotencyKey = "Idempotency-Key"

// FieldIdempotencyKey is the body field that may carry the key.
const FieldIdempotencyKey = "idempotency_key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

var errMissingKey = errors.New("idempotency key is required")

// GetIdempotencyKey returns the key stored by IdempotencyKey.
func GetIdempotencyKey(c *gin.Context) (domain.IdempotencyKey, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	k, _ := v.(domain.IdempotencyKey)
	return k, k != ""
}

// IsReplay reports whether the lookup found a completed response for this
// user and key.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyLookup reports whether userID already completed a request with
// key. Errors are treated as "not completed".
type IdempotencyLookup func(ctx context.Context, userID string, key domain.IdempotencyKey) (bool, error)

// IdempotencyKey requires a valid idempotency key on the request. It must run
// after an auth gate so the lookup is scoped to the authenticated user.
// Missing or malformed keys are rejected with 400.
func IdempotencyKey(lookup IdempotencyLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := rawIdempotencyKey(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    err.Error(),
			})
			return
		}
		key, err := domain.ParseIdempotencyKey(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid idempotency key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			if done, _ := lookup(c.Request.Context(), UserID(c), key); done {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

func rawIdempotencyKey(c *gin.Context) (string, error) {
	if k := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)); k != "" {
		return k, nil
	}
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return "", errMissingKey
	}
	if c.ContentType() == binding.MIMEJSON {
		var body struct {
			Key string `json:"idempotency_key"`
		}
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
			return "", errors.New("request body is not valid JSON")
		}
		if body.Key == "" {
			return "", errMissingKey
		}
		return body.Key, nil
	}
	if k := c.PostForm(FieldIdempotencyKey); k != "" {
		return k, nil
	}
	return "", errMissingKey
}
