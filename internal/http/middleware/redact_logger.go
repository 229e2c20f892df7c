// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the structured access logger the
// router installs. Before anything is logged it scrubs:
//   - sensitive headers (Authorization, Cookie, Set-Cookie, plus custom ones)
//   - secret query parameters (subscription_token, tag, password fields)
//   - email addresses, phone numbers and UUIDs anywhere in the query or
//     header values
//
// Request and response bodies are never logged.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions extends the built-in masks. Header and parameter names are
// matched case-insensitively.
type RedactOptions struct {
	MaskHeaders     []string
	MaskQueryParams []string
}

const redacted = "[REDACTED]"

var (
	// UUIDs go first so the phone pattern cannot eat their digit groups.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redactor scrubs PII and secrets from request metadata.
type redactor struct {
	headers map[string]struct{}
	params  map[string]struct{}
}

func newRedactor(opts RedactOptions) *redactor {
	r := &redactor{
		headers: map[string]struct{}{
			"authorization": {},
			"cookie":        {},
			"set-cookie":    {},
		},
		params: map[string]struct{}{
			"subscription_token": {},
			"tag":                {},
			"password":           {},
			"current_password":   {},
			"new_password":       {},
			"new_password_check": {},
		},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.headers[h] = struct{}{}
		}
	}
	for _, p := range opts.MaskQueryParams {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			r.params[p] = struct{}{}
		}
	}
	return r
}

func (r *redactor) text(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// query masks secret parameters entirely and scrubs the rest. An unparsable
// query is scrubbed as plain text.
func (r *redactor) query(raw string) string {
	if raw == "" {
		return raw
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return r.text(raw)
	}
	for k, vs := range q {
		if _, ok := r.params[strings.ToLower(k)]; ok {
			q[k] = []string{redacted}
			continue
		}
		for i := range vs {
			vs[i] = r.text(vs[i])
		}
	}
	return q.Encode()
}

func (r *redactor) headerMap(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.headers[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = r.text(strings.Join(vv, ", "))
	}
	return out
}

// RedactingLogger logs one line per request with scrubbed metadata. Level
// follows the status: info, warn for 4xx, error for 5xx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	r := newRedactor(opts)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := truncate(r.query(c.Request.URL.RawQuery), maxQueryLogLength)
		safeHeaders := r.headerMap(c.Request.Header)

		scoped := log.With().
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(ctxKeyLogger, &scoped)

		c.Next()

		status := c.Writer.Status()
		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}

		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}

		ev.
			Str("request_id", reqID).
			Str("user_id", UserID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
