// Package signing carries short user-facing messages across redirects as
// query parameters authenticated with HMAC-SHA256.
//
// A signed query looks like
//
//	error=Authentication+failed&tag=<hex hmac>
//
// where the tag covers the exact "name=escaped-value" prefix. A message whose
// tag does not verify is dropped.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
)

// Message parameter names.
const (
	ParamError = "error"
	ParamInfo  = "info"
	ParamTag   = "tag"
)

var (
	// ErrNoMessage means the query carries neither an error nor an info message.
	ErrNoMessage = errors.New("no signed message in query")
	// ErrBadSignature means a message was present but its tag did not verify.
	ErrBadSignature = errors.New("signed message failed verification")
)

// Message is a verified flash message.
type Message struct {
	Level string // ParamError or ParamInfo
	Text  string
}

// Codec signs and verifies messages with a shared secret.
type Codec struct {
	secret []byte
}

// NewCodec copies secret into a new Codec.
func NewCodec(secret []byte) *Codec {
	return &Codec{secret: append([]byte(nil), secret...)}
}

// Encode returns a query string (without leading '?') carrying msg under
// param, followed by its tag.
func (c *Codec) Encode(param, msg string) string {
	q := param + "=" + url.QueryEscape(msg)
	return q + "&" + ParamTag + "=" + hex.EncodeToString(c.mac(q))
}

// Error is Encode(ParamError, msg).
func (c *Codec) Error(msg string) string { return c.Encode(ParamError, msg) }

// Info is Encode(ParamInfo, msg).
func (c *Codec) Info(msg string) string { return c.Encode(ParamInfo, msg) }

// Decode extracts and verifies the message in q. ErrNoMessage is returned
// when none is present; ErrBadSignature when the tag is missing, malformed
// or does not match.
func (c *Codec) Decode(q url.Values) (Message, error) {
	for _, param := range []string{ParamError, ParamInfo} {
		if !q.Has(param) {
			continue
		}
		text := q.Get(param)
		tag := q.Get(ParamTag)
		if tag == "" {
			return Message{}, ErrBadSignature
		}
		// Tags are canonical lower-case hex.
		want := hex.EncodeToString(c.mac(param + "=" + url.QueryEscape(text)))
		if !hmac.Equal([]byte(tag), []byte(want)) {
			return Message{}, ErrBadSignature
		}
		return Message{Level: param, Text: text}, nil
	}
	return Message{}, ErrNoMessage
}

func (c *Codec) mac(s string) []byte {
	m := hmac.New(sha256.New, c.secret)
	m.Write([]byte(s))
	return m.Sum(nil)
}
