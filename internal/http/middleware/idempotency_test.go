package middleware

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

type seenKey struct {
	userID string
	key    domain.IdempotencyKey
}

// idemRouter mounts IdempotencyKey behind a fake auth gate for user "u1".
// The handler echoes the key and re-binds JSON bodies to prove they survive.
func idemRouter(lookup IdempotencyLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(ctxKeyUserID, "u1"); c.Next() })
	r.Use(IdempotencyKey(lookup))
	r.POST("/newsletters", func(c *gin.Context) {
		key, _ := GetIdempotencyKey(c)
		title := ""
		if c.ContentType() == binding.MIMEJSON {
			var body struct {
				Title string `json:"title"`
			}
			_ = c.ShouldBindBodyWith(&body, binding.JSON)
			title = body.Title
		}
		c.JSON(http.StatusOK, gin.H{"key": string(key), "replay": IsReplay(c), "bypass": IsRateBypass(c), "title": title})
	})
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return m
}

func TestIdempotencyKey_Sources(t *testing.T) {
	r := idemRouter(nil)

	// header
	req := httptest.NewRequest(http.MethodPost, "/newsletters", nil)
	req.Header.Set(HeaderIdempotencyKey, "from-header")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if m := decode(t, w); w.Code != 200 || m["key"] != "from-header" {
		t.Fatalf("header: %d %v", w.Code, m)
	}

	// urlencoded form
	form := url.Values{FieldIdempotencyKey: {"from-form"}}
	req = httptest.NewRequest(http.MethodPost, "/newsletters", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if m := decode(t, w); w.Code != 200 || m["key"] != "from-form" {
		t.Fatalf("form: %d %v", w.Code, m)
	}

	// multipart form
	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField(FieldIdempotencyKey, "from-multipart")
	_ = mw.Close()
	req = httptest.NewRequest(http.MethodPost, "/newsletters", strings.NewReader(buf.String()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if m := decode(t, w); w.Code != 200 || m["key"] != "from-multipart" {
		t.Fatalf("multipart: %d %v", w.Code, m)
	}

	// JSON body; the handler can still bind it
	req = httptest.NewRequest(http.MethodPost, "/newsletters", strings.NewReader(`{"title":"Issue 1","idempotency_key":"from-json"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if m := decode(t, w); w.Code != 200 || m["key"] != "from-json" || m["title"] != "Issue 1" {
		t.Fatalf("json: %d %v", w.Code, m)
	}
}

func TestIdempotencyKey_Rejections(t *testing.T) {
	r := idemRouter(nil)
	cases := []struct {
		name, ctype, body, header string
	}{
		{"no key at all", "", "", ""},
		{"empty form", "application/x-www-form-urlencoded", "title=x", ""},
		{"bad characters", "", "", "has spaces"},
		{"too long", "", "", strings.Repeat("k", domain.MaxIdempotencyKeyLen+1)},
		{"json without key", "application/json", `{"title":"x"}`, ""},
		{"broken json", "application/json", `{"title":`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req *http.Request
			if tc.body == "" {
				req = httptest.NewRequest(http.MethodPost, "/newsletters", nil)
			} else {
				req = httptest.NewRequest(http.MethodPost, "/newsletters", strings.NewReader(tc.body))
			}
			if tc.ctype != "" {
				req.Header.Set("Content-Type", tc.ctype)
			}
			if tc.header != "" {
				req.Header.Set(HeaderIdempotencyKey, tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d; want 400", w.Code)
			}
			if m := decode(t, w); m["code"] != "bad_idempotency_key" {
				t.Fatalf("body = %v", m)
			}
		})
	}
}

func TestIdempotencyKey_LookupMarksReplay(t *testing.T) {
	var seen []seenKey
	r := idemRouter(func(_ context.Context, userID string, key domain.IdempotencyKey) (bool, error) {
		seen = append(seen, seenKey{userID, key})
		return key == "done", nil
	})

	for _, tc := range []struct {
		key    string
		replay bool
	}{{"fresh", false}, {"done", true}} {
		req := httptest.NewRequest(http.MethodPost, "/newsletters", nil)
		req.Header.Set(HeaderIdempotencyKey, tc.key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		m := decode(t, w)
		if m["replay"] != tc.replay || m["bypass"] != tc.replay {
			t.Fatalf("key %q: %v", tc.key, m)
		}
	}
	if len(seen) != 2 || seen[0].userID != "u1" {
		t.Fatalf("lookup calls = %+v", seen)
	}
}

func TestGetIdempotencyKey_Absent(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if k, ok := GetIdempotencyKey(c); ok || k != "" {
		t.Fatalf("expected no key")
	}
	if IsReplay(c) {
		t.Fatalf("expected no replay")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("non-bool replay flag must read as false")
	}
}
