package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/auth"
	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
	"github.com/tbourn/go-newsletter-backend/internal/services"
	"github.com/tbourn/go-newsletter-backend/internal/session"
	"github.com/tbourn/go-newsletter-backend/internal/signing"
)

// --- fakes ---

type fakeSubs struct {
	subscribeErr error
	confirmErr   error
	gotName      string
	gotEmail     string
	gotToken     string
}

func (f *fakeSubs) Subscribe(_ context.Context, name, email string) error {
	f.gotName, f.gotEmail = name, email
	return f.subscribeErr
}

func (f *fakeSubs) Confirm(_ context.Context, token string) error {
	f.gotToken = token
	return f.confirmErr
}

type fakeNews struct {
	err      error
	report   services.PublishReport
	gotUser  string
	gotKey   domain.IdempotencyKey
	gotIssue services.NewsletterIssue
}

func (f *fakeNews) Publish(_ context.Context, userID string, key domain.IdempotencyKey, issue services.NewsletterIssue, respond services.ResponseFunc) (services.StoredResponse, bool, error) {
	f.gotUser, f.gotKey, f.gotIssue = userID, key, issue
	if f.err != nil {
		return services.StoredResponse{}, false, f.err
	}
	return respond(f.report), false, nil
}

type fakeAccounts struct {
	username string
	err      error
	got      services.PasswordChange
}

func (f *fakeAccounts) Username(context.Context, string) (string, error) { return f.username, f.err }

func (f *fakeAccounts) ChangePassword(_ context.Context, _ string, req services.PasswordChange) error {
	f.got = req
	return f.err
}

type fakeCreds struct {
	id  string
	err error
}

func (f fakeCreds) ValidateCredentials(context.Context, auth.Credentials) (string, error) {
	return f.id, f.err
}

// --- harness ---

type harness struct {
	r        *gin.Engine
	subs     *fakeSubs
	news     *fakeNews
	accounts *fakeAccounts
	codec    *signing.Codec
	sessions *session.Manager
}

func newHarness(creds CredentialValidator) *harness {
	gin.SetMode(gin.TestMode)
	hs := &harness{
		subs:     &fakeSubs{},
		news:     &fakeNews{},
		accounts: &fakeAccounts{username: "admin"},
		codec:    signing.NewCodec([]byte("k")),
		sessions: &session.Manager{Store: session.NewMemoryStore(), CookieName: "id", TTL: time.Hour},
	}
	if creds == nil {
		creds = fakeCreds{id: "u1"}
	}
	h := New(Deps{
		Subscriptions: hs.subs,
		Newsletters:   hs.news,
		Accounts:      hs.accounts,
		Credentials:   creds,
		Sessions:      hs.sessions,
		Codec:         hs.codec,
	})

	r := gin.New()
	r.SetHTMLTemplate(Templates())
	asUser := func(c *gin.Context) { c.Set("userID", "u1"); c.Next() }

	r.POST("/subscriptions", h.Subscribe)
	r.GET("/subscriptions/confirm", h.ConfirmSubscription)
	r.POST("/newsletters", asUser, middleware.IdempotencyKey(nil), h.PublishNewsletter)
	r.POST("/admin/newsletters", asUser, middleware.IdempotencyKey(nil), h.PublishFromAdmin)
	r.GET("/admin/newsletters", asUser, h.PublishForm)
	r.GET("/login", middleware.Sessions(hs.sessions), h.LoginForm)
	r.POST("/login", middleware.Sessions(hs.sessions), h.Login)
	r.GET("/admin/dashboard", asUser, h.Dashboard)
	r.POST("/admin/password", asUser, h.ChangePassword)
	r.POST("/admin/logout", middleware.Sessions(hs.sessions), h.Logout)
	hs.r = r
	return hs
}

func (hs *harness) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	hs.r.ServeHTTP(w, req)
	return w
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return er.Code
}

// decodeFlash verifies the signed message in a redirect Location.
func decodeFlash(t *testing.T, codec *signing.Codec, location string) signing.Message {
	t.Helper()
	u, err := url.Parse(location)
	if err != nil {
		t.Fatalf("parse Location %q: %v", location, err)
	}
	msg, err := codec.Decode(u.Query())
	if err != nil {
		t.Fatalf("decode flash in %q: %v", location, err)
	}
	return msg
}

// --- subscriptions ---

func TestSubscribe_StatusMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"ok", nil, http.StatusOK, ""},
		{"invalid", &services.SubscribeError{Kind: services.KindValidation, Err: errors.New("bad email")}, http.StatusBadRequest, ErrCodeInvalidSubscriber},
		{"storage", &services.SubscribeError{Kind: services.KindUnexpected, Err: errors.New("db down")}, http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hs := newHarness(nil)
			hs.subs.subscribeErr = tc.err
			w := hs.do(postForm("/subscriptions", url.Values{"name": {"le guin"}, "email": {"ursula@example.com"}}))
			if w.Code != tc.wantCode {
				t.Fatalf("status=%d want %d", w.Code, tc.wantCode)
			}
			if tc.wantErr != "" && errorCode(t, w) != tc.wantErr {
				t.Fatalf("code=%s want %s", errorCode(t, w), tc.wantErr)
			}
			if hs.subs.gotName != "le guin" || hs.subs.gotEmail != "ursula@example.com" {
				t.Fatalf("form not passed through: %+v", hs.subs)
			}
		})
	}
}

func TestConfirmSubscription_StatusMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"ok", nil, http.StatusOK},
		{"missing", &services.ConfirmError{Kind: services.KindValidation, Err: services.ErrEmptyToken}, http.StatusBadRequest},
		{"unknown", &services.ConfirmError{Kind: services.KindUnauthorized, Err: services.ErrUnknownToken}, http.StatusUnauthorized},
		{"storage", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hs := newHarness(nil)
			hs.subs.confirmErr = tc.err
			w := hs.do(httptest.NewRequest(http.MethodGet, "/subscriptions/confirm?subscription_token=abc", nil))
			if w.Code != tc.wantCode {
				t.Fatalf("status=%d want %d", w.Code, tc.wantCode)
			}
			if hs.subs.gotToken != "abc" {
				t.Fatalf("token=%q", hs.subs.gotToken)
			}
		})
	}
}

// --- newsletters ---

func TestPublishNewsletter_JSONNestedContent(t *testing.T) {
	hs := newHarness(nil)
	hs.news.report = services.PublishReport{Recipients: 2, Delivered: 2}

	req := httptest.NewRequest(http.MethodPost, "/newsletters",
		strings.NewReader(`{"title":"T","content":{"html":"<p>h</p>","text":"t"},"idempotency_key":"k-1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := hs.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	want := services.NewsletterIssue{Title: "T", HTMLContent: "<p>h</p>", TextContent: "t"}
	if hs.news.gotIssue != want || hs.news.gotKey != "k-1" || hs.news.gotUser != "u1" {
		t.Fatalf("publish args: user=%q key=%q issue=%+v", hs.news.gotUser, hs.news.gotKey, hs.news.gotIssue)
	}
	var resp PublishResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Status != "published" || resp.Delivered != 2 {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestPublishNewsletter_ErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"invalid", &services.PublishError{Kind: services.KindValidation, Err: services.ErrEmptyTitle}, http.StatusBadRequest, ErrCodeInvalidIssue},
		{"conflict", &services.PublishError{Kind: services.KindConflict, Err: services.ErrPublishInProgress}, http.StatusConflict, ErrCodePublishInProgress},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hs := newHarness(nil)
			hs.news.err = tc.err
			req := postForm("/newsletters", url.Values{"title": {"T"}, "html_content": {"h"}, "text_content": {"t"}})
			req.Header.Set(middleware.HeaderIdempotencyKey, "k")
			w := hs.do(req)
			if w.Code != tc.wantCode || errorCode(t, w) != tc.wantErr {
				t.Fatalf("got %d %s, want %d %s", w.Code, errorCode(t, w), tc.wantCode, tc.wantErr)
			}
		})
	}
}

func TestPublishFromAdmin_Redirects(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantLevel string
		wantText  string
	}{
		{"published", nil, signing.ParamInfo, msgIssuePublished},
		{"incomplete", &services.PublishError{Kind: services.KindValidation, Err: services.ErrEmptyContent}, signing.ParamError, msgIssueIncomplete},
		{"in progress", &services.PublishError{Kind: services.KindConflict, Err: services.ErrPublishInProgress}, signing.ParamError, msgIssueInProgress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hs := newHarness(nil)
			hs.news.err = tc.err
			w := hs.do(postForm("/admin/newsletters", url.Values{
				"title": {"T"}, "html_content": {"h"}, "text_content": {"t"}, "idempotency_key": {"form-1"},
			}))
			if w.Code != http.StatusSeeOther {
				t.Fatalf("status=%d", w.Code)
			}
			loc := w.Header().Get("Location")
			if !strings.HasPrefix(loc, "/admin/newsletters?") {
				t.Fatalf("Location=%q", loc)
			}
			if msg := decodeFlash(t, hs.codec, loc); msg.Level != tc.wantLevel || msg.Text != tc.wantText {
				t.Fatalf("flash=%+v", msg)
			}
		})
	}
}

func TestPublishForm_FreshKeyEachRender(t *testing.T) {
	hs := newHarness(nil)
	a := hs.do(httptest.NewRequest(http.MethodGet, "/admin/newsletters", nil)).Body.String()
	b := hs.do(httptest.NewRequest(http.MethodGet, "/admin/newsletters", nil)).Body.String()
	if !strings.Contains(a, `name="idempotency_key"`) {
		t.Fatalf("form has no key field: %s", a)
	}
	if a == b {
		t.Fatal("two renders produced the same idempotency key")
	}
}

// --- login / admin ---

func TestLogin_InvalidCredentialsRedirectsWithSignedError(t *testing.T) {
	hs := newHarness(fakeCreds{err: &auth.AuthError{Kind: auth.KindInvalidCredentials, Err: errors.New("nope")}})

	w := hs.do(postForm("/login", url.Values{"username": {"admin"}, "password": {"x"}}))
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status=%d", w.Code)
	}
	msg := decodeFlash(t, hs.codec, w.Header().Get("Location"))
	if msg.Level != signing.ParamError || msg.Text != msgAuthFailed {
		t.Fatalf("flash=%+v", msg)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Fatal("failed login must not set a session")
	}

	// the login page renders the verified message once
	page := hs.do(httptest.NewRequest(http.MethodGet, w.Header().Get("Location"), nil))
	if !strings.Contains(page.Body.String(), msgAuthFailed) {
		t.Fatalf("login page missing message: %s", page.Body.String())
	}
	plain := hs.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	if strings.Contains(plain.Body.String(), msgAuthFailed) {
		t.Fatal("message shown without a signed query")
	}
}

func TestLogin_UnexpectedErrorRedirects(t *testing.T) {
	hs := newHarness(fakeCreds{err: errors.New("db down")})
	w := hs.do(postForm("/login", url.Values{"username": {"admin"}, "password": {"x"}}))
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status=%d", w.Code)
	}
	if msg := decodeFlash(t, hs.codec, w.Header().Get("Location")); msg.Text != msgUnexpectedError {
		t.Fatalf("flash=%+v", msg)
	}
}

func TestLogin_SuccessStoresUserInSession(t *testing.T) {
	hs := newHarness(fakeCreds{id: "user-42"})
	w := hs.do(postForm("/login", url.Values{"username": {"admin"}, "password": {"right"}}))
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/admin/dashboard" {
		t.Fatalf("got %d %q", w.Code, w.Header().Get("Location"))
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies=%v", cookies)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	s, err := hs.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if id, ok := s.UserID(); !ok || id != "user-42" {
		t.Fatalf("session user=%q ok=%v", id, ok)
	}
}

func TestDashboard_ShowsUsername(t *testing.T) {
	hs := newHarness(nil)
	hs.accounts.username = "ursula"
	w := hs.do(httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ursula") {
		t.Fatalf("dashboard=%d %s", w.Code, w.Body.String())
	}

	hs.accounts.err = errors.New("db down")
	if w = hs.do(httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)); w.Code != http.StatusInternalServerError {
		t.Fatalf("dashboard on error=%d", w.Code)
	}
}

func TestChangePassword_Messages(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantLevel string
		wantText  string
	}{
		{"changed", nil, signing.ParamInfo, msgPasswordChanged},
		{"mismatch", &services.PasswordError{Kind: services.KindValidation, Err: services.ErrPasswordMismatch}, signing.ParamError, msgPasswordMismatch},
		{"too short", &services.PasswordError{Kind: services.KindValidation, Err: services.ErrPasswordTooShort}, signing.ParamError, msgPasswordTooShort},
		{"wrong current", &services.PasswordError{Kind: services.KindUnauthorized, Err: services.ErrCurrentPasswordWrong}, signing.ParamError, msgPasswordWrong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hs := newHarness(nil)
			hs.accounts.err = tc.err
			w := hs.do(postForm("/admin/password", url.Values{
				"current_password": {"old"}, "new_password": {"n1"}, "new_password_check": {"n2"},
			}))
			if w.Code != http.StatusSeeOther {
				t.Fatalf("status=%d", w.Code)
			}
			if msg := decodeFlash(t, hs.codec, w.Header().Get("Location")); msg.Level != tc.wantLevel || msg.Text != tc.wantText {
				t.Fatalf("flash=%+v", msg)
			}
			want := services.PasswordChange{Current: "old", New: "n1", NewCheck: "n2"}
			if hs.accounts.got != want {
				t.Fatalf("request=%+v", hs.accounts.got)
			}
		})
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	hs := newHarness(nil)
	w := hs.do(httptest.NewRequest(http.MethodPost, "/admin/logout", nil))
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status=%d", w.Code)
	}
	if msg := decodeFlash(t, hs.codec, w.Header().Get("Location")); msg.Text != msgLoggedOut {
		t.Fatalf("flash=%+v", msg)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected an expiring cookie, got %v", cookies)
	}
}

func TestTemplates_Parse(t *testing.T) {
	tpl := Templates()
	for _, name := range []string{"login.html", "dashboard.html", "password.html", "newsletter.html", "messages"} {
		if tpl.Lookup(name) == nil {
			t.Fatalf("template %q missing", name)
		}
	}
}
