package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-newsletter-backend/internal/auth"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

func newAccountService(t *testing.T) (*AccountService, string) {
	t.Helper()
	db := newServiceDB(t)
	v := auth.NewVerifier(db, auth.NewHashPool(2))
	hash, err := v.HashPassword(context.Background(), "the-old-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u, err := repo.CreateUser(context.Background(), db, "admin", hash)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return &AccountService{DB: db, Verifier: v}, u.ID
}

func TestAccountService_Username(t *testing.T) {
	svc, id := newAccountService(t)
	name, err := svc.Username(context.Background(), id)
	if err != nil || name != "admin" {
		t.Fatalf("Username = %q, %v", name, err)
	}
}

func TestAccountService_ChangePasswordRules(t *testing.T) {
	svc, id := newAccountService(t)
	cases := []struct {
		name string
		req  PasswordChange
		kind Kind
		want error
	}{
		{"mismatch", PasswordChange{Current: "the-old-password", New: "a-new-password-1", NewCheck: "a-new-password-2"}, KindValidation, ErrPasswordMismatch},
		{"too short", PasswordChange{Current: "the-old-password", New: "short", NewCheck: "short"}, KindValidation, ErrPasswordTooShort},
		{"wrong current", PasswordChange{Current: "not-the-password", New: "a-new-password", NewCheck: "a-new-password"}, KindUnauthorized, ErrCurrentPasswordWrong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.ChangePassword(context.Background(), id, tc.req)
			if KindOf(err) != tc.kind || !errors.Is(err, tc.want) {
				t.Fatalf("err = %v; want %v (%v)", err, tc.want, tc.kind)
			}
		})
	}

	// the old password still works after the rejected attempts
	if _, err := svc.Verifier.ValidateCredentials(context.Background(), auth.Credentials{Username: "admin", Password: "the-old-password"}); err != nil {
		t.Fatalf("old password rejected: %v", err)
	}
}

func TestAccountService_ChangePassword(t *testing.T) {
	svc, id := newAccountService(t)
	ctx := context.Background()
	req := PasswordChange{Current: "the-old-password", New: "a-brand-new-password", NewCheck: "a-brand-new-password"}
	if err := svc.ChangePassword(ctx, id, req); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := svc.Verifier.ValidateCredentials(ctx, auth.Credentials{Username: "admin", Password: "the-old-password"}); !auth.IsInvalidCredentials(err) {
		t.Fatalf("old password still accepted: %v", err)
	}
	got, err := svc.Verifier.ValidateCredentials(ctx, auth.Credentials{Username: "admin", Password: "a-brand-new-password"})
	if err != nil || got != id {
		t.Fatalf("new password = %q, %v", got, err)
	}
}

func TestAccountService_UnknownUser(t *testing.T) {
	svc, _ := newAccountService(t)
	req := PasswordChange{Current: "x", New: "a-brand-new-password", NewCheck: "a-brand-new-password"}
	if err := svc.ChangePassword(context.Background(), "missing", req); KindOf(err) != KindUnexpected {
		t.Fatalf("kind = %v; want unexpected", KindOf(err))
	}
}
