package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

func newAuthDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username, password string) string {
	t.Helper()
	hash, err := ComputePasswordHash(password, DefaultParams)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := repo.CreateUser(context.Background(), db, username, hash)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func TestValidateCredentials(t *testing.T) {
	db := newAuthDB(t)
	id := seedUser(t, db, "admin", "everythinghastostartsomewhere")
	v := NewVerifier(db, NewHashPool(2))
	ctx := context.Background()

	got, err := v.ValidateCredentials(ctx, Credentials{Username: "admin", Password: "everythinghastostartsomewhere"})
	if err != nil || got != id {
		t.Fatalf("valid credentials = %q, %v; want %q", got, err, id)
	}

	for _, c := range []Credentials{
		{Username: "admin", Password: "wrong"},
		{Username: "nobody", Password: "everythinghastostartsomewhere"},
		{Username: "", Password: ""},
	} {
		_, err := v.ValidateCredentials(ctx, c)
		if !IsInvalidCredentials(err) {
			t.Fatalf("%+v: err = %v; want invalid credentials", c, err)
		}
	}
}

func TestValidateCredentials_MalformedStoredHashIsUnexpected(t *testing.T) {
	db := newAuthDB(t)
	if _, err := repo.CreateUser(context.Background(), db, "broken", "not-a-hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	v := NewVerifier(db, nil)
	_, err := v.ValidateCredentials(context.Background(), Credentials{Username: "broken", Password: "x"})
	var ae *AuthError
	if !errors.As(err, &ae) || ae.Kind != KindUnexpected || !errors.Is(err, ErrMalformedHash) {
		t.Fatalf("err = %v; want unexpected wrapping ErrMalformedHash", err)
	}
}

func TestValidateCredentials_StorageFailureIsUnexpected(t *testing.T) {
	db := newAuthDB(t)
	if err := db.Migrator().DropTable("users"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	v := NewVerifier(db, nil)
	_, err := v.ValidateCredentials(context.Background(), Credentials{Username: "admin", Password: "x"})
	var ae *AuthError
	if !errors.As(err, &ae) || ae.Kind != KindUnexpected {
		t.Fatalf("err = %v; want KindUnexpected", err)
	}
}

// Unknown usernames must cost about as much as wrong passwords.
func TestValidateCredentials_UnknownUserTakesComparableTime(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	db := newAuthDB(t)
	seedUser(t, db, "admin", "everythinghastostartsomewhere")
	v := NewVerifier(db, NewHashPool(1))
	ctx := context.Background()

	median := func(c Credentials) time.Duration {
		const runs = 7
		ds := make([]time.Duration, 0, runs)
		for i := 0; i < runs; i++ {
			start := time.Now()
			_, _ = v.ValidateCredentials(ctx, c)
			ds = append(ds, time.Since(start))
		}
		sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
		return ds[runs/2]
	}
	unknown := median(Credentials{Username: "ghost", Password: "whatever"})
	wrong := median(Credentials{Username: "admin", Password: "whatever"})

	ratio := float64(unknown) / float64(wrong)
	if ratio < 0.33 || ratio > 3 {
		t.Fatalf("unknown=%v wrong=%v ratio=%.2f; want comparable", unknown, wrong, ratio)
	}
}

func TestChangePassword(t *testing.T) {
	db := newAuthDB(t)
	id := seedUser(t, db, "admin", "everythinghastostartsomewhere")
	v := NewVerifier(db, NewHashPool(1))
	ctx := context.Background()

	if err := v.ChangePassword(ctx, id, "short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("short password err = %v; want ErrPasswordTooShort", err)
	}
	if err := v.ChangePassword(ctx, id, "a brand new passphrase"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := v.ValidateCredentials(ctx, Credentials{Username: "admin", Password: "everythinghastostartsomewhere"}); !IsInvalidCredentials(err) {
		t.Fatalf("old password must stop working, err=%v", err)
	}
	if got, err := v.ValidateCredentials(ctx, Credentials{Username: "admin", Password: "a brand new passphrase"}); err != nil || got != id {
		t.Fatalf("new password = %q, %v", got, err)
	}
	if err := v.ChangePassword(ctx, "missing", "long enough password"); errors.Is(err, ErrPasswordTooShort) || err == nil {
		t.Fatalf("missing user err = %v; want unexpected error", err)
	}
}
