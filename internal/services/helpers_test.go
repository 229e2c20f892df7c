package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type sentEmail struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// fakeEmail records every send. Recipients listed in failFor get an error.
type fakeEmail struct {
	mu      sync.Mutex
	sent    []sentEmail
	failFor map[string]bool
	delay   time.Duration
}

func (f *fakeEmail) Send(ctx context.Context, to domain.SubscriberEmail, subject, html, text string) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[to.String()] {
		return errors.New("provider rejected the message")
	}
	f.sent = append(f.sent, sentEmail{To: to.String(), Subject: subject, HTML: html, Text: text})
	return nil
}

func (f *fakeEmail) Sent() []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEmail(nil), f.sent...)
}

// addSubscriber inserts a subscriber in the given status.
func addSubscriber(t *testing.T, db *gorm.DB, address, status string) {
	t.Helper()
	err := db.Create(&domain.Subscriber{
		ID:           uuid.NewString(),
		Email:        address,
		Name:         "n",
		SubscribedAt: time.Now().UTC(),
		Status:       status,
	}).Error
	if err != nil {
		t.Fatalf("insert subscriber: %v", err)
	}
}
