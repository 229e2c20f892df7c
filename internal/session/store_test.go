package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func exerciseStore(t *testing.T, s Store, expire func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(missing) err = %v; want ErrNotFound", err)
	}
	if err := s.Save(ctx, "a", Data{"user_id": "u1"}, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "a")
	if err != nil || got["user_id"] != "u1" {
		t.Fatalf("Load = %v, %v", got, err)
	}

	// mutating the returned map does not leak into the store
	got["user_id"] = "tampered"
	again, _ := s.Load(ctx, "a")
	if again["user_id"] != "u1" {
		t.Fatalf("store shares map with caller: %v", again)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after delete err = %v", err)
	}

	_ = s.Save(ctx, "b", Data{"user_id": "u2"}, time.Minute)
	expire(2 * time.Minute)
	if _, err := s.Load(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after ttl err = %v; want ErrNotFound", err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	clock := time.Now()
	s.now = func() time.Time { return clock }
	exerciseStore(t, s, func(d time.Duration) { clock = clock.Add(d) })
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := Connect(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	exerciseStore(t, NewRedisStore(rdb), mr.FastForward)

	// keys are namespaced
	_ = NewRedisStore(rdb).Save(context.Background(), "c", Data{}, time.Minute)
	if !mr.Exists("session:c") {
		t.Fatalf("expected key session:c, have %v", mr.Keys())
	}
}

func TestRedisStore_CorruptPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := Connect(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	_ = mr.Set("session:bad", "{not json")
	if _, err := NewRedisStore(rdb).Load(context.Background(), "bad"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("corrupt payload err = %v; want decode error", err)
	}
}

func TestConnect_BadURLAndUnreachable(t *testing.T) {
	if _, err := Connect(context.Background(), "://nope"); err == nil {
		t.Fatalf("expected url parse error")
	}
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := Connect(context.Background(), "redis://"+addr); err == nil {
		t.Fatalf("expected ping error for closed server")
	}
}
