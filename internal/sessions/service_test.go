package sessions

import (
	"context"
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	svc := NewService(NewMemoryRepository(), time.Hour)
	ctx := context.Background()

	id, err := svc.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a session id")
	}

	sess, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess == nil || sess.UserID != "user-1" {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestGetUnknownAndEmpty(t *testing.T) {
	svc := NewService(NewMemoryRepository(), time.Hour)
	ctx := context.Background()

	if sess, err := svc.Get(ctx, "nope"); err != nil || sess != nil {
		t.Fatalf("unknown id: got %+v, %v", sess, err)
	}
	if sess, err := svc.Get(ctx, ""); err != nil || sess != nil {
		t.Fatalf("empty id: got %+v, %v", sess, err)
	}
}

func TestLazyExpiry(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, time.Hour)
	ctx := context.Background()

	expired := &Session{ID: "old", UserID: "user-1", ExpiresAt: time.Now().UTC().Add(-time.Minute)}
	if err := repo.Create(ctx, expired); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sess, err := svc.Get(ctx, "old")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess != nil {
		t.Fatalf("expired session must read as missing")
	}
	// the lookup itself must have deleted the record
	if raw, _ := repo.GetByID(ctx, "old"); raw != nil {
		t.Fatalf("expired session must be deleted on sight")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	svc := NewService(NewMemoryRepository(), time.Hour)
	ctx := context.Background()

	id, _ := svc.Create(ctx, "user-1")
	if err := svc.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, id); err != nil {
		t.Fatalf("second delete must not error: %v", err)
	}
	if err := svc.Delete(ctx, ""); err != nil {
		t.Fatalf("empty id delete must not error: %v", err)
	}
}

func TestDeleteForUser(t *testing.T) {
	svc := NewService(NewMemoryRepository(), time.Hour)
	ctx := context.Background()

	a, _ := svc.Create(ctx, "user-1")
	b, _ := svc.Create(ctx, "user-1")
	c, _ := svc.Create(ctx, "user-2")

	n, err := svc.DeleteForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("delete for user: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	for _, id := range []string{a, b} {
		if sess, _ := svc.Get(ctx, id); sess != nil {
			t.Fatalf("session %s should be gone", id)
		}
	}
	if sess, _ := svc.Get(ctx, c); sess == nil {
		t.Fatalf("other user's session must survive")
	}
}
