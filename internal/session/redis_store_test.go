package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"quadrant/api/internal/store"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rs, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	return rs, mr
}

func TestSaveAndLookup(t *testing.T) {
	rs, _ := setupTestStore(t)
	ctx := context.Background()

	user := store.User{ID: "user-1", DisplayName: "Avery", Email: "avery@example.com", Role: "editor"}
	if err := rs.Save(ctx, "hash-1", user, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := rs.Lookup(ctx, "hash-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.ID != "user-1" || got.Role != "editor" || got.Email != "avery@example.com" {
		t.Errorf("unexpected user: %+v", got)
	}
}

func TestLookupExpired(t *testing.T) {
	rs, mr := setupTestStore(t)
	ctx := context.Background()

	user := store.User{ID: "user-1", DisplayName: "Avery"}
	if err := rs.Save(ctx, "hash-1", user, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mr.FastForward(2 * time.Second)

	if _, err := rs.Lookup(ctx, "hash-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired session, got %v", err)
	}
}

func TestLookupMissing(t *testing.T) {
	rs, _ := setupTestStore(t)
	if _, err := rs.Lookup(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	rs, _ := setupTestStore(t)
	ctx := context.Background()

	user := store.User{ID: "user-1", DisplayName: "Avery"}
	if err := rs.Save(ctx, "hash-1", user, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := rs.Revoke(ctx, "hash-1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := rs.Lookup(ctx, "hash-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after revoke, got %v", err)
	}
	// Revoking again is a no-op.
	if err := rs.Revoke(ctx, "hash-1"); err != nil {
		t.Errorf("second Revoke should be a no-op, got %v", err)
	}
}
