package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/eventcrew/secretariat/internal/chatplat"
)

func TestUpsertAndCountUsers(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := store.UpsertUser(ctx, chatplat.User{
			ID:       "mid-1",
			Username: "uid-1",
			Email:    "one@example.com",
		}); err != nil {
			t.Fatalf("upsert round %d: %v", i+1, err)
		}
	}
	if err := store.UpsertUser(ctx, chatplat.User{ID: "mid-2", Username: "uid-2"}); err != nil {
		t.Fatalf("upsert second user: %v", err)
	}

	count, err := store.CountUsers(ctx)
	if err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestFindMemberIDPrefersExplicitLink(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.UpsertUser(ctx, chatplat.User{ID: "mid-guess", Username: "uid-1"}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if err := store.PutLink(ctx, "uid-1", "mid-linked"); err != nil {
		t.Fatalf("put link: %v", err)
	}

	memberID, err := store.FindMemberID(ctx, "uid-1")
	if err != nil {
		t.Fatalf("find member id: %v", err)
	}
	if memberID != "mid-linked" {
		t.Fatalf("member id = %q, want mid-linked", memberID)
	}
}

func TestFindMemberIDFallsBackToUsername(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.UpsertUser(ctx, chatplat.User{ID: "mid-1", Username: "uid-1"}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	memberID, err := store.FindMemberID(ctx, "uid-1")
	if err != nil {
		t.Fatalf("find member id: %v", err)
	}
	if memberID != "mid-1" {
		t.Fatalf("member id = %q, want mid-1", memberID)
	}
}

func TestFindMemberIDUnmatched(t *testing.T) {
	store := openTempStore(t)

	memberID, err := store.FindMemberID(context.Background(), "uid-missing")
	if err != nil {
		t.Fatalf("find member id: %v", err)
	}
	if memberID != "" {
		t.Fatalf("member id = %q, want empty", memberID)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatcache.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
