package state

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func newMemoryStore(t *testing.T) *VersionedStore {
	t.Helper()
	store, err := NewStore(NewMemoryBackend())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()

	_, err := newMemoryStore(t).Get(context.Background(), "nope")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get() error = %v, want ErrSessionNotFound", err)
	}
}

func TestStoreCreateOrGetIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryStore(t)

	first, err := store.CreateOrGet(ctx, "s-1", "C001", ChannelMobile)
	if err != nil {
		t.Fatalf("CreateOrGet() error = %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("Version = %d, want 1", first.Version)
	}

	again, err := store.CreateOrGet(ctx, "s-1", "C999", ChannelChat)
	if err != nil {
		t.Fatalf("CreateOrGet() error = %v", err)
	}
	if again.CustomerID != "C001" || again.Channel != ChannelMobile {
		t.Fatalf("CreateOrGet() = %+v, want original record", again)
	}
}

func TestStoreCommitIncrementsVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryStore(t)
	snap, err := store.CreateOrGet(ctx, "s-1", "C001", ChannelMobile)
	if err != nil {
		t.Fatalf("CreateOrGet() error = %v", err)
	}

	next, err := store.Commit(ctx, "s-1", snap.Version, MutationSet{LikeProducts: []string{"VH001"}})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if next.Version != snap.Version+1 {
		t.Fatalf("Version = %d, want %d", next.Version, snap.Version+1)
	}

	stored, _ := store.Get(ctx, "s-1")
	if !stored.Likes("VH001") {
		t.Fatalf("stored session = %+v", stored)
	}
}

func TestStoreCommitRejectsStaleVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryStore(t)
	snap, _ := store.CreateOrGet(ctx, "s-1", "C001", ChannelMobile)

	if _, err := store.Commit(ctx, "s-1", snap.Version, MutationSet{Location: Ptr("Mumbai")}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	_, err := store.Commit(ctx, "s-1", snap.Version, MutationSet{Location: Ptr("Pune")})
	var conflict *SessionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Commit() error = %v, want SessionConflictError", err)
	}
	if conflict.Expected != 1 || conflict.Actual != 2 {
		t.Fatalf("conflict = %+v", conflict)
	}
	if !errors.Is(err, ErrSessionConflict) {
		t.Fatal("errors.Is(err, ErrSessionConflict) = false")
	}

	stored, _ := store.Get(ctx, "s-1")
	if stored.Location != "Mumbai" {
		t.Fatalf("Location = %q, stale commit must not apply", stored.Location)
	}
}

func TestStoreConcurrentCommitsSerialize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryStore(t)
	snap, _ := store.CreateOrGet(ctx, "s-1", "C001", ChannelMobile)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Commit(ctx, "s-1", snap.Version, MutationSet{Location: Ptr("x")})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("succeeded = %d, want exactly 1", succeeded)
	}
}

func TestStoreCommitValidatesResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryStore(t)
	snap, _ := store.CreateOrGet(ctx, "s-1", "C001", ChannelMobile)

	bad := MutationSet{}.SetCart([]CartItem{{ProductID: "VH001", Quantity: -2}})
	if _, err := store.Commit(ctx, "s-1", snap.Version, bad); !errors.Is(err, ErrInvalidCart) {
		t.Fatalf("Commit() error = %v, want ErrInvalidCart", err)
	}
}
