package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client, 0)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "viz/flux/abc.bin")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatal("object reported present before write")
	}

	if err := store.Put(ctx, "viz/flux/abc.bin", []byte("artifact"), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err = store.Exists(ctx, "viz/flux/abc.bin")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		t.Fatal("object missing after write")
	}

	data, err := store.Get(ctx, "viz/flux/abc.bin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "artifact" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestRedisStoreOverwrite(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "k", []byte("old"), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "k", []byte("new"), "image/png"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "new" {
		t.Fatalf("overwrite not applied, got %q", data)
	}
}

func TestRedisStoreGetMissing(t *testing.T) {
	store := newTestRedisStore(t)
	if _, err := store.Get(context.Background(), "absent"); err == nil {
		t.Fatal("expected error for missing object")
	}
}
