package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failGet map[string]bool
	failAll bool
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte), failGet: make(map[string]bool)}
}

func (s *memStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return false, errors.New("store down")
	}
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll || s.failGet[key] {
		return nil, errors.New("store down")
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (s *memStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("store down")
	}
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

func TestKeyForDeterministic(t *testing.T) {
	a := KeyFor("https://example.com", "flux")
	b := KeyFor("https://example.com", "flux")
	if a != b {
		t.Fatalf("same inputs produced different keys: %s vs %s", a, b)
	}
	if KeyFor("https://example.com", "ink") == a {
		t.Fatal("different provider produced identical key")
	}
	if KeyFor("https://example.org", "flux") == a {
		t.Fatal("different target produced identical key")
	}
}

func TestLookupRequiresBothObjects(t *testing.T) {
	store := newMemStore()
	c := New(store, zerolog.Nop())
	key := KeyFor("https://example.com", "flux")

	if _, ok := c.Lookup(context.Background(), key); ok {
		t.Fatal("empty store reported a hit")
	}

	// Artifact alone is a partial write, still a miss.
	_ = store.Put(context.Background(), key.ArtifactObject(), []byte("artifact"), "image/png")
	if _, ok := c.Lookup(context.Background(), key); ok {
		t.Fatal("partial write reported a hit")
	}

	_ = store.Put(context.Background(), key.MetadataObject(), []byte(`{"media_type":"image/png","description":"a scene"}`), "application/json")
	entry, ok := c.Lookup(context.Background(), key)
	if !ok {
		t.Fatal("complete entry reported a miss")
	}
	if string(entry.Artifact) != "artifact" || entry.MediaType != "image/png" || entry.Description != "a scene" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestLookupDegradesToMissOnFailure(t *testing.T) {
	store := newMemStore()
	c := New(store, zerolog.Nop())
	key := KeyFor("https://example.com", "flux")
	_ = store.Put(context.Background(), key.ArtifactObject(), []byte("artifact"), "image/png")
	_ = store.Put(context.Background(), key.MetadataObject(), []byte(`{"media_type":"image/png"}`), "application/json")

	store.mu.Lock()
	store.failGet[key.ArtifactObject()] = true
	store.mu.Unlock()
	if _, ok := c.Lookup(context.Background(), key); ok {
		t.Fatal("failed artifact read reported a hit")
	}

	store.mu.Lock()
	store.failAll = true
	store.mu.Unlock()
	if _, ok := c.Lookup(context.Background(), key); ok {
		t.Fatal("failed existence check reported a hit")
	}
}

func TestStoreWritesInBackground(t *testing.T) {
	store := newMemStore()
	c := New(store, zerolog.Nop())
	key := KeyFor("https://example.com", "flux")

	c.Store(context.Background(), key, Entry{Artifact: []byte("artifact"), MediaType: "image/png"})

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, haveArtifact := store.get(key.ArtifactObject())
		_, haveSidecar := store.get(key.MetadataObject())
		if haveArtifact && haveSidecar {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background write never landed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	entry, ok := c.Lookup(context.Background(), key)
	if !ok {
		t.Fatal("stored entry not found")
	}
	if entry.CreatedAt.IsZero() {
		t.Fatal("stored entry has no creation timestamp")
	}
}

func TestStoreSwallowsFailures(t *testing.T) {
	store := newMemStore()
	store.failAll = true
	c := New(store, zerolog.Nop())

	// Must not panic or block.
	c.Store(context.Background(), KeyFor("https://example.com", "flux"), Entry{Artifact: []byte("x"), MediaType: "image/png"})
	time.Sleep(50 * time.Millisecond)
}

func TestStoreSurvivesCancelledRequestContext(t *testing.T) {
	store := newMemStore()
	c := New(store, zerolog.Nop())
	key := KeyFor("https://example.com", "flux")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Store(ctx, key, Entry{Artifact: []byte("artifact"), MediaType: "image/png"})

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := store.get(key.ArtifactObject()); ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("write aborted by request cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
