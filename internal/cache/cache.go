// Package cache maps (target, provider) pairs to previously generated
// artifacts so repeated requests never hit a generation backend. Caching is
// advisory: every failure on the read or write path degrades to a miss and is
// only logged, never surfaced to the caller.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"vizor/internal/infra"
	"vizor/internal/storage"
)

// Key addresses a cached artifact and its metadata sidecar.
type Key string

// KeyFor derives the deterministic cache key for a (target, provider) pair.
// The digest covers both inputs, so keys differ whenever either input does.
func KeyFor(target, providerName string) Key {
	sum := sha256.Sum256([]byte(target + "\n" + providerName))
	return Key("viz/" + providerName + "/" + hex.EncodeToString(sum[:]))
}

// ArtifactObject is the storage key of the artifact blob.
func (k Key) ArtifactObject() string { return string(k) + ".bin" }

// MetadataObject is the storage key of the metadata sidecar.
func (k Key) MetadataObject() string { return string(k) + ".json" }

// Entry is a finished artifact together with its sidecar metadata.
type Entry struct {
	Artifact    []byte
	MediaType   string
	Description string
	CreatedAt   time.Time
}

type sidecar struct {
	MediaType   string    `json:"media_type"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Cache gates the generation pipeline behind an object store.
type Cache struct {
	store  storage.ObjectStore
	logger infra.Logger
}

// New constructs a Cache backed by the given object store.
func New(store storage.ObjectStore, logger infra.Logger) *Cache {
	return &Cache{store: store, logger: logger}
}

// Lookup resolves a key to an entry. The artifact and sidecar existence
// checks run concurrently; a hit requires both objects to exist and both
// reads to succeed. Anything less is a miss.
func (c *Cache) Lookup(ctx context.Context, key Key) (*Entry, bool) {
	var artifactExists, sidecarExists bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ok, err := c.store.Exists(gctx, key.ArtifactObject())
		artifactExists = ok
		return err
	})
	g.Go(func() error {
		ok, err := c.store.Exists(gctx, key.MetadataObject())
		sidecarExists = ok
		return err
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn().Err(err).Str("key", string(key)).Msg("cache: existence check failed, treating as miss")
		return nil, false
	}
	if !artifactExists || !sidecarExists {
		return nil, false
	}

	artifact, err := c.store.Get(ctx, key.ArtifactObject())
	if err != nil {
		c.logger.Warn().Err(err).Str("key", string(key)).Msg("cache: artifact read failed, treating as miss")
		return nil, false
	}
	raw, err := c.store.Get(ctx, key.MetadataObject())
	if err != nil {
		c.logger.Warn().Err(err).Str("key", string(key)).Msg("cache: sidecar read failed, treating as miss")
		return nil, false
	}
	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		c.logger.Warn().Err(err).Str("key", string(key)).Msg("cache: sidecar decode failed, treating as miss")
		return nil, false
	}
	return &Entry{
		Artifact:    artifact,
		MediaType:   meta.MediaType,
		Description: meta.Description,
		CreatedAt:   meta.CreatedAt,
	}, true
}

// Store persists an entry in the background. It returns immediately and never
// fails the caller: write errors are logged and swallowed. Concurrent writers
// under the same key race harmlessly to a last-writer-wins outcome.
func (c *Cache) Store(ctx context.Context, key Key, entry Entry) {
	// Detach from the request context so a response already on its way out
	// does not abort the write.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	go func() {
		defer cancel()
		meta := sidecar{
			MediaType:   entry.MediaType,
			Description: entry.Description,
			CreatedAt:   entry.CreatedAt,
		}
		if meta.CreatedAt.IsZero() {
			meta.CreatedAt = time.Now().UTC()
		}
		raw, err := json.Marshal(meta)
		if err != nil {
			c.logger.Error().Err(err).Str("key", string(key)).Msg("cache: sidecar encode failed, entry not stored")
			return
		}
		if err := c.store.Put(bg, key.ArtifactObject(), entry.Artifact, entry.MediaType); err != nil {
			c.logger.Warn().Err(err).Str("key", string(key)).Msg("cache: artifact write failed")
			return
		}
		if err := c.store.Put(bg, key.MetadataObject(), raw, "application/json"); err != nil {
			c.logger.Warn().Err(err).Str("key", string(key)).Msg("cache: sidecar write failed")
			return
		}
		c.logger.Debug().Str("key", string(key)).Int("bytes", len(entry.Artifact)).Msg("cache: entry stored")
	}()
}
