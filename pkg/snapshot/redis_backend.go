package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend implements Store using Redis, suitable for a CLI and a
// cluster of swarmstep-node peers sharing one export history.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix is the key prefix for all export keys (default: "swarmstep:export:").
	Prefix string
	// TTL is the export expiry duration (0 = never expire).
	TTL      time.Duration
	PoolSize int
}

// NewRedisBackend creates a new Redis-backed Store, pinging to verify
// connectivity before returning.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Addr == "" {
		return nil, errors.New("snapshot: redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "swarmstep:export:"
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("snapshot: redis ping failed: %w", err)
	}

	return &RedisBackend{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

// NewRedisBackendFromClient builds a RedisBackend around an existing
// client, useful for testing against miniredis.
func NewRedisBackendFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = "swarmstep:export:"
	}
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl}
}

func (b *RedisBackend) docKey(id string) string  { return b.prefix + "doc:" + id }
func (b *RedisBackend) metaKey(id string) string { return b.prefix + "meta:" + id }
func (b *RedisBackend) indexKey() string         { return b.prefix + "index" }

// SaveExport writes doc and meta, replacing any prior entry with the same id.
func (b *RedisBackend) SaveExport(ctx context.Context, meta ExportMetadata, doc *Document) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrStoreClosed
	}
	b.mu.RUnlock()

	docData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("snapshot: marshal document: %w", err)
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("snapshot: marshal metadata: %w", err)
	}

	pipe := b.client.Pipeline()
	pipe.Set(ctx, b.docKey(meta.ID), docData, b.ttl)
	pipe.Set(ctx, b.metaKey(meta.ID), metaData, b.ttl)
	pipe.SAdd(ctx, b.indexKey(), meta.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("snapshot: save export: %w", err)
	}
	return nil
}

// LoadExport retrieves a previously saved export.
func (b *RedisBackend) LoadExport(ctx context.Context, id string) (*Document, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	b.mu.RUnlock()

	data, err := b.client.Get(ctx, b.docKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrExportNotFound
		}
		return nil, fmt.Errorf("snapshot: get export: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInstance, err)
	}
	return &doc, nil
}

// ListExports returns saved export metadata, most recent first.
func (b *RedisBackend) ListExports(ctx context.Context, opts ListOptions) ([]ExportMetadata, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	b.mu.RUnlock()

	ids, err := b.client.SMembers(ctx, b.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("snapshot: list exports: %w", err)
	}

	out := make([]ExportMetadata, 0, len(ids))
	for _, id := range ids {
		data, err := b.client.Get(ctx, b.metaKey(id)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // ttl-expired meta with a stale index entry
			}
			return nil, fmt.Errorf("snapshot: get metadata %s: %w", id, err)
		}
		var meta ExportMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInstance, err)
		}
		out = append(out, meta)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// DeleteExport removes a saved export.
func (b *RedisBackend) DeleteExport(ctx context.Context, id string) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrStoreClosed
	}
	b.mu.RUnlock()

	pipe := b.client.Pipeline()
	pipe.Del(ctx, b.docKey(id))
	pipe.Del(ctx, b.metaKey(id))
	pipe.SRem(ctx, b.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("snapshot: delete export: %w", err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (b *RedisBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}
