package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/fsutil"
)

// Persister loads and saves whole caches by name.
type Persister interface {
	Load(ctx context.Context, name string) (map[string][]byte, error)
	Save(ctx context.Context, name string, entries map[string][]byte) error
	Close() error
}

// Backend names accepted by OpenPersister.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// PersisterConfig selects and configures a persister.
type PersisterConfig struct {
	Backend  string
	Dir      string
	RedisURL string
}

// OpenPersister builds the persister named by cfg.Backend. An empty backend
// means file.
func OpenPersister(ctx context.Context, cfg PersisterConfig) (Persister, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return NewFilePersister(cfg.Dir), nil
	case BackendRedis:
		return NewRedisPersister(ctx, cfg.RedisURL)
	default:
		return nil, amanerrors.ConfigError(fmt.Sprintf("unknown cache backend %q", cfg.Backend), nil).
			WithSuggestion("use cache.backend: file or redis")
	}
}

// FilePersister stores each cache as <dir>/<name>.json.
type FilePersister struct {
	dir string
}

// NewFilePersister creates a persister rooted at dir.
func NewFilePersister(dir string) *FilePersister {
	return &FilePersister{dir: dir}
}

func (p *FilePersister) path(name string) string {
	return filepath.Join(p.dir, name+".json")
}

// Load reads a cache file. A missing file is an empty cache.
func (p *FilePersister) Load(_ context.Context, name string) (map[string][]byte, error) {
	data, err := os.ReadFile(p.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]byte{}, nil
	}
	if err != nil {
		return nil, amanerrors.Wrap(amanerrors.ErrCodeFilePermission, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, amanerrors.New(amanerrors.ErrCodeInternal, "cache file "+p.path(name)+" is corrupt", err).
			WithSuggestion("delete the file; it is rebuilt on the next query")
	}

	out := make(map[string][]byte, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out, nil
}

// Save atomically replaces a cache file.
func (p *FilePersister) Save(_ context.Context, name string, entries map[string][]byte) error {
	raw := make(map[string]json.RawMessage, len(entries))
	for k, v := range entries {
		raw[k] = v
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal %s cache: %w", name, err)
	}
	if err := fsutil.WriteFileAtomic(p.path(name), data, 0o644); err != nil {
		return amanerrors.Wrap(amanerrors.ErrCodeFilePermission, err)
	}
	return nil
}

// Close is a no-op.
func (p *FilePersister) Close() error { return nil }

// RedisKeyPrefix prefixes every cache hash key.
const RedisKeyPrefix = "amanrag:cache:"

// RedisPersister stores each cache as a Redis hash.
type RedisPersister struct {
	client *redis.Client
}

// NewRedisPersister connects to url (redis://...) and pings it.
func NewRedisPersister(ctx context.Context, url string) (*RedisPersister, error) {
	if url == "" {
		return nil, amanerrors.ConfigError("cache.redis_url is required for the redis cache backend", nil)
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, amanerrors.ConfigError("invalid cache.redis_url", err)
	}
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 8 * time.Millisecond
	opts.MaxRetryBackoff = 512 * time.Millisecond
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	retry := amanerrors.RetryConfig{MaxRetries: 2, InitialDelay: time.Second, MaxDelay: 4 * time.Second}
	if err := amanerrors.Retry(ctx, retry, func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		_ = client.Close()
		return nil, amanerrors.New(amanerrors.ErrCodeServiceUnavailable, "redis cache unreachable", err).
			WithDetail("stage", "cache")
	}
	return NewRedisPersisterFromClient(client), nil
}

// NewRedisPersisterFromClient wraps an existing client.
func NewRedisPersisterFromClient(client *redis.Client) *RedisPersister {
	return &RedisPersister{client: client}
}

// RedisKey returns the hash key for a cache name.
func RedisKey(name string) string {
	return RedisKeyPrefix + name
}

// Load reads the whole hash. A missing key is an empty cache.
func (p *RedisPersister) Load(ctx context.Context, name string) (map[string][]byte, error) {
	fields, err := p.client.HGetAll(ctx, RedisKey(name)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, amanerrors.TransientError("redis HGETALL "+RedisKey(name), err)
	}
	out := make(map[string][]byte, len(fields))
	for k, v := range fields {
		out[k] = []byte(v)
	}
	return out, nil
}

// Save replaces the hash in one transaction.
func (p *RedisPersister) Save(ctx context.Context, name string, entries map[string][]byte) error {
	key := RedisKey(name)
	values := make(map[string]any, len(entries))
	for k, v := range entries {
		values[k] = v
	}

	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.HSet(ctx, key, values)
		}
		return nil
	})
	if err != nil {
		return amanerrors.TransientError("redis save "+key, err)
	}
	return nil
}

// Close closes the client.
func (p *RedisPersister) Close() error {
	return p.client.Close()
}
