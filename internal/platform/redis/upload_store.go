// Package redis stores transient upload payloads in Redis so they survive a
// process restart until the owning task finishes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/curation-engine/internal/task"
)

// UploadKeyPrefix namespaces upload payload keys.
const UploadKeyPrefix = "curation:upload:"

// refPrefix marks upload references issued by this store.
const refPrefix = "redis:"

// Config holds the connection settings for the upload store.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// commands is the subset of *redis.Client used by the store.
type commands interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// UploadStore implements task.UploadStore on Redis. Payloads expire after
// the configured TTL even when a task never releases them.
type UploadStore struct {
	client commands
	ttl    time.Duration
	logger *slog.Logger
}

// Ensure UploadStore implements task.UploadStore interface
var _ task.UploadStore = (*UploadStore)(nil)

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// NewUploadStore creates an upload store on client. A zero ttl keeps
// payloads until they are cleared.
func NewUploadStore(client commands, ttl time.Duration, logger *slog.Logger) *UploadStore {
	return &UploadStore{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "upload_store"),
	}
}

func key(entryID uuid.UUID) string {
	return UploadKeyPrefix + entryID.String()
}

// Put stores data for the configuration entry.
func (s *UploadStore) Put(ctx context.Context, entryID uuid.UUID, data []byte) (string, error) {
	if err := s.client.Set(ctx, key(entryID), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store upload %s: %w", entryID, err)
	}
	s.logger.Debug("upload stored", "entry_id", entryID, "bytes", len(data))
	return refPrefix + entryID.String(), nil
}

// Get returns the payload for the configuration entry.
func (s *UploadStore) Get(ctx context.Context, entryID uuid.UUID) ([]byte, error) {
	data, err := s.client.Get(ctx, key(entryID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", task.ErrUploadNotFound, entryID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load upload %s: %w", entryID, err)
	}
	return data, nil
}

// Clear removes the payload. Clearing an absent payload is not an error.
func (s *UploadStore) Clear(ctx context.Context, entryID uuid.UUID) error {
	if err := s.client.Del(ctx, key(entryID)).Err(); err != nil {
		return fmt.Errorf("failed to clear upload %s: %w", entryID, err)
	}
	return nil
}
