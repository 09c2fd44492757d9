// Package storage provides the Redis-backed implementation of the
// persistence contract: game saves in Redis, story documents on the
// filesystem under a data directory.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fableforge/adventure-engine/pkg/state"
	"github.com/fableforge/adventure-engine/pkg/storage"
	"github.com/fableforge/adventure-engine/pkg/story"
)

// RedisStore implements storage.Storage using Redis for save slots and
// the filesystem for story documents.
type RedisStore struct {
	client  *redis.Client
	logger  *slog.Logger
	dataDir string
}

var _ storage.Storage = (*RedisStore)(nil)

// NewRedisStore creates a store against the given Redis address. An
// empty dataDir defaults to ./data.
func NewRedisStore(redisURL string, dataDir string, logger *slog.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})
	if dataDir == "" {
		dataDir = "./data"
	}
	return &RedisStore{
		client:  rdb,
		logger:  logger,
		dataDir: dataDir,
	}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	return nil
}

// WaitForConnection retries ping until Redis becomes available, for
// startup ordering in container environments.
func (r *RedisStore) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}
		r.logger.Info("Redis connection established")
		return nil
	}
	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func saveKey(storyID, slot string) string {
	return "save:" + storyID + ":" + slot
}

// SaveGame writes the snapshot record for one slot.
func (r *RedisStore) SaveGame(ctx context.Context, storyID, slot string, gs *state.GameState) error {
	if gs == nil {
		return errors.New("gamestate cannot be nil")
	}
	data, err := json.Marshal(storage.Snapshot(gs))
	if err != nil {
		r.logger.Error("Failed to marshal save record", "story", storyID, "slot", slot, "error", err)
		return fmt.Errorf("failed to marshal save record: %w", err)
	}
	if err := r.client.Set(ctx, saveKey(storyID, slot), data, 0).Err(); err != nil {
		r.logger.Error("Failed to write save record", "story", storyID, "slot", slot, "error", err)
		return fmt.Errorf("failed to write save record: %w", err)
	}
	return nil
}

// LoadGame reads a slot and restores it against the given graph.
func (r *RedisStore) LoadGame(ctx context.Context, g *story.ContentGraph, storyID, slot string) (*state.GameState, error) {
	data, err := r.client.Get(ctx, saveKey(storyID, slot)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &storage.SaveError{Kind: storage.NotFound,
				Detail: fmt.Sprintf("no save in slot %q for story %q", slot, storyID)}
		}
		r.logger.Error("Failed to read save record", "story", storyID, "slot", slot, "error", err)
		return nil, fmt.Errorf("failed to read save record: %w", err)
	}

	var sg storage.SavedGame
	if err := json.Unmarshal(data, &sg); err != nil {
		r.logger.Error("Failed to unmarshal save record", "story", storyID, "slot", slot, "error", err)
		return nil, fmt.Errorf("failed to unmarshal save record: %w", err)
	}
	return storage.Restore(&sg, g)
}

func (r *RedisStore) DeleteGame(ctx context.Context, storyID, slot string) error {
	if err := r.client.Del(ctx, saveKey(storyID, slot)).Err(); err != nil {
		r.logger.Error("Failed to delete save record", "story", storyID, "slot", slot, "error", err)
		return fmt.Errorf("failed to delete save record: %w", err)
	}
	return nil
}

// ListSlots returns the slot names saved for one story, sorted.
func (r *RedisStore) ListSlots(ctx context.Context, storyID string) ([]string, error) {
	prefix := saveKey(storyID, "")
	var slots []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		slots = append(slots, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan save slots: %w", err)
	}
	sort.Strings(slots)
	return slots, nil
}

// Story document operations (filesystem-backed)

// ListStories walks the stories directory and returns document names
// (file names without extension), sorted.
func (r *RedisStore) ListStories(ctx context.Context) ([]string, error) {
	dir := filepath.Join(r.dataDir, "stories")
	var names []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			return nil
		}
		names = append(names, strings.TrimSuffix(filepath.Base(path), ext))
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to walk stories directory", "error", err)
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// GetStory reads and loads a story document by name. The result is not
// yet validated; callers run story.Validate before starting sessions.
func (r *RedisStore) GetStory(ctx context.Context, name string) (*story.ContentGraph, error) {
	// Names are bare file stems. Anything with a separator or dot
	// segment would escape the stories directory.
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("story not found: %s", name)
	}
	dir := filepath.Join(r.dataDir, "stories")
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(dir, name+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read story file: %w", err)
		}
		return story.Load(data)
	}
	return nil, fmt.Errorf("story not found: %s", name)
}
