package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// FileStore persists the quota blob as a JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates the parent directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create quota dir: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the stored state; a missing or corrupt file reads as zero.
func (f *FileStore) Load() (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("read quota file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		// Unparseable state is treated as a fresh start rather than a
		// permanent failure.
		return State{}, nil
	}
	return st, nil
}

// Save writes the state atomically enough for a single-process caller.
func (f *FileStore) Save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal quota state: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write quota file: %w", err)
	}
	return nil
}

// RedisStore persists the quota blob under a single Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore uses the given key, defaulting to "quota:state".
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "quota:state"
	}
	return &RedisStore{client: client, key: key}
}

func (r *RedisStore) Load() (State, error) {
	data, err := r.client.Get(context.Background(), r.key).Result()
	if err == redis.Nil {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("redis get: %w", err)
	}

	var st State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return State{}, nil
	}
	return st, nil
}

func (r *RedisStore) Save(st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal quota state: %w", err)
	}
	if err := r.client.Set(context.Background(), r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// MemoryStore keeps state in memory, for tests and dry runs.
type MemoryStore struct {
	st State
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (State, error) { return m.st, nil }
func (m *MemoryStore) Save(st State) error  { m.st = st; return nil }
