package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fableforge/adventure-engine/pkg/state"
	"github.com/fableforge/adventure-engine/pkg/story"
)

// MockStorage is an in-memory Storage implementation for tests.
type MockStorage struct {
	mu        sync.RWMutex
	saves     map[string][]byte // "story/slot" -> serialized SavedGame
	stories   map[string]*story.ContentGraph
	pingError error
}

var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates an empty mock store.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		saves:   make(map[string][]byte),
		stories: make(map[string]*story.ContentGraph),
	}
}

// SetPingError configures ping to fail with the given error.
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// AddStory registers a graph under a name for GetStory/ListStories.
func (m *MockStorage) AddStory(name string, g *story.ContentGraph) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stories[name] = g
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) SaveGame(ctx context.Context, storyID, slot string, gs *state.GameState) error {
	if gs == nil {
		return errors.New("gamestate cannot be nil")
	}
	data, err := json.Marshal(Snapshot(gs))
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves[storyID+"/"+slot] = data
	return nil
}

func (m *MockStorage) LoadGame(ctx context.Context, g *story.ContentGraph, storyID, slot string) (*state.GameState, error) {
	m.mu.RLock()
	data, ok := m.saves[storyID+"/"+slot]
	m.mu.RUnlock()
	if !ok {
		return nil, &SaveError{Kind: NotFound, Detail: fmt.Sprintf("no save in slot %q", slot)}
	}
	var sg SavedGame
	if err := json.Unmarshal(data, &sg); err != nil {
		return nil, err
	}
	return Restore(&sg, g)
}

func (m *MockStorage) DeleteGame(ctx context.Context, storyID, slot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saves, storyID+"/"+slot)
	return nil
}

func (m *MockStorage) ListSlots(ctx context.Context, storyID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var slots []string
	prefix := storyID + "/"
	for key := range m.saves {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			slots = append(slots, key[len(prefix):])
		}
	}
	sort.Strings(slots)
	return slots, nil
}

func (m *MockStorage) ListStories(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.stories))
	for name := range m.stories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MockStorage) GetStory(ctx context.Context, name string) (*story.ContentGraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.stories[name]
	if !ok {
		return nil, fmt.Errorf("story not found: %s", name)
	}
	return g, nil
}
