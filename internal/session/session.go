// Package session owns live play sessions: one exclusively-held
// GameState per session id, layered over a shared, validated content
// graph. The registry serializes turns per session so callers never
// need their own locking around Apply.
package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/fableforge/adventure-engine/pkg/engine"
	"github.com/fableforge/adventure-engine/pkg/parser"
	"github.com/fableforge/adventure-engine/pkg/state"
	"github.com/fableforge/adventure-engine/pkg/story"
)

// Session binds one game state to the graph it plays against.
type Session struct {
	ID      uuid.UUID
	StoryID string
	Graph   *story.ContentGraph
	State   *state.GameState

	mu sync.Mutex
}

// Parse resolves raw player text against the session's current view of
// the world. Parse errors are recoverable; the caller re-prompts.
func (s *Session) Parse(raw string) (parser.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return parser.Parse(raw, engine.BuildContext(s.Graph, s.State))
}

// Apply runs one turn. Exactly one turn runs at a time per session; the
// graph is read-only throughout. Engine sentinels (pass-through verbs,
// terminal session) surface to the caller unchanged.
func (s *Session) Apply(act parser.Action) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return engine.Apply(s.Graph, s.State, act)
}

// Turn is Parse followed by Apply as one locked unit.
func (s *Session) Turn(raw string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	act, err := parser.Parse(raw, engine.BuildContext(s.Graph, s.State))
	if err != nil {
		return "", err
	}
	return engine.Apply(s.Graph, s.State, act)
}

// Replace swaps in a restored game state, e.g. after a load. The swap
// happens under the session lock so an in-flight turn completes first.
func (s *Session) Replace(gs *state.GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = gs
}

// Registry tracks live sessions by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	logger   *slog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		logger:   logger,
	}
}

// Create starts a new session for a validated graph at its start scene.
func (r *Registry) Create(storyID string, g *story.ContentGraph) *Session {
	s := &Session{
		ID:      uuid.New(),
		StoryID: storyID,
		Graph:   g,
		State:   state.NewGameState(g),
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Info("session created", "session_id", s.ID, "story", storyID)
	return s
}

// Get returns the session for id.
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete removes a session. The caller decides whether to save first.
func (r *Registry) Delete(id uuid.UUID) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	r.logger.Info("session deleted", "session_id", id)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
