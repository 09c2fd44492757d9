// Package state holds the mutable, per-session record of player
// progress against a shared content graph. Each GameState is owned by
// exactly one session; the graph itself is never written to.
package state

import (
	"time"

	"github.com/google/uuid"

	"github.com/fableforge/adventure-engine/pkg/story"
)

// Status is the lifecycle of a game session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusWon        Status = "won"
	StatusLost       Status = "lost"
)

// HistoryLimit caps the replay log. Oldest entries are dropped first.
const HistoryLimit = 50

// HistoryEntry is one (command, outcome) pair in the replay log.
type HistoryEntry struct {
	Command string `json:"command" yaml:"command"`
	Outcome string `json:"outcome" yaml:"outcome"`
}

// GameState is the current state of one play session.
type GameState struct {
	ID            uuid.UUID       `json:"id"`
	StoryID       string          `json:"story_id,omitempty"`
	CurrentScene  string          `json:"current_scene"`
	Inventory     []string        `json:"inventory,omitempty"`
	Flags         map[string]bool `json:"flags,omitempty"`
	TurnCount     int             `json:"turn_count"`
	Status        Status          `json:"status"`
	History       []HistoryEntry  `json:"history,omitempty"`
	Overlay       *Overlay        `json:"overlay,omitempty"`
	FiredEvents   map[string]bool `json:"fired_events,omitempty"`
	SolvedPuzzles map[string]bool `json:"solved_puzzles,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewGameState starts a fresh session at the graph's start scene.
func NewGameState(g *story.ContentGraph) *GameState {
	now := time.Now().UTC()
	return &GameState{
		ID:            uuid.New(),
		StoryID:       g.Title,
		CurrentScene:  g.StartScene,
		Flags:         make(map[string]bool),
		Status:        StatusInProgress,
		Overlay:       NewOverlay(),
		FiredEvents:   make(map[string]bool),
		SolvedPuzzles: make(map[string]bool),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Has reports whether the item id is in the inventory.
func (gs *GameState) Has(itemID string) bool {
	for _, id := range gs.Inventory {
		if id == itemID {
			return true
		}
	}
	return false
}

// AddItem appends an item to the inventory if not already held.
func (gs *GameState) AddItem(itemID string) {
	if !gs.Has(itemID) {
		gs.Inventory = append(gs.Inventory, itemID)
	}
}

// RemoveItem drops an item from the inventory, preserving order.
func (gs *GameState) RemoveItem(itemID string) {
	for i, id := range gs.Inventory {
		if id == itemID {
			gs.Inventory = append(gs.Inventory[:i], gs.Inventory[i+1:]...)
			return
		}
	}
}

// Satisfies reports whether the state meets a content condition:
// all required items held and all required flags set.
func (gs *GameState) Satisfies(c story.Condition) bool {
	for _, itemID := range c.Items {
		if !gs.Has(itemID) {
			return false
		}
	}
	for _, flag := range c.Flags {
		if !gs.Flags[flag] {
			return false
		}
	}
	return true
}

// AppendHistory records one turn, dropping the oldest entry past the cap.
func (gs *GameState) AppendHistory(command, outcome string) {
	gs.History = append(gs.History, HistoryEntry{Command: command, Outcome: outcome})
	if len(gs.History) > HistoryLimit {
		gs.History = gs.History[len(gs.History)-HistoryLimit:]
	}
}
