// Package storage defines the persistence contract for game saves and
// story documents. The serialized shape is fixed here; the backing
// medium is an implementation detail behind the Storage interface.
package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fableforge/adventure-engine/pkg/state"
	"github.com/fableforge/adventure-engine/pkg/story"
)

// SchemaVersion is the current save record version. Loads refuse
// records written by a newer runtime.
const SchemaVersion = 1

// SavedGame is the flat, versioned record persisted for one save slot.
// History is truncated to the state package's replay window.
type SavedGame struct {
	SchemaVersion int                  `json:"schema_version"`
	StoryID       string               `json:"story_id"`
	CurrentScene  string               `json:"current_scene"`
	Inventory     []string             `json:"inventory"`
	Flags         []string             `json:"flags"`
	TurnCount     int                  `json:"turn_count"`
	Status        state.Status         `json:"status"`
	History       []state.HistoryEntry `json:"history"`
	Removed       map[string][]string  `json:"removed,omitempty"`
	Added         map[string][]string  `json:"added,omitempty"`
	FiredEvents   []string             `json:"fired_events,omitempty"`
	SolvedPuzzles []string             `json:"solved_puzzles,omitempty"`
	SavedAt       time.Time            `json:"saved_at"`
}

// Storage is the unified persistence interface: game saves in a
// key-value backend, story documents from a data directory.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Save slot operations
	SaveGame(ctx context.Context, storyID, slot string, gs *state.GameState) error
	LoadGame(ctx context.Context, g *story.ContentGraph, storyID, slot string) (*state.GameState, error)
	DeleteGame(ctx context.Context, storyID, slot string) error
	ListSlots(ctx context.Context, storyID string) ([]string, error)

	// Story document operations
	ListStories(ctx context.Context) ([]string, error)
	GetStory(ctx context.Context, name string) (*story.ContentGraph, error)
}

// SaveErrorKind classifies save/load failures.
type SaveErrorKind string

const (
	// VersionMismatch means the record was written by a newer schema.
	VersionMismatch SaveErrorKind = "version_mismatch"
	// UnknownScene means the saved scene no longer exists in the graph.
	UnknownScene SaveErrorKind = "unknown_scene"
	// UnknownItem means a saved item id no longer exists in the graph.
	UnknownItem SaveErrorKind = "unknown_item"
	// NotFound means the slot does not exist.
	NotFound SaveErrorKind = "not_found"
)

// SaveError is fatal to the save or load call that produced it, but
// never corrupts the in-memory session.
type SaveError struct {
	Kind   SaveErrorKind
	Detail string
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save store (%s): %s", e.Kind, e.Detail)
}

// Snapshot converts a live game state into its persisted shape.
// Flags and the fired/solved sets become sorted slices so identical
// states always serialize identically.
func Snapshot(gs *state.GameState) *SavedGame {
	sg := &SavedGame{
		SchemaVersion: SchemaVersion,
		StoryID:       gs.StoryID,
		CurrentScene:  gs.CurrentScene,
		Inventory:     append([]string(nil), gs.Inventory...),
		Flags:         sortedKeys(gs.Flags),
		TurnCount:     gs.TurnCount,
		Status:        gs.Status,
		FiredEvents:   sortedKeys(gs.FiredEvents),
		SolvedPuzzles: sortedKeys(gs.SolvedPuzzles),
		SavedAt:       time.Now().UTC(),
	}
	history := gs.History
	if len(history) > state.HistoryLimit {
		history = history[len(history)-state.HistoryLimit:]
	}
	sg.History = append([]state.HistoryEntry(nil), history...)

	if gs.Overlay != nil {
		sg.Removed = copyOverlayMap(gs.Overlay.Removed)
		sg.Added = copyOverlayMap(gs.Overlay.Added)
	}
	return sg
}

// Restore rebuilds a game state from a saved record, checking the
// record against the currently loaded graph. Ids that no longer exist
// mean the story content changed between save and load; that is fatal
// to the load, never silently repaired.
func Restore(sg *SavedGame, g *story.ContentGraph) (*state.GameState, error) {
	if sg.SchemaVersion > SchemaVersion {
		return nil, &SaveError{Kind: VersionMismatch,
			Detail: fmt.Sprintf("record schema v%d is newer than supported v%d", sg.SchemaVersion, SchemaVersion)}
	}
	if g.Scene(sg.CurrentScene) == nil {
		return nil, &SaveError{Kind: UnknownScene,
			Detail: fmt.Sprintf("saved scene %q is not in the story", sg.CurrentScene)}
	}
	for _, itemID := range sg.Inventory {
		if g.Item(itemID) == nil {
			return nil, &SaveError{Kind: UnknownItem,
				Detail: fmt.Sprintf("saved inventory item %q is not in the story", itemID)}
		}
	}
	for _, m := range []map[string][]string{sg.Removed, sg.Added} {
		for sceneID, items := range m {
			if g.Scene(sceneID) == nil {
				return nil, &SaveError{Kind: UnknownScene,
					Detail: fmt.Sprintf("saved overlay scene %q is not in the story", sceneID)}
			}
			for _, itemID := range items {
				if g.Item(itemID) == nil {
					return nil, &SaveError{Kind: UnknownItem,
						Detail: fmt.Sprintf("saved overlay item %q is not in the story", itemID)}
				}
			}
		}
	}

	gs := state.NewGameState(g)
	gs.StoryID = sg.StoryID
	gs.CurrentScene = sg.CurrentScene
	gs.Inventory = append([]string(nil), sg.Inventory...)
	for _, flag := range sg.Flags {
		gs.Flags[flag] = true
	}
	gs.TurnCount = sg.TurnCount
	gs.Status = sg.Status
	gs.History = append([]state.HistoryEntry(nil), sg.History...)
	gs.Overlay.Removed = copyOverlayMap(sg.Removed)
	gs.Overlay.Added = copyOverlayMap(sg.Added)
	if gs.Overlay.Removed == nil {
		gs.Overlay.Removed = make(map[string][]string)
	}
	if gs.Overlay.Added == nil {
		gs.Overlay.Added = make(map[string][]string)
	}
	for _, id := range sg.FiredEvents {
		gs.FiredEvents[id] = true
	}
	for _, id := range sg.SolvedPuzzles {
		gs.SolvedPuzzles[id] = true
	}
	return gs, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyOverlayMap(m map[string][]string) map[string][]string {
	if m == nil {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}
