// Package story defines the content model for a playable adventure:
// the typed entities produced by the Loader and checked by the Validator.
// A ContentGraph is immutable once validated and may be shared read-only
// across any number of game sessions.
package story

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Disposition describes an NPC's attitude toward the player.
type Disposition string

const (
	DispositionNeutral  Disposition = "neutral"
	DispositionHostile  Disposition = "hostile"
	DispositionFriendly Disposition = "friendly"
)

// Scene is a single location in the story world.
type Scene struct {
	ID          string   `yaml:"-" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Exits       Exits    `yaml:"exits" json:"exits"`
	Items       []string `yaml:"items" json:"items,omitempty"` // item ids initially present
	NPCs        []string `yaml:"npcs" json:"npcs,omitempty"`
	Events      []string `yaml:"events" json:"events,omitempty"` // events that can trigger here
}

// Exits is an ordered mapping from direction label to target scene id.
// Declaration order from the source document is preserved so that
// exit listings and tie-breaks are deterministic.
type Exits struct {
	Order []string
	To    map[string]string
}

// UnmarshalYAML decodes a mapping node while recording key order.
func (e *Exits) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("exits must be a mapping, got %s", nodeKind(value))
	}
	e.To = make(map[string]string, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var dir, target string
		if err := value.Content[i].Decode(&dir); err != nil {
			return fmt.Errorf("exit direction: %w", err)
		}
		if err := value.Content[i+1].Decode(&target); err != nil {
			return fmt.Errorf("exit %q target: %w", dir, err)
		}
		if _, ok := e.To[dir]; !ok {
			e.Order = append(e.Order, dir)
		}
		e.To[dir] = target
	}
	return nil
}

// Item is an object the player can see, carry or use.
type Item struct {
	ID          string   `yaml:"-" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Aliases     []string `yaml:"aliases" json:"aliases,omitempty"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Takeable    bool     `yaml:"takeable" json:"takeable"`
	UsableWith  []string `yaml:"usable_with" json:"usable_with,omitempty"` // item or npc ids
	Unlocks     string   `yaml:"unlocks" json:"unlocks,omitempty"`         // scene or puzzle id
}

// NPC is a non-player character. An NPC may guard a scene: travel into
// the guarded scene is blocked until Requires is satisfied.
type NPC struct {
	ID          string      `yaml:"-" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Aliases     []string    `yaml:"aliases" json:"aliases,omitempty"`
	Description string      `yaml:"description" json:"description,omitempty"`
	Disposition Disposition `yaml:"disposition" json:"disposition"`
	Dialogue    string      `yaml:"dialogue" json:"dialogue,omitempty"`
	Guards      string      `yaml:"guards" json:"guards,omitempty"` // scene id blocked until Requires is met
	Requires    Condition   `yaml:"requires" json:"requires,omitempty"`
	BlockedLine string      `yaml:"blocked_line" json:"blocked_line,omitempty"` // shown when the guard refuses passage
}

// Condition is a conjunction of requirements over held items and set flags.
// An empty Condition is always satisfied.
type Condition struct {
	Items []string `yaml:"items" json:"items,omitempty"` // all must be in inventory
	Flags []string `yaml:"flags" json:"flags,omitempty"` // all must be set
}

// IsEmpty reports whether the condition places no requirements.
func (c Condition) IsEmpty() bool {
	return len(c.Items) == 0 && len(c.Flags) == 0
}

// Trigger is the boolean predicate that fires an Event. All specified
// clauses must hold.
type Trigger struct {
	Scene    string   `yaml:"scene" json:"scene,omitempty"`         // player must be in this scene
	Items    []string `yaml:"items" json:"items,omitempty"`         // all in inventory
	Flags    []string `yaml:"flags" json:"flags,omitempty"`         // all set
	NotFlags []string `yaml:"not_flags" json:"not_flags,omitempty"` // none set
}

// Outcome is a terminal game result set by an Effect.
type Outcome string

const (
	OutcomeWon  Outcome = "won"
	OutcomeLost Outcome = "lost"
)

// Effect is the state change applied when an Event fires or a Puzzle
// resolves. Zero-value fields are no-ops.
type Effect struct {
	SetFlags   []string `yaml:"set_flags" json:"set_flags,omitempty"`
	ClearFlags []string `yaml:"clear_flags" json:"clear_flags,omitempty"`
	GiveItems  []string `yaml:"give_items" json:"give_items,omitempty"` // added to inventory
	TakeItems  []string `yaml:"take_items" json:"take_items,omitempty"` // removed from inventory
	Reveal     []string `yaml:"reveal" json:"reveal,omitempty"`         // items placed in the current scene
	MoveTo     string   `yaml:"move_to" json:"move_to,omitempty"`       // relocate the player to this scene
	Message    string   `yaml:"message" json:"message,omitempty"`
	End        Outcome  `yaml:"end" json:"end,omitempty"` // "won" or "lost"
}

// Event is a triggered state change attached to one or more scenes.
type Event struct {
	ID   string  `yaml:"-" json:"id"`
	When Trigger `yaml:"when" json:"when"`
	Then Effect  `yaml:"then" json:"then"`
	Once bool    `yaml:"once" json:"once"` // fire at most once per session
}

// Puzzle is an obstacle owned by a scene, attempted with the use verb.
type Puzzle struct {
	ID       string    `yaml:"-" json:"id"`
	Scene    string    `yaml:"scene" json:"scene"`
	Requires Condition `yaml:"requires" json:"requires"`
	Success  Effect    `yaml:"success" json:"success"`
	Failure  *Effect   `yaml:"failure" json:"failure,omitempty"`
	Hint     string    `yaml:"hint" json:"hint,omitempty"`
}

// ContentGraph owns every entity of one loaded story. It is immutable
// after validation; sessions layer their own state over it and never
// write to it. The *Order slices preserve document declaration order,
// which the engine uses as its tie-break policy.
type ContentGraph struct {
	Title      string
	StartScene string

	Scenes     map[string]*Scene
	SceneOrder []string

	Items     map[string]*Item
	ItemOrder []string

	NPCs     map[string]*NPC
	NPCOrder []string

	Events     map[string]*Event
	EventOrder []string

	Puzzles     map[string]*Puzzle
	PuzzleOrder []string

	// Synonyms maps story-specific player words to canonical verbs,
	// merged into the parser's verb table at session setup.
	Synonyms map[string]string
}

// Scene returns the scene for id, or nil.
func (g *ContentGraph) Scene(id string) *Scene {
	return g.Scenes[id]
}

// Item returns the item for id, or nil.
func (g *ContentGraph) Item(id string) *Item {
	return g.Items[id]
}

// NPC returns the NPC for id, or nil.
func (g *ContentGraph) NPC(id string) *NPC {
	return g.NPCs[id]
}

// ScenePuzzles returns the puzzles owned by a scene, in declaration order.
func (g *ContentGraph) ScenePuzzles(sceneID string) []*Puzzle {
	var out []*Puzzle
	for _, id := range g.PuzzleOrder {
		if p := g.Puzzles[id]; p.Scene == sceneID {
			out = append(out, p)
		}
	}
	return out
}

// DisplayName returns the display name for an entity id, falling back
// to the id itself for unknown ids (flags, directions).
func (g *ContentGraph) DisplayName(id string) string {
	if it, ok := g.Items[id]; ok {
		return it.Name
	}
	if n, ok := g.NPCs[id]; ok {
		return n.Name
	}
	if sc, ok := g.Scenes[id]; ok {
		return sc.Title
	}
	return id
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	}
	return "unknown"
}
