// Package engine applies parsed actions to a game state against a
// validated content graph. Apply is the only writer of GameState; the
// graph is never mutated, so one graph can back many sessions at once.
package engine

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fableforge/adventure-engine/pkg/parser"
	"github.com/fableforge/adventure-engine/pkg/state"
	"github.com/fableforge/adventure-engine/pkg/story"
)

// ErrSessionTerminal is returned when an action is submitted after the
// game has been won or lost. Recover by starting a new session.
var ErrSessionTerminal = errors.New("engine: session has ended")

// ErrPassThrough is returned for save, load and quit: they sit outside
// the narrative state machine and must be handled by the calling shell.
var ErrPassThrough = errors.New("engine: command is handled outside the engine")

var titleCaser = cases.Title(language.English)

// Apply runs one turn: it mutates gs according to the action and the
// graph, and returns the narrative output. Identical inputs always
// produce identical results; competing puzzles and events are resolved
// in declaration order from the content graph, first match only.
func Apply(g *story.ContentGraph, gs *state.GameState, act parser.Action) (string, error) {
	if gs.Status != state.StatusInProgress {
		return "", ErrSessionTerminal
	}

	switch act.Verb {
	case parser.VerbSave, parser.VerbLoad, parser.VerbQuit:
		return "", ErrPassThrough
	}

	sc := g.Scene(gs.CurrentScene)
	if sc == nil {
		return "", fmt.Errorf("engine: current scene %q is not in the graph", gs.CurrentScene)
	}

	var out string
	mutated := false
	switch act.Verb {
	case parser.VerbLook:
		out = DescribeScene(g, gs, sc)
	case parser.VerbExamine:
		out = examine(g, gs, sc, act.Target)
	case parser.VerbInventory:
		out = describeInventory(g, gs)
	case parser.VerbTalk:
		out = talk(g, sc, act.Target)
	case parser.VerbGo:
		blocked := false
		out, blocked = goTo(g, gs, sc, act.Target)
		if blocked {
			// A refused exit is not a transition: no turn, no history.
			return out, nil
		}
		mutated = true
	case parser.VerbTake:
		out = take(g, gs, sc, act.Target)
		mutated = true
	case parser.VerbDrop:
		out = drop(g, gs, sc, act.Target)
		mutated = true
	case parser.VerbUse:
		out = use(g, gs, sc, act.Target, act.Second)
		mutated = true
	default:
		return "", fmt.Errorf("engine: unhandled verb %q", act.Verb)
	}

	if mutated && gs.Status == state.StatusInProgress {
		if msg := fireEvents(g, gs); msg != "" {
			out += "\n\n" + msg
		}
	}

	gs.TurnCount++
	gs.AppendHistory(act.Raw, out)
	return out, nil
}

// BuildContext assembles the parser's view of the world from the
// current scene and inventory. Distant entities are never included.
func BuildContext(g *story.ContentGraph, gs *state.GameState) parser.Context {
	sc := g.Scene(gs.CurrentScene)
	ctx := parser.Context{Synonyms: g.Synonyms}
	if sc == nil {
		return ctx
	}
	ctx.Exits = append(ctx.Exits, sc.Exits.Order...)

	seen := make(map[string]bool)
	addItem := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		if it := g.Item(id); it != nil {
			ctx.Entities = append(ctx.Entities, parser.Entity{ID: it.ID, Name: it.Name, Aliases: it.Aliases})
		}
	}
	for _, id := range gs.Overlay.SceneItems(sc) {
		addItem(id)
	}
	for _, id := range gs.Inventory {
		addItem(id)
	}
	for _, id := range sc.NPCs {
		if npc := g.NPC(id); npc != nil {
			ctx.Entities = append(ctx.Entities, parser.Entity{ID: npc.ID, Name: npc.Name, Aliases: npc.Aliases})
		}
	}
	return ctx
}

// DescribeScene renders the standard look output: title, description,
// visible items, NPCs and exits.
func DescribeScene(g *story.ContentGraph, gs *state.GameState, sc *story.Scene) string {
	var b strings.Builder
	title := sc.Title
	if title == "" {
		title = titleCaser.String(strings.ReplaceAll(sc.ID, "_", " "))
	}
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(sc.Description)

	if items := gs.Overlay.SceneItems(sc); len(items) > 0 {
		names := make([]string, len(items))
		for i, id := range items {
			names[i] = g.DisplayName(id)
		}
		fmt.Fprintf(&b, "\n\nYou see: %s.", strings.Join(names, ", "))
	}
	if len(sc.NPCs) > 0 {
		names := make([]string, 0, len(sc.NPCs))
		for _, id := range sc.NPCs {
			names = append(names, g.DisplayName(id))
		}
		fmt.Fprintf(&b, "\n%s is here.", strings.Join(names, ", "))
	}
	if len(sc.Exits.Order) > 0 {
		fmt.Fprintf(&b, "\nExits: %s.", strings.Join(sc.Exits.Order, ", "))
	}
	return b.String()
}

func describeInventory(g *story.ContentGraph, gs *state.GameState) string {
	if len(gs.Inventory) == 0 {
		return "You aren't carrying anything."
	}
	names := make([]string, len(gs.Inventory))
	for i, id := range gs.Inventory {
		names[i] = g.DisplayName(id)
	}
	return "You are carrying: " + strings.Join(names, ", ") + "."
}

func examine(g *story.ContentGraph, gs *state.GameState, sc *story.Scene, target string) string {
	if target == "" {
		return DescribeScene(g, gs, sc)
	}
	if it := g.Item(target); it != nil {
		if it.Description != "" {
			return it.Description
		}
		return fmt.Sprintf("It's %s. Nothing more to it.", strings.ToLower(it.Name))
	}
	if npc := g.NPC(target); npc != nil {
		if npc.Description != "" {
			return npc.Description
		}
		return fmt.Sprintf("%s watches you.", npc.Name)
	}
	return "There's nothing special about it."
}

func talk(g *story.ContentGraph, sc *story.Scene, target string) string {
	if target == "" {
		return "Talk to whom?"
	}
	npc := g.NPC(target)
	if npc == nil {
		return "You can't talk to that."
	}
	if npc.Dialogue != "" {
		return fmt.Sprintf("%s says: %q", npc.Name, npc.Dialogue)
	}
	switch npc.Disposition {
	case story.DispositionHostile:
		return fmt.Sprintf("%s glares at you and says nothing.", npc.Name)
	case story.DispositionFriendly:
		return fmt.Sprintf("%s smiles, but has nothing to say.", npc.Name)
	default:
		return fmt.Sprintf("%s has nothing to say.", npc.Name)
	}
}

// goTo attempts to move through an exit. The second return value is
// true when a guard refused passage: the caller must leave the state
// untouched in that case.
func goTo(g *story.ContentGraph, gs *state.GameState, sc *story.Scene, direction string) (string, bool) {
	target, ok := sc.Exits.To[direction]
	if !ok {
		return "You can't go that way.", true
	}

	for _, npcID := range sc.NPCs {
		npc := g.NPC(npcID)
		if npc == nil || npc.Guards != target {
			continue
		}
		if gs.Satisfies(npc.Requires) || gs.Flags[UnlockFlag(target)] {
			continue
		}
		if npc.BlockedLine != "" {
			return npc.BlockedLine, true
		}
		return fmt.Sprintf("%s blocks your way.", npc.Name), true
	}

	gs.CurrentScene = target
	next := g.Scene(target)
	return DescribeScene(g, gs, next), false
}

func take(g *story.ContentGraph, gs *state.GameState, sc *story.Scene, target string) string {
	if target == "" {
		return "Take what?"
	}
	it := g.Item(target)
	if it == nil || !contains(gs.Overlay.SceneItems(sc), target) {
		if gs.Has(target) {
			return "You already have it."
		}
		return "You don't see that here."
	}
	if !it.Takeable {
		return fmt.Sprintf("The %s won't budge.", strings.ToLower(it.Name))
	}
	gs.Overlay.Take(sc.ID, target)
	gs.AddItem(target)
	return fmt.Sprintf("You take the %s.", strings.ToLower(it.Name))
}

func drop(g *story.ContentGraph, gs *state.GameState, sc *story.Scene, target string) string {
	if target == "" {
		return "Drop what?"
	}
	if !gs.Has(target) {
		return "You aren't carrying that."
	}
	gs.RemoveItem(target)
	gs.Overlay.Place(sc.ID, target, sc)
	return fmt.Sprintf("You drop the %s.", strings.ToLower(g.DisplayName(target)))
}

func use(g *story.ContentGraph, gs *state.GameState, sc *story.Scene, target, second string) string {
	if target == "" {
		return "Use what?"
	}
	it := g.Item(target)
	if it == nil {
		return "You can't use that."
	}
	if !gs.Has(target) {
		return fmt.Sprintf("You aren't carrying the %s.", strings.ToLower(it.Name))
	}
	if second != "" && !contains(it.UsableWith, second) {
		return fmt.Sprintf("The %s doesn't work with that.", strings.ToLower(it.Name))
	}

	// Puzzles in this scene, declaration order, first match only.
	solvedAll := false
	for _, p := range g.ScenePuzzles(sc.ID) {
		if it.Unlocks != p.ID && !contains(p.Requires.Items, target) {
			continue
		}
		if gs.SolvedPuzzles[p.ID] {
			solvedAll = true
			continue
		}
		if gs.Satisfies(p.Requires) {
			gs.SolvedPuzzles[p.ID] = true
			return applyEffect(g, gs, &p.Success, "Something clicks into place.")
		}
		if p.Failure != nil {
			return applyEffect(g, gs, p.Failure, puzzleHint(p))
		}
		return puzzleHint(p)
	}
	if solvedAll {
		return "That's already done."
	}

	// Using a key-like item against an adjacent locked scene.
	if it.Unlocks != "" {
		if _, isScene := g.Scenes[it.Unlocks]; isScene {
			for _, dir := range sc.Exits.Order {
				if sc.Exits.To[dir] == it.Unlocks {
					flag := UnlockFlag(it.Unlocks)
					if gs.Flags[flag] {
						return "It's already unlocked."
					}
					gs.Flags[flag] = true
					return fmt.Sprintf("You unlock the way %s.", dir)
				}
			}
			return "There's nothing here to unlock with it."
		}
	}
	return "Nothing happens."
}

func puzzleHint(p *story.Puzzle) string {
	if p.Hint != "" {
		return p.Hint
	}
	return "Nothing happens."
}

// UnlockFlag names the session flag set when a guarded or locked scene
// has been opened with an item.
func UnlockFlag(sceneID string) string {
	return "unlocked:" + sceneID
}

// fireEvents evaluates the current scene's events in declaration order
// and applies the first one whose trigger holds. One event per turn
// keeps outcomes deterministic when triggers overlap.
func fireEvents(g *story.ContentGraph, gs *state.GameState) string {
	sc := g.Scene(gs.CurrentScene)
	if sc == nil {
		return ""
	}
	for _, evID := range sc.Events {
		ev, ok := g.Events[evID]
		if !ok {
			continue
		}
		if ev.Once && gs.FiredEvents[evID] {
			continue
		}
		if !triggerHolds(gs, ev.When) {
			continue
		}
		gs.FiredEvents[evID] = true
		return applyEffect(g, gs, &ev.Then, "")
	}
	return ""
}

func triggerHolds(gs *state.GameState, t story.Trigger) bool {
	if t.Scene != "" && gs.CurrentScene != t.Scene {
		return false
	}
	for _, itemID := range t.Items {
		if !gs.Has(itemID) {
			return false
		}
	}
	for _, flag := range t.Flags {
		if !gs.Flags[flag] {
			return false
		}
	}
	for _, flag := range t.NotFlags {
		if gs.Flags[flag] {
			return false
		}
	}
	return true
}

// applyEffect mutates the state per the effect and returns its message,
// falling back to fallback when the effect has none.
func applyEffect(g *story.ContentGraph, gs *state.GameState, ef *story.Effect, fallback string) string {
	for _, flag := range ef.SetFlags {
		gs.Flags[flag] = true
	}
	for _, flag := range ef.ClearFlags {
		delete(gs.Flags, flag)
	}
	for _, itemID := range ef.GiveItems {
		gs.AddItem(itemID)
	}
	for _, itemID := range ef.TakeItems {
		gs.RemoveItem(itemID)
	}
	if sc := g.Scene(gs.CurrentScene); sc != nil {
		for _, itemID := range ef.Reveal {
			gs.Overlay.Place(sc.ID, itemID, sc)
		}
	}

	msg := ef.Message
	if ef.MoveTo != "" {
		gs.CurrentScene = ef.MoveTo
		desc := DescribeScene(g, gs, g.Scene(ef.MoveTo))
		if msg != "" {
			msg += "\n\n" + desc
		} else {
			msg = desc
		}
	}

	switch ef.End {
	case story.OutcomeWon:
		gs.Status = state.StatusWon
		if msg == "" {
			msg = "You have won."
		}
	case story.OutcomeLost:
		gs.Status = state.StatusLost
		if msg == "" {
			msg = "Your story ends here."
		}
	}
	if msg == "" {
		msg = fallback
	}
	return msg
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
