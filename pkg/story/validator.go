package story

import (
	"fmt"
	"strings"
)

// DefectCode identifies one class of validation finding.
type DefectCode string

const (
	// BadReference is fatal: an id names an entity that does not exist.
	BadReference DefectCode = "bad_reference"
	// OrphanScene is advisory: the scene cannot be reached from the start.
	OrphanScene DefectCode = "orphan_scene"
	// NoWinCondition is advisory: no reachable outcome ends the game won.
	NoWinCondition DefectCode = "no_win_condition"
	// UnsolvablePuzzle is advisory: the puzzle's requirements cannot be
	// gathered on any path from the start to its scene.
	UnsolvablePuzzle DefectCode = "unsolvable_puzzle"
)

// Defect is a single validation finding.
type Defect struct {
	Code    DefectCode `json:"code"`
	Subject string     `json:"subject"` // entity id the finding is about
	Detail  string     `json:"detail"`
}

func (d Defect) String() string {
	return fmt.Sprintf("[%s] %s: %s", d.Code, d.Subject, d.Detail)
}

// ValidationReport accumulates every defect found in one pass over a
// graph. Fatal defects make the graph unusable; advisory defects are
// quality signals surfaced to the operator or generation pipeline.
type ValidationReport struct {
	Fatal    []Defect `json:"fatal,omitempty"`
	Advisory []Defect `json:"advisory,omitempty"`
}

// OK reports whether the graph may proceed to play.
func (r *ValidationReport) OK() bool {
	return len(r.Fatal) == 0
}

// Clean reports whether no defects of any severity were found.
func (r *ValidationReport) Clean() bool {
	return len(r.Fatal) == 0 && len(r.Advisory) == 0
}

func (r *ValidationReport) fatal(code DefectCode, subject, format string, args ...any) {
	r.Fatal = append(r.Fatal, Defect{Code: code, Subject: subject, Detail: fmt.Sprintf(format, args...)})
}

func (r *ValidationReport) advise(code DefectCode, subject, format string, args ...any) {
	r.Advisory = append(r.Advisory, Defect{Code: code, Subject: subject, Detail: fmt.Sprintf(format, args...)})
}

// Summary renders the report for logs and CLI output.
func (r *ValidationReport) Summary() string {
	if r.Clean() {
		return "no defects"
	}
	var b strings.Builder
	for _, d := range r.Fatal {
		fmt.Fprintf(&b, "fatal    %s\n", d)
	}
	for _, d := range r.Advisory {
		fmt.Fprintf(&b, "advisory %s\n", d)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Validate runs the full battery of structural checks over a loaded
// graph. It never stops at the first defect: reference integrity,
// reachability, termination and solvability findings are all gathered
// into one report. Only graphs with no fatal defects may be played.
func Validate(g *ContentGraph) *ValidationReport {
	r := &ValidationReport{}

	checkReferences(g, r)
	reachable := checkReachability(g, r)
	checkTermination(g, r, reachable)
	checkSolvability(g, r, reachable)

	return r
}

func checkReferences(g *ContentGraph, r *ValidationReport) {
	if _, ok := g.Scenes[g.StartScene]; !ok {
		r.fatal(BadReference, g.StartScene, "start_scene is not a scene")
	}

	for _, id := range g.SceneOrder {
		sc := g.Scenes[id]
		for _, dir := range sc.Exits.Order {
			target := sc.Exits.To[dir]
			if _, ok := g.Scenes[target]; !ok {
				r.fatal(BadReference, id, "exit %q targets missing scene %q", dir, target)
			}
		}
		for _, itemID := range sc.Items {
			if _, ok := g.Items[itemID]; !ok {
				r.fatal(BadReference, id, "scene places missing item %q", itemID)
			}
		}
		for _, npcID := range sc.NPCs {
			if _, ok := g.NPCs[npcID]; !ok {
				r.fatal(BadReference, id, "scene places missing npc %q", npcID)
			}
		}
		for _, evID := range sc.Events {
			if _, ok := g.Events[evID]; !ok {
				r.fatal(BadReference, id, "scene lists missing event %q", evID)
			}
		}
	}

	for _, id := range g.ItemOrder {
		it := g.Items[id]
		for _, target := range it.UsableWith {
			if !g.entityExists(target) {
				r.fatal(BadReference, id, "usable_with names missing entity %q", target)
			}
		}
		if it.Unlocks != "" {
			_, isScene := g.Scenes[it.Unlocks]
			_, isPuzzle := g.Puzzles[it.Unlocks]
			if !isScene && !isPuzzle {
				r.fatal(BadReference, id, "unlocks names missing scene or puzzle %q", it.Unlocks)
			}
		}
	}

	for _, id := range g.NPCOrder {
		npc := g.NPCs[id]
		if npc.Guards != "" {
			if _, ok := g.Scenes[npc.Guards]; !ok {
				r.fatal(BadReference, id, "guards names missing scene %q", npc.Guards)
			}
		}
		for _, itemID := range npc.Requires.Items {
			if _, ok := g.Items[itemID]; !ok {
				r.fatal(BadReference, id, "requires missing item %q", itemID)
			}
		}
	}

	for _, id := range g.EventOrder {
		ev := g.Events[id]
		if ev.When.Scene != "" {
			if _, ok := g.Scenes[ev.When.Scene]; !ok {
				r.fatal(BadReference, id, "trigger names missing scene %q", ev.When.Scene)
			}
		}
		for _, itemID := range ev.When.Items {
			if _, ok := g.Items[itemID]; !ok {
				r.fatal(BadReference, id, "trigger requires missing item %q", itemID)
			}
		}
		checkEffect(g, r, id, &ev.Then)
	}

	for _, id := range g.PuzzleOrder {
		p := g.Puzzles[id]
		if _, ok := g.Scenes[p.Scene]; !ok {
			r.fatal(BadReference, id, "puzzle owned by missing scene %q", p.Scene)
		}
		for _, itemID := range p.Requires.Items {
			if _, ok := g.Items[itemID]; !ok {
				r.fatal(BadReference, id, "requires missing item %q", itemID)
			}
		}
		checkEffect(g, r, id, &p.Success)
		if p.Failure != nil {
			checkEffect(g, r, id, p.Failure)
		}
	}
}

func checkEffect(g *ContentGraph, r *ValidationReport, owner string, ef *Effect) {
	for _, itemID := range ef.GiveItems {
		if _, ok := g.Items[itemID]; !ok {
			r.fatal(BadReference, owner, "effect gives missing item %q", itemID)
		}
	}
	for _, itemID := range ef.TakeItems {
		if _, ok := g.Items[itemID]; !ok {
			r.fatal(BadReference, owner, "effect takes missing item %q", itemID)
		}
	}
	for _, itemID := range ef.Reveal {
		if _, ok := g.Items[itemID]; !ok {
			r.fatal(BadReference, owner, "effect reveals missing item %q", itemID)
		}
	}
	if ef.MoveTo != "" {
		if _, ok := g.Scenes[ef.MoveTo]; !ok {
			r.fatal(BadReference, owner, "effect moves player to missing scene %q", ef.MoveTo)
		}
	}
	switch ef.End {
	case "", OutcomeWon, OutcomeLost:
	default:
		r.fatal(BadReference, owner, "effect ends game with unknown outcome %q", ef.End)
	}
}

func (g *ContentGraph) entityExists(id string) bool {
	if _, ok := g.Items[id]; ok {
		return true
	}
	if _, ok := g.NPCs[id]; ok {
		return true
	}
	if _, ok := g.Scenes[id]; ok {
		return true
	}
	if _, ok := g.Puzzles[id]; ok {
		return true
	}
	return false
}

// checkReachability walks the scene graph breadth-first from the start
// scene and reports every scene it never visits. Guard conditions are
// ignored here: a guarded exit is still an exit.
func checkReachability(g *ContentGraph, r *ValidationReport) map[string]bool {
	reachable := make(map[string]bool, len(g.Scenes))
	if _, ok := g.Scenes[g.StartScene]; !ok {
		return reachable
	}

	queue := []string{g.StartScene}
	reachable[g.StartScene] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		sc := g.Scenes[cur]
		for _, dir := range sc.Exits.Order {
			target := sc.Exits.To[dir]
			if _, ok := g.Scenes[target]; !ok || reachable[target] {
				continue
			}
			reachable[target] = true
			queue = append(queue, target)
		}
		// Effects can teleport the player; those edges count too.
		for _, next := range effectDestinations(g, cur) {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, id := range g.SceneOrder {
		if !reachable[id] {
			r.advise(OrphanScene, id, "not reachable from start scene %q", g.StartScene)
		}
	}
	return reachable
}

// effectDestinations lists scenes a player can be moved to by events or
// puzzles tied to the given scene.
func effectDestinations(g *ContentGraph, sceneID string) []string {
	var out []string
	sc := g.Scenes[sceneID]
	if sc == nil {
		return nil
	}
	for _, evID := range sc.Events {
		if ev, ok := g.Events[evID]; ok && ev.Then.MoveTo != "" {
			out = append(out, ev.Then.MoveTo)
		}
	}
	for _, p := range g.ScenePuzzles(sceneID) {
		if p.Success.MoveTo != "" {
			out = append(out, p.Success.MoveTo)
		}
		if p.Failure != nil && p.Failure.MoveTo != "" {
			out = append(out, p.Failure.MoveTo)
		}
	}
	return out
}

// checkTermination verifies that some reachable event or puzzle outcome
// can end the game won.
func checkTermination(g *ContentGraph, r *ValidationReport, reachable map[string]bool) {
	for _, id := range g.PuzzleOrder {
		p := g.Puzzles[id]
		if reachable[p.Scene] && p.Success.End == OutcomeWon {
			return
		}
	}
	for _, sceneID := range g.SceneOrder {
		if !reachable[sceneID] {
			continue
		}
		for _, evID := range g.Scenes[sceneID].Events {
			if ev, ok := g.Events[evID]; ok && ev.Then.End == OutcomeWon {
				return
			}
		}
	}
	r.advise(NoWinCondition, g.StartScene, "no reachable puzzle or event outcome sets the game won")
}

// checkSolvability is a heuristic second pass: for each puzzle in a
// reachable scene, everything it requires must be obtainable somewhere
// reachable. Items count from scene floors, event grants, puzzle
// rewards and reveals; flags from event or puzzle effects. It
// deliberately ignores ordering between prerequisites, trading
// precision for no false positives on solvable stories.
func checkSolvability(g *ContentGraph, r *ValidationReport, reachable map[string]bool) {
	obtainableItems := make(map[string]bool)
	settableFlags := make(map[string]bool)

	noteEffect := func(ef *Effect) {
		for _, id := range ef.GiveItems {
			obtainableItems[id] = true
		}
		for _, id := range ef.Reveal {
			obtainableItems[id] = true
		}
		for _, f := range ef.SetFlags {
			settableFlags[f] = true
		}
	}

	for _, sceneID := range g.SceneOrder {
		if !reachable[sceneID] {
			continue
		}
		sc := g.Scenes[sceneID]
		for _, itemID := range sc.Items {
			obtainableItems[itemID] = true
		}
		for _, evID := range sc.Events {
			if ev, ok := g.Events[evID]; ok {
				noteEffect(&ev.Then)
			}
		}
		for _, p := range g.ScenePuzzles(sceneID) {
			noteEffect(&p.Success)
			if p.Failure != nil {
				noteEffect(p.Failure)
			}
		}
	}

	for _, id := range g.PuzzleOrder {
		p := g.Puzzles[id]
		if !reachable[p.Scene] {
			continue
		}
		for _, itemID := range p.Requires.Items {
			if _, ok := g.Items[itemID]; ok && !obtainableItems[itemID] {
				r.advise(UnsolvablePuzzle, id, "required item %q is not obtainable on any path to scene %q", itemID, p.Scene)
			}
		}
		for _, flag := range p.Requires.Flags {
			if !settableFlags[flag] {
				r.advise(UnsolvablePuzzle, id, "required flag %q is never set by any reachable event or puzzle", flag)
			}
		}
	}
}
