package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableforge/adventure-engine/pkg/parser"
	"github.com/fableforge/adventure-engine/pkg/state"
	"github.com/fableforge/adventure-engine/pkg/story"
)

const heistYAML = `
title: Gallery Heist
start_scene: lobby
synonyms:
  swipe: use
scenes:
  lobby:
    title: Gallery Lobby
    description: Marble floors stretch toward the vault door.
    exits:
      north: vault
      east: office
    items: [keycard, statue]
    npcs: [warden]
  vault:
    description: Rows of steel lockboxes line the walls.
  office:
    title: Back Office
    description: A cluttered back office.
    exits:
      west: lobby
    items: [chisel]
    events: [alarm]
items:
  keycard:
    name: Keycard
    aliases: [card]
    description: A magnetic pass with a scuffed stripe.
    takeable: true
    unlocks: vault
  statue:
    name: Statue
    description: A bronze statue, bolted to its plinth.
  chisel:
    name: Chisel
    takeable: true
  gem:
    name: Gem
    takeable: true
npcs:
  warden:
    name: Warden
    description: A bored guard in a gray uniform.
    dialogue: The vault is off limits.
    guards: vault
    requires:
      flags: [authorized]
    blocked_line: The warden steps in front of you.
events:
  alarm:
    when:
      scene: office
      not_flags: [disarmed]
    then:
      message: A silent alarm begins to pulse.
      set_flags: [alarmed]
puzzles:
  lockbox:
    scene: vault
    requires:
      items: [chisel]
    success:
      message: The lockbox pops open.
      give_items: [gem]
      end: won
    hint: The lockbox lid needs prying with something.
  display_case:
    scene: office
    requires:
      items: [chisel]
      flags: [gloves_on]
    success:
      message: The case lifts free without a scratch.
    hint: Bare fingers would trip the contact sensor.
`

func setup(t *testing.T) (*story.ContentGraph, *state.GameState) {
	t.Helper()
	g, err := story.Load([]byte(heistYAML))
	require.NoError(t, err)
	return g, state.NewGameState(g)
}

func do(t *testing.T, g *story.ContentGraph, gs *state.GameState, raw string) string {
	t.Helper()
	act, err := parser.Parse(raw, BuildContext(g, gs))
	require.NoError(t, err, "parse %q", raw)
	out, err := Apply(g, gs, act)
	require.NoError(t, err, "apply %q", raw)
	return out
}

func TestApply_LookAndExamine(t *testing.T) {
	g, gs := setup(t)

	out := do(t, g, gs, "look")
	assert.Contains(t, out, "Gallery Lobby")
	assert.Contains(t, out, "Marble floors")
	assert.Contains(t, out, "You see: Keycard, Statue.")
	assert.Contains(t, out, "Warden is here.")
	assert.Contains(t, out, "Exits: north, east.")

	out = do(t, g, gs, "examine keycard")
	assert.Equal(t, "A magnetic pass with a scuffed stripe.", out)

	assert.Equal(t, 2, gs.TurnCount)
	assert.Len(t, gs.History, 2)
}

func TestApply_TakeAndInventory(t *testing.T) {
	g, gs := setup(t)

	out := do(t, g, gs, "take the keycard")
	assert.Equal(t, "You take the keycard.", out)
	assert.Equal(t, []string{"keycard"}, gs.Inventory)

	out = do(t, g, gs, "inventory")
	assert.Equal(t, "You are carrying: Keycard.", out)

	// Gone from the scene, still visible in the graph declaration.
	assert.NotContains(t, do(t, g, gs, "look"), "Keycard, Statue")
	assert.Equal(t, []string{"keycard", "statue"}, g.Scenes["lobby"].Items)
}

func TestApply_TakeRefusals(t *testing.T) {
	g, gs := setup(t)

	assert.Equal(t, "The statue won't budge.", do(t, g, gs, "take statue"))
	assert.Empty(t, gs.Inventory)

	do(t, g, gs, "take keycard")
	assert.Equal(t, "You already have it.", do(t, g, gs, "take keycard"))
}

func TestApply_Drop(t *testing.T) {
	g, gs := setup(t)
	do(t, g, gs, "take keycard")
	do(t, g, gs, "go east")

	out := do(t, g, gs, "drop keycard")
	assert.Equal(t, "You drop the keycard.", out)
	assert.Empty(t, gs.Inventory)
	assert.Contains(t, do(t, g, gs, "look"), "Keycard")
	// The office scene's declaration still lists only the chisel.
	assert.Equal(t, []string{"chisel"}, g.Scenes["office"].Items)
}

func TestApply_GuardBlocksWithoutTurn(t *testing.T) {
	g, gs := setup(t)

	out, err := Apply(g, gs, parser.Action{Verb: parser.VerbGo, Target: "north", Raw: "go north"})
	require.NoError(t, err)
	assert.Equal(t, "The warden steps in front of you.", out)
	assert.Equal(t, "lobby", gs.CurrentScene)
	assert.Equal(t, 0, gs.TurnCount)
	assert.Empty(t, gs.History)
}

func TestApply_GuardPassesWhenAuthorized(t *testing.T) {
	g, gs := setup(t)
	gs.Flags["authorized"] = true

	out := do(t, g, gs, "go north")
	assert.Contains(t, out, "Rows of steel lockboxes")
	assert.Equal(t, "vault", gs.CurrentScene)
	assert.Equal(t, 1, gs.TurnCount)
}

func TestApply_UnlockWithKeyItem(t *testing.T) {
	g, gs := setup(t)
	do(t, g, gs, "take keycard")

	out := do(t, g, gs, "swipe keycard")
	assert.Equal(t, "You unlock the way north.", out)
	assert.True(t, gs.Flags[UnlockFlag("vault")])

	assert.Equal(t, "It's already unlocked.", do(t, g, gs, "use keycard"))

	// The unlock flag satisfies the warden too.
	do(t, g, gs, "go north")
	assert.Equal(t, "vault", gs.CurrentScene)
}

func TestApply_MovementCountsTurns(t *testing.T) {
	g, gs := setup(t)

	do(t, g, gs, "go east")
	do(t, g, gs, "go west")
	assert.Equal(t, "lobby", gs.CurrentScene)
	assert.Equal(t, 2, gs.TurnCount)
}

func TestApply_UnknownExitIsNotATurn(t *testing.T) {
	g, gs := setup(t)

	out, err := Apply(g, gs, parser.Action{Verb: parser.VerbGo, Target: "down", Raw: "go down"})
	require.NoError(t, err)
	assert.Equal(t, "You can't go that way.", out)
	assert.Equal(t, 0, gs.TurnCount)
}

func TestApply_EventFiresOnce(t *testing.T) {
	g, gs := setup(t)

	out := do(t, g, gs, "go east")
	assert.Contains(t, out, "A silent alarm begins to pulse.")
	assert.True(t, gs.Flags["alarmed"])
	assert.True(t, gs.FiredEvents["alarm"])

	do(t, g, gs, "go west")
	out = do(t, g, gs, "go east")
	assert.NotContains(t, out, "alarm begins")
}

func TestApply_PuzzleFailureThenSuccess(t *testing.T) {
	g, gs := setup(t)
	gs.Flags["authorized"] = true
	do(t, g, gs, "go east")
	do(t, g, gs, "take chisel")
	do(t, g, gs, "go west")
	do(t, g, gs, "go north")

	// Drop the chisel: using it now fails the requirement check.
	do(t, g, gs, "drop chisel")
	out := do(t, g, gs, "use chisel")
	assert.Equal(t, "You aren't carrying the chisel.", out)
	assert.Equal(t, state.StatusInProgress, gs.Status)
	assert.Empty(t, gs.SolvedPuzzles)

	do(t, g, gs, "take chisel")
	out = do(t, g, gs, "use chisel")
	assert.Contains(t, out, "The lockbox pops open.")
	assert.Equal(t, state.StatusWon, gs.Status)
	assert.True(t, gs.SolvedPuzzles["lockbox"])
	assert.True(t, gs.Has("gem"))
}

func TestApply_PuzzleHintWhenRequirementsUnmet(t *testing.T) {
	g, gs := setup(t)
	do(t, g, gs, "go east")
	do(t, g, gs, "take chisel")

	out := do(t, g, gs, "use chisel")
	assert.Equal(t, "Bare fingers would trip the contact sensor.", out)
	assert.Equal(t, state.StatusInProgress, gs.Status)
	assert.Empty(t, gs.SolvedPuzzles)

	gs.Flags["gloves_on"] = true
	out = do(t, g, gs, "use chisel")
	assert.Contains(t, out, "The case lifts free")
	assert.True(t, gs.SolvedPuzzles["display_case"])

	assert.Equal(t, "That's already done.", do(t, g, gs, "use chisel"))
}

func TestApply_TerminalSessionRejectsActions(t *testing.T) {
	g, gs := setup(t)
	gs.Status = state.StatusWon

	_, err := Apply(g, gs, parser.Action{Verb: parser.VerbLook, Raw: "look"})
	assert.ErrorIs(t, err, ErrSessionTerminal)
	assert.Equal(t, 0, gs.TurnCount)
}

func TestApply_PassThroughVerbs(t *testing.T) {
	g, gs := setup(t)

	for _, verb := range []parser.Verb{parser.VerbSave, parser.VerbLoad, parser.VerbQuit} {
		_, err := Apply(g, gs, parser.Action{Verb: verb})
		assert.ErrorIs(t, err, ErrPassThrough)
	}
	assert.Equal(t, 0, gs.TurnCount)
}

func TestApply_Talk(t *testing.T) {
	g, gs := setup(t)

	out := do(t, g, gs, "talk to the warden")
	assert.Equal(t, `Warden says: "The vault is off limits."`, out)
}

func TestBuildContext(t *testing.T) {
	g, gs := setup(t)
	gs.AddItem("gem")

	ctx := BuildContext(g, gs)
	assert.Equal(t, []string{"north", "east"}, ctx.Exits)

	ids := make([]string, len(ctx.Entities))
	for i, e := range ctx.Entities {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"keycard", "statue", "gem", "warden"}, ids)
	assert.Equal(t, "use", ctx.Synonyms["swipe"])
}

// Two sessions over one graph never observe each other's changes.
func TestApply_SessionsAreIsolated(t *testing.T) {
	g, err := story.Load([]byte(heistYAML))
	require.NoError(t, err)

	first := state.NewGameState(g)
	second := state.NewGameState(g)

	do(t, g, first, "take keycard")
	out := do(t, g, second, "look")
	assert.Contains(t, out, "Keycard")
	assert.Empty(t, second.Inventory)
}
