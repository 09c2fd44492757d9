// Package parser turns raw player text into a structured Action against
// a bounded VERB [TARGET] [PREPOSITION TARGET2] grammar. Parsing is a
// pure function of its inputs: the parser holds no state, sees only the
// entities visible from the current scene, and never guesses between
// ambiguous candidates.
package parser

import (
	"fmt"
	"sort"
	"strings"
)

// Verb is a canonical player command.
type Verb string

const (
	VerbLook      Verb = "look"
	VerbGo        Verb = "go"
	VerbTake      Verb = "take"
	VerbDrop      Verb = "drop"
	VerbExamine   Verb = "examine"
	VerbUse       Verb = "use"
	VerbTalk      Verb = "talk"
	VerbInventory Verb = "inventory"
	VerbSave      Verb = "save"
	VerbLoad      Verb = "load"
	VerbQuit      Verb = "quit"
)

// Action is the structured result of parsing one player command.
// Target and Second hold resolved entity ids, or the matched direction
// label for go.
type Action struct {
	Verb   Verb
	Target string
	Second string
	Raw    string
}

// Entity is one visible, nameable thing the player may refer to.
type Entity struct {
	ID      string
	Name    string
	Aliases []string
}

// Context is the parser's entire view of the world: the names visible
// from the current scene plus the story's verb synonyms. It never
// includes distant entities, so commands cannot reach them.
type Context struct {
	Exits    []string          // direction labels, in display order
	Entities []Entity          // scene items, inventory items, visible NPCs
	Synonyms map[string]string // story-specific word -> canonical verb
}

// ErrorKind classifies parse failures. All of them are recoverable by
// re-prompting the player.
type ErrorKind string

const (
	UnknownVerb   ErrorKind = "unknown_verb"
	UnknownTarget ErrorKind = "unknown_target"
	Ambiguous     ErrorKind = "ambiguous"
)

// ParseError reports why a command could not become an Action.
type ParseError struct {
	Kind       ErrorKind
	Word       string
	Candidates []string // populated for Ambiguous, sorted
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case UnknownVerb:
		return fmt.Sprintf("I don't know the verb %q.", e.Word)
	case Ambiguous:
		return fmt.Sprintf("%q could mean: %s. Which one?", e.Word, strings.Join(e.Candidates, ", "))
	default:
		return fmt.Sprintf("I don't see %q here.", e.Word)
	}
}

// builtinVerbs maps player words to canonical verbs, including the
// usual single-letter shorthands. Story synonym tables layer on top.
var builtinVerbs = map[string]Verb{
	"look":      VerbLook,
	"l":         VerbLook,
	"go":        VerbGo,
	"walk":      VerbGo,
	"move":      VerbGo,
	"head":      VerbGo,
	"take":      VerbTake,
	"get":       VerbTake,
	"grab":      VerbTake,
	"pick":      VerbTake,
	"drop":      VerbDrop,
	"examine":   VerbExamine,
	"inspect":   VerbExamine,
	"read":      VerbExamine,
	"x":         VerbExamine,
	"use":       VerbUse,
	"unlock":    VerbUse,
	"talk":      VerbTalk,
	"speak":     VerbTalk,
	"inventory": VerbInventory,
	"inv":       VerbInventory,
	"i":         VerbInventory,
	"save":      VerbSave,
	"load":      VerbLoad,
	"restore":   VerbLoad,
	"quit":      VerbQuit,
	"exit":      VerbQuit,
	"q":         VerbQuit,
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "some": true, "my": true,
}

var prepositions = map[string]bool{
	"on": true, "with": true, "at": true, "to": true, "in": true, "into": true,
}

// Parse tokenizes raw text and resolves it into an Action against the
// given context. It is deterministic and side-effect free.
func Parse(raw string, ctx Context) (Action, error) {
	tokens := tokenize(raw)
	if len(tokens) == 0 {
		return Action{}, &ParseError{Kind: UnknownVerb, Word: ""}
	}

	verb, ok := resolveVerb(tokens[0], ctx)
	if !ok {
		// A bare direction is shorthand for go.
		if dir, err := resolveExit(strings.Join(tokens, " "), ctx.Exits); err == nil {
			return Action{Verb: VerbGo, Target: dir, Raw: raw}, nil
		}
		return Action{}, &ParseError{Kind: UnknownVerb, Word: tokens[0]}
	}

	rest := tokens[1:]
	// Elide a preposition immediately after the verb ("talk to guard"),
	// and the particle in "pick up X". Never for go: "up" is a direction.
	if len(rest) > 0 && prepositions[rest[0]] {
		rest = rest[1:]
	} else if verb == VerbTake && len(rest) > 1 && rest[0] == "up" {
		rest = rest[1:]
	}

	first, second := splitOnPreposition(rest)
	act := Action{Verb: verb, Raw: raw}

	if len(first) == 0 {
		if len(second) > 0 {
			first, second = second, nil
		} else {
			return act, nil
		}
	}

	phrase := strings.Join(first, " ")
	switch verb {
	case VerbSave, VerbLoad:
		// Slot names are free-form, not scene entities.
		act.Target = phrase
		return act, nil
	case VerbQuit:
		return act, nil
	case VerbGo:
		dir, err := resolveExit(phrase, ctx.Exits)
		if err != nil {
			return Action{}, err
		}
		act.Target = dir
	default:
		id, err := resolveEntity(phrase, ctx.Entities)
		if err != nil {
			return Action{}, err
		}
		act.Target = id
	}

	if len(second) > 0 {
		id, err := resolveEntity(strings.Join(second, " "), ctx.Entities)
		if err != nil {
			return Action{}, err
		}
		act.Second = id
	}
	return act, nil
}

// tokenize lowercases, strips punctuation and drops stopwords.
func tokenize(raw string) []string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?', '\'', '"', ';', ':':
			return ' '
		}
		return r
	}, strings.ToLower(raw))

	var tokens []string
	for _, tok := range strings.Fields(clean) {
		if !stopwords[tok] {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func resolveVerb(word string, ctx Context) (Verb, bool) {
	if syn, ok := ctx.Synonyms[word]; ok {
		word = syn
	}
	v, ok := builtinVerbs[word]
	return v, ok
}

// splitOnPreposition divides tokens into target phrase and second
// target phrase at the first preposition.
func splitOnPreposition(tokens []string) (first, second []string) {
	for i, tok := range tokens {
		if prepositions[tok] {
			return tokens[:i], tokens[i+1:]
		}
	}
	return tokens, nil
}

// resolveExit matches a phrase against visible exit directions, with
// the conventional compass abbreviations.
func resolveExit(phrase string, exits []string) (string, error) {
	expanded := expandDirection(phrase)
	var matches []string
	for _, dir := range exits {
		lower := strings.ToLower(dir)
		if lower == expanded {
			return dir, nil
		}
		if strings.HasPrefix(lower, expanded) {
			matches = append(matches, dir)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", &ParseError{Kind: UnknownTarget, Word: phrase}
	default:
		sort.Strings(matches)
		return "", &ParseError{Kind: Ambiguous, Word: phrase, Candidates: matches}
	}
}

var compass = map[string]string{
	"n": "north", "s": "south", "e": "east", "w": "west",
	"ne": "northeast", "nw": "northwest", "se": "southeast", "sw": "southwest",
	"u": "up", "d": "down",
}

func expandDirection(phrase string) string {
	if full, ok := compass[phrase]; ok {
		return full
	}
	return phrase
}

// resolveEntity matches a phrase against visible entity names and
// aliases: an exact alias or name wins outright; otherwise the phrase
// must be a prefix of exactly one entity name. More than one match is
// an error carrying the candidate list; the caller re-prompts.
func resolveEntity(phrase string, entities []Entity) (string, error) {
	var matches []Entity
	for _, ent := range entities {
		name := strings.ToLower(ent.Name)
		if name == phrase {
			return ent.ID, nil
		}
		exactAlias := false
		for _, alias := range ent.Aliases {
			if strings.ToLower(alias) == phrase {
				exactAlias = true
				break
			}
		}
		if exactAlias {
			return ent.ID, nil
		}
		if strings.HasPrefix(name, phrase) {
			matches = append(matches, ent)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0].ID, nil
	case 0:
		return "", &ParseError{Kind: UnknownTarget, Word: phrase}
	default:
		names := make([]string, len(matches))
		for i, ent := range matches {
			names[i] = ent.Name
		}
		sort.Strings(names)
		return "", &ParseError{Kind: Ambiguous, Word: phrase, Candidates: names}
	}
}
