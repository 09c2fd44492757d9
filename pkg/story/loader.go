package story

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadErrorKind classifies loader failures.
type LoadErrorKind string

const (
	// LoadMalformed means the payload could not be parsed into the
	// expected document shape at all.
	LoadMalformed LoadErrorKind = "malformed"
	// LoadDuplicateID means two entities of the same kind share an id.
	LoadDuplicateID LoadErrorKind = "duplicate_id"
)

// LoadError is returned by Load when a document cannot become a graph.
// Loading is all-or-nothing; a LoadError always blocks play.
type LoadError struct {
	Kind   LoadErrorKind
	Detail string
	IDs    []string // duplicate ids, for LoadDuplicateID
}

func (e *LoadError) Error() string {
	if len(e.IDs) > 0 {
		return fmt.Sprintf("story load failed (%s): %s: %s", e.Kind, e.Detail, strings.Join(e.IDs, ", "))
	}
	return fmt.Sprintf("story load failed (%s): %s", e.Kind, e.Detail)
}

func malformed(format string, args ...any) *LoadError {
	return &LoadError{Kind: LoadMalformed, Detail: fmt.Sprintf(format, args...)}
}

// Load parses a story document into a ContentGraph. The document is
// JSON or YAML, optionally wrapped in decorative Markdown fencing or
// surrounding prose, as produced by generation pipelines. Load performs
// no cross-entity reference resolution; that is Validate's job, so that
// all structural defects can be reported together.
func Load(document []byte) (*ContentGraph, error) {
	payload := extractPayload(string(document))
	if strings.TrimSpace(payload) == "" {
		return nil, malformed("document is empty")
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(payload), &root); err != nil {
		return nil, malformed("not parseable as JSON or YAML: %v", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, malformed("document has no content")
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, malformed("top level must be a mapping, got %s", nodeKind(top))
	}

	g := &ContentGraph{
		Scenes:   make(map[string]*Scene),
		Items:    make(map[string]*Item),
		NPCs:     make(map[string]*NPC),
		Events:   make(map[string]*Event),
		Puzzles:  make(map[string]*Puzzle),
		Synonyms: make(map[string]string),
	}

	var dups []string
	sections := make(map[string]*yaml.Node)
	for i := 0; i+1 < len(top.Content); i += 2 {
		sections[top.Content[i].Value] = top.Content[i+1]
	}

	if n, ok := sections["title"]; ok {
		if err := n.Decode(&g.Title); err != nil {
			return nil, malformed("title: %v", err)
		}
	}
	n, ok := sections["start_scene"]
	if !ok {
		return nil, malformed("missing required section start_scene")
	}
	if err := n.Decode(&g.StartScene); err != nil || g.StartScene == "" {
		return nil, malformed("start_scene must be a scene id")
	}

	n, ok = sections["scenes"]
	if !ok {
		return nil, malformed("missing required section scenes")
	}
	err := eachEntity(n, "scenes", func(id string, node *yaml.Node) error {
		if _, exists := g.Scenes[id]; exists {
			dups = append(dups, "scene/"+id)
			return nil
		}
		sc := &Scene{ID: id}
		if err := node.Decode(sc); err != nil {
			return malformed("scene %q: %v", id, err)
		}
		g.Scenes[id] = sc
		g.SceneOrder = append(g.SceneOrder, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(g.SceneOrder) == 0 {
		return nil, malformed("scenes section is empty")
	}

	if n, ok := sections["items"]; ok {
		err = eachEntity(n, "items", func(id string, node *yaml.Node) error {
			if _, exists := g.Items[id]; exists {
				dups = append(dups, "item/"+id)
				return nil
			}
			it := &Item{ID: id}
			if err := node.Decode(it); err != nil {
				return malformed("item %q: %v", id, err)
			}
			if it.Name == "" {
				it.Name = id
			}
			g.Items[id] = it
			g.ItemOrder = append(g.ItemOrder, id)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if n, ok := sections["npcs"]; ok {
		err = eachEntity(n, "npcs", func(id string, node *yaml.Node) error {
			if _, exists := g.NPCs[id]; exists {
				dups = append(dups, "npc/"+id)
				return nil
			}
			npc := &NPC{ID: id}
			if err := node.Decode(npc); err != nil {
				return malformed("npc %q: %v", id, err)
			}
			if npc.Name == "" {
				npc.Name = id
			}
			if npc.Disposition == "" {
				npc.Disposition = DispositionNeutral
			}
			switch npc.Disposition {
			case DispositionNeutral, DispositionHostile, DispositionFriendly:
			default:
				return malformed("npc %q: unknown disposition %q", id, npc.Disposition)
			}
			g.NPCs[id] = npc
			g.NPCOrder = append(g.NPCOrder, id)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if n, ok := sections["events"]; ok {
		err = eachEntity(n, "events", func(id string, node *yaml.Node) error {
			if _, exists := g.Events[id]; exists {
				dups = append(dups, "event/"+id)
				return nil
			}
			ev := &Event{ID: id, Once: true}
			if err := node.Decode(ev); err != nil {
				return malformed("event %q: %v", id, err)
			}
			g.Events[id] = ev
			g.EventOrder = append(g.EventOrder, id)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if n, ok := sections["puzzles"]; ok {
		err = eachEntity(n, "puzzles", func(id string, node *yaml.Node) error {
			if _, exists := g.Puzzles[id]; exists {
				dups = append(dups, "puzzle/"+id)
				return nil
			}
			p := &Puzzle{ID: id}
			if err := node.Decode(p); err != nil {
				return malformed("puzzle %q: %v", id, err)
			}
			g.Puzzles[id] = p
			g.PuzzleOrder = append(g.PuzzleOrder, id)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if n, ok := sections["synonyms"]; ok {
		raw := make(map[string]string)
		if err := n.Decode(&raw); err != nil {
			return nil, malformed("synonyms: %v", err)
		}
		g.Synonyms = make(map[string]string, len(raw))
		for word, verb := range raw {
			g.Synonyms[strings.ToLower(word)] = strings.ToLower(verb)
		}
	}

	if len(dups) > 0 {
		sort.Strings(dups)
		return nil, &LoadError{Kind: LoadDuplicateID, Detail: "duplicate entity ids", IDs: dups}
	}
	return g, nil
}

// eachEntity walks a mapping of id -> entity body in declaration order.
// Duplicate mapping keys are reported through the callback seeing the
// same id twice; yaml.v3 node walking does not collapse them.
func eachEntity(n *yaml.Node, section string, fn func(id string, node *yaml.Node) error) error {
	if n.Kind != yaml.MappingNode {
		return malformed("%s must be a mapping of id to entity, got %s", section, nodeKind(n))
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		var id string
		if err := n.Content[i].Decode(&id); err != nil {
			return malformed("%s: entity id: %v", section, err)
		}
		if err := fn(id, n.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// extractPayload isolates the structured payload from decorative
// wrapping: Markdown code fences and any prose around them. When no
// fence is present the whole document is the payload.
func extractPayload(doc string) string {
	lines := strings.Split(doc, "\n")
	start := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			start = i
			break
		}
	}
	if start == -1 {
		return strings.TrimSpace(doc)
	}
	end := -1
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	if end == -1 {
		// Unterminated fence: take everything after the opening line.
		end = len(lines)
	}
	return strings.TrimSpace(strings.Join(lines[start+1:end], "\n"))
}
