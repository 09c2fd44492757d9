package state

import "github.com/fableforge/adventure-engine/pkg/story"

// Overlay tracks per-session changes to item presence without mutating
// the shared content graph. A scene's effective item set is its graph
// declaration, minus Removed, plus Added in append order.
type Overlay struct {
	Removed map[string][]string `json:"removed,omitempty"` // scene id -> item ids taken away
	Added   map[string][]string `json:"added,omitempty"`   // scene id -> item ids dropped or revealed
}

// NewOverlay returns an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{
		Removed: make(map[string][]string),
		Added:   make(map[string][]string),
	}
}

// SceneItems resolves the effective item ids present in a scene.
func (o *Overlay) SceneItems(sc *story.Scene) []string {
	var out []string
	for _, id := range sc.Items {
		if !contains(o.Removed[sc.ID], id) {
			out = append(out, id)
		}
	}
	for _, id := range o.Added[sc.ID] {
		if !contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// Take marks an item as removed from a scene.
func (o *Overlay) Take(sceneID, itemID string) {
	if added := o.Added[sceneID]; contains(added, itemID) {
		o.Added[sceneID] = remove(added, itemID)
		return
	}
	if !contains(o.Removed[sceneID], itemID) {
		o.Removed[sceneID] = append(o.Removed[sceneID], itemID)
	}
}

// Place marks an item as present in a scene.
func (o *Overlay) Place(sceneID, itemID string, sc *story.Scene) {
	if contains(sc.Items, itemID) {
		o.Removed[sceneID] = remove(o.Removed[sceneID], itemID)
		return
	}
	if !contains(o.Added[sceneID], itemID) {
		o.Added[sceneID] = append(o.Added[sceneID], itemID)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	for i, s := range list {
		if s == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
