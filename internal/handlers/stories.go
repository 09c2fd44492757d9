package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fableforge/adventure-engine/pkg/storage"
	"github.com/fableforge/adventure-engine/pkg/story"
)

// StoriesHandler lists story documents and reports on their structural
// soundness. Validation findings are returned verbatim so the content
// pipeline can use them as quality signals.
type StoriesHandler struct {
	log     *slog.Logger
	storage storage.Storage
}

func NewStoriesHandler(log *slog.Logger, storage storage.Storage) *StoriesHandler {
	return &StoriesHandler{
		log:     log,
		storage: storage,
	}
}

type storyReportResponse struct {
	Name     string                  `json:"name"`
	Title    string                  `json:"title,omitempty"`
	Playable bool                    `json:"playable"`
	Report   *story.ValidationReport `json:"report"`
}

func (h *StoriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/stories"), "/")
	if name == "" {
		h.handleList(w, r)
		return
	}
	if strings.Contains(name, "..") || strings.Contains(name, "/") {
		http.Error(w, "Invalid story name", http.StatusBadRequest)
		return
	}
	h.handleReport(w, r, name)
}

func (h *StoriesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	names, err := h.storage.ListStories(r.Context())
	if err != nil {
		h.log.Error("Failed to list stories", "error", err)
		http.Error(w, "Failed to list stories", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string][]string{"stories": names})
}

func (h *StoriesHandler) handleReport(w http.ResponseWriter, r *http.Request, name string) {
	g, err := h.storage.GetStory(r.Context(), name)
	if err != nil {
		var loadErr *story.LoadError
		if errors.As(err, &loadErr) {
			writeJSON(w, h.log, http.StatusUnprocessableEntity, map[string]string{
				"error": loadErr.Error(),
			})
			return
		}
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Story not found", http.StatusNotFound)
			return
		}
		h.log.Error("Failed to get story", "error", err, "name", name)
		http.Error(w, "Failed to retrieve story", http.StatusInternalServerError)
		return
	}

	report := story.Validate(g)
	writeJSON(w, h.log, http.StatusOK, storyReportResponse{
		Name:     name,
		Title:    g.Title,
		Playable: report.OK(),
		Report:   report,
	})
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "error", err)
	}
}
