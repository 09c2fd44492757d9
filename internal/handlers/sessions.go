package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/fableforge/adventure-engine/internal/session"
	"github.com/fableforge/adventure-engine/pkg/engine"
	"github.com/fableforge/adventure-engine/pkg/parser"
	"github.com/fableforge/adventure-engine/pkg/state"
	"github.com/fableforge/adventure-engine/pkg/storage"
	"github.com/fableforge/adventure-engine/pkg/story"
)

// SessionsHandler exposes the turn loop over HTTP:
//
//	POST   /v1/sessions                  start a session for a story
//	GET    /v1/sessions/{id}             current game state
//	POST   /v1/sessions/{id}/command     run one player command
//	DELETE /v1/sessions/{id}             discard a session
//
// save and load commands are pass-through: the handler persists through
// storage rather than the engine, per slot named in the command.
type SessionsHandler struct {
	log      *slog.Logger
	storage  storage.Storage
	registry *session.Registry
}

func NewSessionsHandler(log *slog.Logger, st storage.Storage, registry *session.Registry) *SessionsHandler {
	return &SessionsHandler{
		log:      log,
		storage:  st,
		registry: registry,
	}
}

type createSessionRequest struct {
	Story string `json:"story"`
}

type sessionResponse struct {
	SessionID uuid.UUID        `json:"session_id"`
	State     *state.GameState `json:"state"`
	Output    string           `json:"output,omitempty"`
}

type commandRequest struct {
	Text string `json:"text"`
}

type commandResponse struct {
	Output     string           `json:"output"`
	State      *state.GameState `json:"state"`
	ParseError string           `json:"parse_error,omitempty"`
	Candidates []string         `json:"candidates,omitempty"`
	Ended      bool             `json:"ended,omitempty"`
}

func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions"), "/")

	if rest == "" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleCreate(w, r)
		return
	}

	parts := strings.Split(rest, "/")
	id, err := uuid.Parse(parts[0])
	if err != nil {
		http.Error(w, "Invalid session id", http.StatusBadRequest)
		return
	}
	s, ok := h.registry.Get(id)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		writeJSON(w, h.log, http.StatusOK, sessionResponse{SessionID: s.ID, State: s.State})
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.registry.Delete(id)
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "command" && r.Method == http.MethodPost:
		h.handleCommand(w, r, s)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCreate loads and validates the story, then opens a session at
// its start scene. Fatal validation defects block play.
func (h *SessionsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Story == "" {
		http.Error(w, "Request body must name a story", http.StatusBadRequest)
		return
	}

	g, err := h.storage.GetStory(r.Context(), req.Story)
	if err != nil {
		var loadErr *story.LoadError
		if errors.As(err, &loadErr) {
			writeJSON(w, h.log, http.StatusUnprocessableEntity, map[string]string{"error": loadErr.Error()})
			return
		}
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Story not found", http.StatusNotFound)
			return
		}
		h.log.Error("Failed to get story", "error", err, "story", req.Story)
		http.Error(w, "Failed to retrieve story", http.StatusInternalServerError)
		return
	}

	if report := story.Validate(g); !report.OK() {
		h.log.Warn("Story failed validation", "story", req.Story, "fatal", len(report.Fatal))
		writeJSON(w, h.log, http.StatusUnprocessableEntity, map[string]any{
			"error":  "story has fatal validation defects",
			"report": report,
		})
		return
	}

	s := h.registry.Create(req.Story, g)
	opening := engine.DescribeScene(g, s.State, g.Scene(s.State.CurrentScene))
	writeJSON(w, h.log, http.StatusCreated, sessionResponse{
		SessionID: s.ID,
		State:     s.State,
		Output:    opening,
	})
}

func (h *SessionsHandler) handleCommand(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "Request body must contain command text", http.StatusBadRequest)
		return
	}

	act, err := s.Parse(req.Text)
	if err != nil {
		var parseErr *parser.ParseError
		if errors.As(err, &parseErr) {
			// Recoverable: the player re-prompts with the detail.
			writeJSON(w, h.log, http.StatusOK, commandResponse{
				Output:     parseErr.Error(),
				State:      s.State,
				ParseError: string(parseErr.Kind),
				Candidates: parseErr.Candidates,
			})
			return
		}
		h.log.Error("Parse failed", "error", err)
		http.Error(w, "Failed to parse command", http.StatusInternalServerError)
		return
	}

	switch act.Verb {
	case parser.VerbSave:
		h.handleSave(w, r, s, act)
		return
	case parser.VerbLoad:
		h.handleLoad(w, r, s, act)
		return
	case parser.VerbQuit:
		h.registry.Delete(s.ID)
		writeJSON(w, h.log, http.StatusOK, commandResponse{Output: "Goodbye.", State: s.State, Ended: true})
		return
	}

	out, err := s.Apply(act)
	if err != nil {
		if errors.Is(err, engine.ErrSessionTerminal) {
			writeJSON(w, h.log, http.StatusConflict, commandResponse{
				Output: "This story has ended. Start a new session to play again.",
				State:  s.State,
				Ended:  true,
			})
			return
		}
		h.log.Error("Turn failed", "error", err, "session_id", s.ID)
		http.Error(w, "Failed to apply command", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.log, http.StatusOK, commandResponse{
		Output: out,
		State:  s.State,
		Ended:  s.State.Status != state.StatusInProgress,
	})
}

func (h *SessionsHandler) handleSave(w http.ResponseWriter, r *http.Request, s *session.Session, act parser.Action) {
	slot := act.Target
	if slot == "" {
		slot = "default"
	}
	if err := h.storage.SaveGame(r.Context(), s.StoryID, slot, s.State); err != nil {
		h.log.Error("Save failed", "error", err, "session_id", s.ID, "slot", slot)
		http.Error(w, "Failed to save game", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.log, http.StatusOK, commandResponse{
		Output: "Game saved to slot " + slot + ".",
		State:  s.State,
	})
}

func (h *SessionsHandler) handleLoad(w http.ResponseWriter, r *http.Request, s *session.Session, act parser.Action) {
	slot := act.Target
	if slot == "" {
		slot = "default"
	}
	gs, err := h.storage.LoadGame(r.Context(), s.Graph, s.StoryID, slot)
	if err != nil {
		var saveErr *storage.SaveError
		if errors.As(err, &saveErr) {
			// Fatal to the load call only; the live session is untouched.
			writeJSON(w, h.log, http.StatusConflict, commandResponse{
				Output: saveErr.Error(),
				State:  s.State,
			})
			return
		}
		h.log.Error("Load failed", "error", err, "session_id", s.ID, "slot", slot)
		http.Error(w, "Failed to load game", http.StatusInternalServerError)
		return
	}

	s.Replace(gs)
	out := engine.DescribeScene(s.Graph, gs, s.Graph.Scene(gs.CurrentScene))
	writeJSON(w, h.log, http.StatusOK, commandResponse{
		Output: "Game loaded from slot " + slot + ".\n\n" + out,
		State:  gs,
	})
}
