package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableforge/adventure-engine/internal/session"
	"github.com/fableforge/adventure-engine/pkg/storage"
)

const playableYAML = `
title: Lighthouse
start_scene: shore
scenes:
  shore:
    title: Rocky Shore
    description: Waves crash against black rocks.
    exits:
      north: lighthouse
    items: [lamp, lantern, beacon_key]
  lighthouse:
    description: A spiral stair winds upward.
items:
  lamp:
    name: Lamp
    takeable: true
  lantern:
    name: Lantern
    takeable: true
  beacon_key:
    name: Beacon Key
    takeable: true
    unlocks: beacon
puzzles:
  beacon:
    scene: lighthouse
    requires:
      items: [beacon_key]
    success:
      message: The beacon blazes to life.
      end: won
`

func sessionsFixture(t *testing.T) (*SessionsHandler, *storage.MockStorage, *session.Registry) {
	t.Helper()
	store := storage.NewMockStorage()
	store.AddStory("lighthouse", storyFixture(t, playableYAML))
	registry := session.NewRegistry(testLogger())
	return NewSessionsHandler(testLogger(), store, registry), store, registry
}

func createSession(t *testing.T, handler *SessionsHandler) sessionResponse {
	t.Helper()
	body := bytes.NewBufferString(`{"story": "lighthouse"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", body)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func sendCommand(t *testing.T, handler *SessionsHandler, id uuid.UUID, text string) (*httptest.ResponseRecorder, commandResponse) {
	t.Helper()
	body, err := json.Marshal(commandRequest{Text: text})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/v1/sessions/%s/command", id), bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var resp commandResponse
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestSessions_Create(t *testing.T) {
	handler, _, registry := sessionsFixture(t)

	resp := createSession(t, handler)
	assert.Contains(t, resp.Output, "Rocky Shore")
	assert.Contains(t, resp.Output, "Exits: north.")
	require.NotNil(t, resp.State)
	assert.Equal(t, "shore", resp.State.CurrentScene)
	assert.Equal(t, 1, registry.Len())
}

func TestSessions_CreateUnknownStory(t *testing.T) {
	handler, _, _ := sessionsFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString(`{"story": "nope"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessions_CreateMissingBody(t *testing.T) {
	handler, _, _ := sessionsFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessions_GetAndDelete(t *testing.T) {
	handler, _, registry := sessionsFixture(t)
	created := createSession(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+created.SessionID.String(), nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+created.SessionID.String(), nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, registry.Len())
}

func TestSessions_UnknownSession(t *testing.T) {
	handler, _, _ := sessionsFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/not-a-uuid", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessions_Command(t *testing.T) {
	handler, _, _ := sessionsFixture(t)
	created := createSession(t, handler)

	w, resp := sendCommand(t, handler, created.SessionID, "take lamp")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "You take the lamp.", resp.Output)
	assert.Equal(t, []string{"lamp"}, resp.State.Inventory)
	assert.Equal(t, 1, resp.State.TurnCount)
	assert.False(t, resp.Ended)
}

func TestSessions_CommandParseError(t *testing.T) {
	handler, _, _ := sessionsFixture(t)
	created := createSession(t, handler)

	w, resp := sendCommand(t, handler, created.SessionID, "take rope")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unknown_target", resp.ParseError)
	assert.Equal(t, 0, resp.State.TurnCount)

	w, resp = sendCommand(t, handler, created.SessionID, "juggle lamp")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unknown_verb", resp.ParseError)
}

func TestSessions_CommandAmbiguous(t *testing.T) {
	handler, _, _ := sessionsFixture(t)
	created := createSession(t, handler)

	// "la" prefixes both Lamp and Lantern.
	w, resp := sendCommand(t, handler, created.SessionID, "take la")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ambiguous", resp.ParseError)
	assert.Equal(t, []string{"Lamp", "Lantern"}, resp.Candidates)
	assert.Equal(t, 0, resp.State.TurnCount)
}

func TestSessions_WinEndsSession(t *testing.T) {
	handler, _, _ := sessionsFixture(t)
	created := createSession(t, handler)

	sendCommand(t, handler, created.SessionID, "take beacon key")
	sendCommand(t, handler, created.SessionID, "go north")
	w, resp := sendCommand(t, handler, created.SessionID, "use beacon key")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, resp.Output, "The beacon blazes to life.")
	assert.True(t, resp.Ended)

	// Further commands are rejected without advancing anything.
	w, resp = sendCommand(t, handler, created.SessionID, "look")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, resp.Ended)
}

func TestSessions_SaveAndLoad(t *testing.T) {
	handler, store, _ := sessionsFixture(t)
	created := createSession(t, handler)

	sendCommand(t, handler, created.SessionID, "take lamp")
	w, resp := sendCommand(t, handler, created.SessionID, "save slot1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Game saved to slot slot1.", resp.Output)

	slots, err := store.ListSlots(context.Background(), "lighthouse")
	require.NoError(t, err)
	assert.Equal(t, []string{"slot1"}, slots)

	// Play on, then load back to the saved point.
	sendCommand(t, handler, created.SessionID, "go north")
	w, resp = sendCommand(t, handler, created.SessionID, "load slot1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, resp.Output, "Game loaded from slot slot1.")
	assert.Equal(t, "shore", resp.State.CurrentScene)
	assert.Equal(t, []string{"lamp"}, resp.State.Inventory)
	assert.Equal(t, 1, resp.State.TurnCount)
}

func TestSessions_LoadMissingSlotLeavesSessionAlone(t *testing.T) {
	handler, _, registry := sessionsFixture(t)
	created := createSession(t, handler)
	sendCommand(t, handler, created.SessionID, "take lamp")

	w, resp := sendCommand(t, handler, created.SessionID, "load nope")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, resp.Output, "not_found")

	s, ok := registry.Get(created.SessionID)
	require.True(t, ok)
	assert.Equal(t, []string{"lamp"}, s.State.Inventory)
	assert.Equal(t, 1, s.State.TurnCount)
}

func TestSessions_QuitDeletesSession(t *testing.T) {
	handler, _, registry := sessionsFixture(t)
	created := createSession(t, handler)

	w, resp := sendCommand(t, handler, created.SessionID, "quit")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Goodbye.", resp.Output)
	assert.True(t, resp.Ended)
	assert.Equal(t, 0, registry.Len())
}
