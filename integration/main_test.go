//go:build integration
// +build integration

// End-to-end playthrough of the bundled sample story through the real
// HTTP surface. Run with: go test -tags integration ./integration/
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableforge/adventure-engine/internal/handlers"
	"github.com/fableforge/adventure-engine/internal/middleware"
	"github.com/fableforge/adventure-engine/internal/session"
	"github.com/fableforge/adventure-engine/pkg/state"
	"github.com/fableforge/adventure-engine/pkg/storage"
	"github.com/fableforge/adventure-engine/pkg/story"
)

type sessionResponse struct {
	SessionID string           `json:"session_id"`
	State     *state.GameState `json:"state"`
	Output    string           `json:"output"`
}

type commandResponse struct {
	Output     string           `json:"output"`
	State      *state.GameState `json:"state"`
	ParseError string           `json:"parse_error"`
	Candidates []string         `json:"candidates"`
	Ended      bool             `json:"ended"`
}

func startServer(t *testing.T) *httptest.Server {
	t.Helper()

	doc, err := os.ReadFile("../data/stories/grimport_manor.yaml")
	require.NoError(t, err)
	g, err := story.Load(doc)
	require.NoError(t, err)
	report := story.Validate(g)
	require.True(t, report.OK(), "sample story has fatal defects: %+v", report.Fatal)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMockStorage()
	store.AddStory("grimport_manor", g)
	registry := session.NewRegistry(logger)

	mux := http.NewServeMux()
	mux.Handle("/health", handlers.NewHealthHandler(store, logger))
	mux.Handle("/v1/stories", handlers.NewStoriesHandler(logger, store))
	mux.Handle("/v1/stories/", handlers.NewStoriesHandler(logger, store))
	mux.Handle("/v1/sessions", handlers.NewSessionsHandler(logger, store, registry))
	mux.Handle("/v1/sessions/", handlers.NewSessionsHandler(logger, store, registry))

	srv := httptest.NewServer(middleware.Logger(mux))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, data
}

func command(t *testing.T, srv *httptest.Server, sessionID, text string) (int, commandResponse) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"text": text})
	require.NoError(t, err)
	resp, data := postJSON(t, fmt.Sprintf("%s/v1/sessions/%s/command", srv.URL, sessionID), string(payload))

	var out commandResponse
	require.NoError(t, json.Unmarshal(data, &out), "command %q: %s", text, data)
	return resp.StatusCode, out
}

func TestManorPlaythrough(t *testing.T) {
	srv := startServer(t)

	// The story catalog lists the sample and reports it playable.
	resp, err := http.Get(srv.URL + "/v1/stories/grimport_manor")
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report struct {
		Playable bool `json:"playable"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	require.True(t, report.Playable)

	resp, data = postJSON(t, srv.URL+"/v1/sessions", `{"story": "grimport_manor"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var created sessionResponse
	require.NoError(t, json.Unmarshal(data, &created))
	assert.Contains(t, created.Output, "Entrance Foyer")

	id := created.SessionID

	status, out := command(t, srv, id, "take candle")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "You take the candle.", out.Output)

	_, out = command(t, srv, id, "go north")
	assert.Contains(t, out.Output, "The Library")

	// The housekeeper refuses passage; the refused move costs no turn.
	status, out = command(t, srv, id, "go down")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, out.Output, "Not without the key.")
	assert.Equal(t, 2, out.State.TurnCount)

	command(t, srv, id, "go south")

	// Entering the conservatory reveals the key through its event.
	_, out = command(t, srv, id, "go east")
	assert.Contains(t, out.Output, "something small and brass")
	_, out = command(t, srv, id, "take brass key")
	assert.Equal(t, "You take the brass key.", out.Output)

	command(t, srv, id, "go west")
	command(t, srv, id, "go north")
	_, out = command(t, srv, id, "take journal")
	assert.Equal(t, "You take the journal.", out.Output)

	// Holding the key satisfies the housekeeper.
	_, out = command(t, srv, id, "go down")
	assert.Contains(t, out.Output, "Wine Cellar")

	status, out = command(t, srv, id, "save endgame")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Game saved to slot endgame.", out.Output)
	savedTurns := out.State.TurnCount

	_, out = command(t, srv, id, "use candle")
	assert.Contains(t, out.Output, "Grimport Manor is yours.")
	assert.True(t, out.Ended)
	assert.Equal(t, state.StatusWon, out.State.Status)
	assert.Contains(t, out.State.Inventory, "deed")

	// A finished session rejects further play.
	status, _ = command(t, srv, id, "look")
	assert.Equal(t, http.StatusConflict, status)

	// But a load rewinds to the saved point and the ending replays.
	status, out = command(t, srv, id, "load endgame")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, state.StatusInProgress, out.State.Status)
	assert.Equal(t, savedTurns, out.State.TurnCount)
	assert.Equal(t, "cellar", out.State.CurrentScene)

	_, out = command(t, srv, id, "use candle")
	assert.True(t, out.Ended)
}
