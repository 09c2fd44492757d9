package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/fableforge/adventure-engine/pkg/engine"
	"github.com/fableforge/adventure-engine/pkg/parser"
	"github.com/fableforge/adventure-engine/pkg/state"
	"github.com/fableforge/adventure-engine/pkg/storage"
	"github.com/fableforge/adventure-engine/pkg/story"
)

const placeholderText = "What do you do?"

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	playerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingRight(2)

	gamePanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)
)

// transcriptEntry is one rendered exchange in the play log.
type transcriptEntry struct {
	command string // empty for the opening description
	output  string
	isError bool
}

// PlayUI is the BubbleTea model that runs a local play session.
type PlayUI struct {
	graph *story.ContentGraph
	gs    *state.GameState
	store storage.Storage

	gameViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model

	transcript []transcriptEntry
	ready      bool
	width      int
	height     int

	showQuitModal bool
	statusLine    string
	fatalErr      error
}

// NewPlayUI builds the model with the opening scene already on the log.
func NewPlayUI(g *story.ContentGraph, gs *state.GameState, store storage.Storage) PlayUI {
	ta := textarea.New()
	ta.Placeholder = placeholderText
	ta.Focus()
	ta.Prompt = promptStyle.Render("> ")
	ta.CharLimit = 200
	ta.SetWidth(50)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	gameVp := viewport.New(50, 20)
	gameVp.MouseWheelEnabled = true
	metaVp := viewport.New(20, 20)

	opening := engine.DescribeScene(g, gs, g.Scene(gs.CurrentScene))
	return PlayUI{
		graph:        g,
		gs:           gs,
		store:        store,
		textarea:     ta,
		gameViewport: gameVp,
		metaViewport: metaVp,
		transcript:   []transcriptEntry{{output: opening}},
	}
}

func (m PlayUI) Init() tea.Cmd {
	return textarea.Blink
}

func (m PlayUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		gameWidth := int(float64(m.width)*0.75) - 4
		metaWidth := m.width - gameWidth - 6

		m.gameViewport.Width = gameWidth - 2
		m.gameViewport.Height = m.height - 7
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(gameWidth - 4)

		m.ready = true
		m.writeTranscript()
		m.metaViewport.SetContent(m.writeMetadata())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyCtrlY:
			if err := clipboard.WriteAll(m.plainTranscript()); err != nil {
				m.statusLine = "Copy failed: " + err.Error()
			} else {
				m.statusLine = "Transcript copied to clipboard."
			}
			m.writeTranscript()
			return m, nil
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			m.statusLine = ""
			return m.runTurn(input)
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.gameViewport, vpCmd = m.gameViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// runTurn parses and applies one command against the local engine.
// save, load and quit are pass-through verbs handled here.
func (m PlayUI) runTurn(input string) (tea.Model, tea.Cmd) {
	act, err := parser.Parse(input, engine.BuildContext(m.graph, m.gs))
	if err != nil {
		var parseErr *parser.ParseError
		if errors.As(err, &parseErr) {
			m.appendEntry(transcriptEntry{command: input, output: parseErr.Error(), isError: true})
			return m, nil
		}
		m.fatalErr = err
		return m, tea.Quit
	}

	switch act.Verb {
	case parser.VerbQuit:
		m.showQuitModal = true
		return m, nil
	case parser.VerbSave:
		m.appendEntry(transcriptEntry{command: input, output: m.saveGame(act.Target)})
		return m, nil
	case parser.VerbLoad:
		m.appendEntry(transcriptEntry{command: input, output: m.loadGame(act.Target)})
		m.metaViewport.SetContent(m.writeMetadata())
		return m, nil
	}

	out, err := engine.Apply(m.graph, m.gs, act)
	if err != nil {
		if errors.Is(err, engine.ErrSessionTerminal) {
			m.appendEntry(transcriptEntry{command: input,
				output: "The story has ended. Press Esc to leave.", isError: true})
			return m, nil
		}
		m.fatalErr = err
		return m, tea.Quit
	}

	m.appendEntry(transcriptEntry{command: input, output: out})
	m.metaViewport.SetContent(m.writeMetadata())
	return m, nil
}

func (m *PlayUI) saveGame(slot string) string {
	if slot == "" {
		slot = "default"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.SaveGame(ctx, m.gs.StoryID, slot, m.gs); err != nil {
		return "Save failed: " + err.Error()
	}
	return "Game saved to slot " + slot + "."
}

func (m *PlayUI) loadGame(slot string) string {
	if slot == "" {
		slot = "default"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	gs, err := m.store.LoadGame(ctx, m.graph, m.gs.StoryID, slot)
	if err != nil {
		// The live session stays untouched on a failed load.
		return "Load failed: " + err.Error()
	}
	m.gs = gs
	return "Game loaded from slot " + slot + ".\n\n" +
		engine.DescribeScene(m.graph, gs, m.graph.Scene(gs.CurrentScene))
}

func (m *PlayUI) appendEntry(e transcriptEntry) {
	m.transcript = append(m.transcript, e)
	m.writeTranscript()
}

// writeTranscript reformats the whole log for the current width.
func (m *PlayUI) writeTranscript() {
	width := m.gameViewport.Width - 6
	if width < 20 {
		width = 20
	}

	var content strings.Builder
	title := m.graph.Title
	if title == "" {
		title = "ADVENTURE"
	}
	content.WriteString(titleStyle.Render(strings.ToUpper(title)) + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n\n")

	for _, e := range m.transcript {
		if e.command != "" {
			content.WriteString(playerStyle.Render("> "+e.command) + "\n")
		}
		style := narratorStyle
		if e.isError {
			style = errorStyle
		}
		content.WriteString(style.Render(wordwrap.String(e.output, width)) + "\n\n")
	}
	if m.statusLine != "" {
		content.WriteString(promptStyle.Render(m.statusLine) + "\n")
	}

	m.gameViewport.SetContent(content.String())
	m.gameViewport.GotoBottom()
}

func (m *PlayUI) plainTranscript() string {
	var b strings.Builder
	for _, e := range m.transcript {
		if e.command != "" {
			b.WriteString("> " + e.command + "\n")
		}
		b.WriteString(e.output + "\n\n")
	}
	return b.String()
}

func (m *PlayUI) writeMetadata() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("GAME STATE") + "\n\n")

	content.WriteString("Scene:\n")
	content.WriteString(m.graph.DisplayName(m.gs.CurrentScene) + "\n\n")

	content.WriteString(fmt.Sprintf("Turns: %d\n", m.gs.TurnCount))
	content.WriteString("Status: " + string(m.gs.Status) + "\n\n")

	content.WriteString("Inventory:\n")
	if len(m.gs.Inventory) == 0 {
		content.WriteString("empty\n")
	} else {
		for _, id := range m.gs.Inventory {
			content.WriteString("• " + m.graph.DisplayName(id) + "\n")
		}
	}

	if len(m.gs.Flags) > 0 {
		flags := make([]string, 0, len(m.gs.Flags))
		for f := range m.gs.Flags {
			flags = append(flags, f)
		}
		sort.Strings(flags)
		content.WriteString("\nFlags:\n")
		for _, f := range flags {
			content.WriteString("• " + f + "\n")
		}
	}

	content.WriteString("\nCommands:\n")
	content.WriteString("• Enter: act\n")
	content.WriteString("• Ctrl+Y: copy log\n")
	content.WriteString("• Esc: quit\n")
	return content.String()
}

func (m PlayUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "y", "Y", "enter":
			return m, tea.Quit
		case "n", "N", "esc":
			m.showQuitModal = false
			return m, nil
		}
	}
	return m, nil
}

func (m PlayUI) View() string {
	if !m.ready {
		return "Loading..."
	}

	if m.showQuitModal {
		modal := modalStyle.Render(
			titleStyle.Render("Quit?") + "\n\n" +
				"Unsaved progress will be lost.\n\n" +
				"y: quit    n: keep playing")
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal)
	}

	gamePanel := gamePanelStyle.Render(
		m.gameViewport.View() + "\n\n" + m.textarea.View())
	metaPanel := metaPanelStyle.Render(m.metaViewport.View())

	return lipgloss.JoinHorizontal(lipgloss.Top, gamePanel, metaPanel)
}
