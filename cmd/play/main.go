package main

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fableforge/adventure-engine/internal/config"
	"github.com/fableforge/adventure-engine/internal/logger"
	intstorage "github.com/fableforge/adventure-engine/internal/storage"
	"github.com/fableforge/adventure-engine/pkg/state"
	"github.com/fableforge/adventure-engine/pkg/story"
)

// play runs a story end to end in the terminal. The content graph is
// loaded and validated up front; fatal defects refuse to start.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <story-document>\n", os.Args[0])
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read story: %v\n", err)
		os.Exit(1)
	}

	g, err := story.Load(data)
	if err != nil {
		var loadErr *story.LoadError
		if errors.As(err, &loadErr) {
			fmt.Fprintf(os.Stderr, "Story failed to load: %v\n", loadErr)
		} else {
			fmt.Fprintf(os.Stderr, "Story failed to load: %v\n", err)
		}
		os.Exit(1)
	}

	report := story.Validate(g)
	if !report.OK() {
		fmt.Fprintf(os.Stderr, "Story has fatal defects:\n%s\n", report.Summary())
		os.Exit(1)
	}
	if !report.Clean() {
		fmt.Fprintf(os.Stderr, "Warning, story has advisory defects:\n%s\n\n", report.Summary())
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.Setup(cfg)

	store := intstorage.NewRedisStore(cfg.RedisURL, cfg.DataDir, log)
	defer func() {
		_ = store.Close() // Ignore error in defer
	}()

	gs := state.NewGameState(g)
	p := tea.NewProgram(NewPlayUI(g, gs, store),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	model, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}

	if ui, ok := model.(PlayUI); ok && ui.fatalErr != nil {
		fmt.Fprintf(os.Stderr, "Session error: %v\n", ui.fatalErr)
		os.Exit(1)
	}
}
