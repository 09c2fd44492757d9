package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fableforge/adventure-engine/pkg/story"
)

// validate loads a story document, runs the full structural check
// battery and prints every defect. Exit codes: 0 clean or advisory
// only, 1 usage or load failure, 2 fatal validation defects.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <story-document>\n", os.Args[0])
		os.Exit(1)
	}
	filename := os.Args[1]

	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", filename, err)
		os.Exit(1)
	}

	g, err := story.Load(data)
	if err != nil {
		var loadErr *story.LoadError
		if errors.As(err, &loadErr) {
			fmt.Fprintf(os.Stderr, "Load failed: %v\n", loadErr)
		} else {
			fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("Loaded %q: %d scenes, %d items, %d npcs, %d events, %d puzzles\n",
		titleOrFile(g, filename),
		len(g.Scenes), len(g.Items), len(g.NPCs), len(g.Events), len(g.Puzzles))

	report := story.Validate(g)
	if report.Clean() {
		fmt.Println("Story is structurally sound.")
		return
	}

	fmt.Println(report.Summary())
	if !report.OK() {
		fmt.Fprintf(os.Stderr, "\n%d fatal defect(s): story is not playable.\n", len(report.Fatal))
		os.Exit(2)
	}
	fmt.Printf("\n%d advisory defect(s): story is playable but suspect.\n", len(report.Advisory))
}

func titleOrFile(g *story.ContentGraph, filename string) string {
	if g.Title != "" {
		return g.Title
	}
	return filename
}
