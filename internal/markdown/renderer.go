package markdown

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// RendererConfig holds configuration for markdown rendering
type RendererConfig struct {
	Width int
	// Style is a glamour standard style name; empty picks one from the terminal
	Style string
	// SQLStyle is the chroma style used for SQL blocks
	SQLStyle string
	// Color disables ANSI output when false
	Color bool
}

// DefaultConfig returns a default renderer configuration
func DefaultConfig() *RendererConfig {
	return &RendererConfig{
		Width:    100,
		SQLStyle: "monokai",
		Color:    true,
	}
}

// PlainConfig returns a configuration that writes no escape codes
func PlainConfig() *RendererConfig {
	return &RendererConfig{
		Width:    100,
		Style:    "notty",
		SQLStyle: "monokai",
		Color:    false,
	}
}

// Renderer turns assistant output into styled terminal text
type Renderer struct {
	glamourRenderer *glamour.TermRenderer
	config          *RendererConfig
}

// NewRenderer creates a new markdown renderer with the given configuration
func NewRenderer(config *RendererConfig) (*Renderer, error) {
	if config == nil {
		config = DefaultConfig()
	}

	style := glamour.WithAutoStyle()
	if config.Style != "" {
		style = glamour.WithStandardStyle(config.Style)
	}

	glamourRenderer, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(config.Width),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create glamour renderer: %w", err)
	}

	return &Renderer{
		glamourRenderer: glamourRenderer,
		config:          config,
	}, nil
}

// Render renders markdown content to styled terminal output
func (r *Renderer) Render(markdown string) (string, error) {
	if markdown == "" {
		return "", nil
	}

	rendered, err := r.glamourRenderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return collapseBlankLines(rendered), nil
}

// collapseBlankLines keeps at most one consecutive blank line
func collapseBlankLines(rendered string) string {
	lines := strings.Split(rendered, "\n")
	var result []string
	blankCount := 0

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blankCount++
			if blankCount <= 1 {
				result = append(result, line)
			}
		} else {
			blankCount = 0
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}
