package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Spinner represents a loading spinner
type Spinner struct {
	frames []string
	frame  int
}

// NewSpinner creates a new spinner
func NewSpinner() *Spinner {
	return &Spinner{
		frames: []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"},
	}
}

// Next advances the spinner to the next frame
func (s *Spinner) Next() {
	s.frame = (s.frame + 1) % len(s.frames)
}

// View returns the current spinner frame
func (s *Spinner) View() string {
	return s.frames[s.frame]
}

// LoadingIndicator shows a spinner next to the list of running actions
type LoadingIndicator struct {
	spinner *Spinner
	active  map[string]int
}

// NewLoadingIndicator creates an idle indicator
func NewLoadingIndicator() *LoadingIndicator {
	return &LoadingIndicator{
		spinner: NewSpinner(),
		active:  make(map[string]int),
	}
}

// Start marks one more running action with label
func (l *LoadingIndicator) Start(label string) {
	l.active[label]++
}

// Stop marks one action with label as finished
func (l *LoadingIndicator) Stop(label string) {
	if l.active[label] <= 1 {
		delete(l.active, label)
		return
	}
	l.active[label]--
}

// Reset forgets every running action
func (l *LoadingIndicator) Reset() {
	l.active = make(map[string]int)
}

// Busy reports whether anything is running
func (l *LoadingIndicator) Busy() bool {
	return len(l.active) > 0
}

// Tick advances the spinner animation
func (l *LoadingIndicator) Tick() {
	l.spinner.Next()
}

// View renders the indicator, or "" when idle
func (l *LoadingIndicator) View() string {
	if !l.Busy() {
		return ""
	}

	spinnerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("212"))

	messageStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	return fmt.Sprintf("%s %s",
		spinnerStyle.Render(l.spinner.View()),
		messageStyle.Render(l.label()))
}

func (l *LoadingIndicator) label() string {
	// fixed order so the line does not jitter between frames
	var parts []string
	for _, label := range []string{"Signing in", "Uploading", "Loading history", "Loading summary", "Loading table", "Downloading"} {
		if l.active[label] > 0 {
			parts = append(parts, label)
		}
	}
	if len(parts) == 0 {
		return "Working"
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out + "..."
}
