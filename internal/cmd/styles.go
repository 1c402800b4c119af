package cmd

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Iron-Ham/autoproducer/internal/pipeline"
	"github.com/Iron-Ham/autoproducer/internal/stage"
)

var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	pausedColor  = lipgloss.Color("#60A5FA") // Blue
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	labelStyle = lipgloss.NewStyle().Foreground(mutedColor)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
)

// defaultWidth is used when stdout is not a terminal.
const defaultWidth = 100

// terminalWidth returns the width of stdout, or defaultWidth.
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}

func stateStyle(s pipeline.State) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch s {
	case pipeline.StateRunning:
		return base.Foreground(successColor)
	case pipeline.StatePaused:
		return base.Foreground(pausedColor)
	case pipeline.StateSucceeded:
		return base.Foreground(primaryColor)
	case pipeline.StateFailed, pipeline.StateAborted:
		return base.Foreground(errorColor)
	default:
		return base.Foreground(mutedColor)
	}
}

func stageStatusStyle(s stage.Status) lipgloss.Style {
	switch s {
	case stage.StatusSuccess:
		return lipgloss.NewStyle().Foreground(successColor)
	case stage.StatusStubbed:
		return lipgloss.NewStyle().Foreground(warningColor)
	case stage.StatusTimeout, stage.StatusError:
		return lipgloss.NewStyle().Foreground(errorColor)
	default:
		return lipgloss.NewStyle().Foreground(mutedColor)
	}
}
