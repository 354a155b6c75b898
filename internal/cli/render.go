package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/randalmurphal/partkit/library"
	"github.com/randalmurphal/partkit/resolver"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	nameStyle    = lipgloss.NewStyle().Bold(true)
	indexStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Width(4).Align(lipgloss.Right)
)

// printResult renders a resolve result for humans.
func printResult(w io.Writer, res resolver.Result) {
	switch res.Status {
	case resolver.StatusResolved:
		fmt.Fprintf(w, "%s %s\n", successStyle.Render("✓"), nameStyle.Render(res.Component))
		fmt.Fprintf(w, "  %s\n", mutedStyle.Render(res.Path))
	case resolver.StatusSelectionRequired:
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%d components match:", len(res.Options))))
		printOptions(w, res.Options)
	case resolver.StatusNoResults:
		fmt.Fprintln(w, warnStyle.Render(res.Message))
	default:
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render("✗"), res.Message)
	}
}

func printOptions(w io.Writer, options []string) {
	for i, opt := range options {
		fmt.Fprintf(w, "%s %s\n", indexStyle.Render(fmt.Sprintf("%d.", i+1)), opt)
	}
}

// printComponents renders a library listing.
func printComponents(w io.Writer, dir string, comps []library.Component) {
	fmt.Fprintln(w, mutedStyle.Render(dir))
	if len(comps) == 0 {
		fmt.Fprintln(w, "  (no components)")
		return
	}
	for _, c := range comps {
		fmt.Fprintf(w, "  %s  %s\n", nameStyle.Render(c.Name), mutedStyle.Render(c.File))
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
