// Package progress renders workflow events for people: styled console lines, a run
// summary table, and an in-memory collector for the web surface.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/rafagois03/EmbarquesTMSLincros/internal/workflow"
)

var (
	colorSuccess = lipgloss.Color("#8BC34A")
	colorWarning = lipgloss.Color("#FFC107")
	colorError   = lipgloss.Color("#e53935")
	colorInfo    = lipgloss.Color("#2196F3")
	colorMuted   = lipgloss.Color("#7a8599")
)

// Styles used by Console and RenderReport.
type Styles struct {
	Phase   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Title   lipgloss.Style
	Cell    lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Phase:   lipgloss.NewStyle().Bold(true).Foreground(colorInfo),
		Success: lipgloss.NewStyle().Foreground(colorSuccess),
		Warning: lipgloss.NewStyle().Foreground(colorWarning),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(colorError),
		Muted:   lipgloss.NewStyle().Foreground(colorMuted),
		Title:   lipgloss.NewStyle().Bold(true).Underline(true),
		Cell:    lipgloss.NewStyle().PaddingRight(2),
	}
}

// PlainStyles renders without any escape codes.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{Phase: s, Success: s, Warning: s, Error: s, Muted: s, Title: s, Cell: s.PaddingRight(2)}
}

// Console writes one line per event. Skipped rows are summarized, not listed.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	styles Styles
}

func NewConsole(w io.Writer, styles Styles) *Console {
	return &Console{w: w, styles: styles}
}

func (c *Console) Observe(e workflow.Event) {
	line := c.format(e)
	if line == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
}

func (c *Console) format(e workflow.Event) string {
	s := c.styles
	switch e.Kind {
	case workflow.EventPhase:
		return s.Phase.Render("» " + strings.ReplaceAll(string(e.Phase), "_", " "))
	case workflow.EventRowMalformed:
		return s.Warning.Render(fmt.Sprintf("  linha %d ignorada: %v", e.Row, e.Err))
	case workflow.EventRowSubmitted:
		return s.Muted.Render(fmt.Sprintf("  linha %d -> protocolo %d", e.Row, e.Protocol))
	case workflow.EventWaiting:
		return s.Muted.Render(fmt.Sprintf("  aguardando %s para %d embarques", e.Delay, e.Count))
	case workflow.EventRowResolved:
		return s.Success.Render(fmt.Sprintf("  linha %d: protocolo %d -> embarque %d", e.Row, e.Protocol, e.ShipmentID))
	case workflow.EventRowUnresolved:
		return s.Warning.Render(fmt.Sprintf("  linha %d: protocolo %d pendente (%v)", e.Row, e.Protocol, e.Err))
	case workflow.EventAborted:
		return s.Error.Render(fmt.Sprintf("✗ abortado em %s: %v", e.Phase, e.Err))
	case workflow.EventFinished:
		return s.Success.Render("✓ concluído")
	}
	return ""
}

// RenderReport lays out a run summary as a two-column table.
func RenderReport(r *workflow.Report, styles Styles) string {
	rows := [][2]string{
		{"run", r.RunID.String()},
		{"arquivo", r.Source},
		{"status", string(r.Phase)},
		{"linhas", fmt.Sprint(r.Total)},
		{"já processadas", fmt.Sprint(r.AlreadyProcessed)},
		{"enviadas", fmt.Sprint(r.Submitted)},
		{"inválidas", fmt.Sprint(len(r.Malformed))},
		{"resolvidas", fmt.Sprint(r.Resolved)},
		{"pendentes", fmt.Sprint(len(r.Unresolved))},
		{"duração", r.Duration.Round(1e6).String()},
	}

	width := 0
	for _, row := range rows {
		if w := lipgloss.Width(row[0]); w > width {
			width = w
		}
	}

	var sb strings.Builder
	sb.WriteString(styles.Title.Render("Resumo"))
	sb.WriteString("\n")
	for _, row := range rows {
		label := styles.Cell.Width(width + 2).Render(row[0])
		value := row[1]
		switch {
		case row[0] == "status" && r.Phase == "ABORT":
			value = styles.Error.Render(value)
		case row[0] == "pendentes" && len(r.Unresolved) > 0:
			value = styles.Warning.Render(value)
		}
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, label, value))
		sb.WriteString("\n")
	}
	if r.Err != nil {
		sb.WriteString(styles.Error.Render("erro: " + r.Err.Error()))
		sb.WriteString("\n")
	}
	return sb.String()
}
