package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/haivivi/rolecoach/pkg/realtime"
	"github.com/haivivi/rolecoach/pkg/reconcile"
)

// Theme defines the color scheme for terminal rendering.
type Theme struct {
	Operator     lipgloss.Color
	Counterparty lipgloss.Color
	Client       lipgloss.Color
	Server       lipgloss.Color
	Dim          lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Operator:     lipgloss.Color("#00ff9f"),
	Counterparty: lipgloss.Color("#58a6ff"),
	Client:       lipgloss.Color("#d29922"),
	Server:       lipgloss.Color("#00ff9f"),
	Dim:          lipgloss.Color("#6e7681"),
}

// Event direction arrows.
const (
	ArrowClient = "↓"
	ArrowServer = "↑"
)

// Renderer formats transcript entries and event log lines.
type Renderer struct {
	width int

	operator     lipgloss.Style
	counterparty lipgloss.Style
	client       lipgloss.Style
	server       lipgloss.Style
	dim          lipgloss.Style
}

// NewRenderer creates a renderer for a terminal of the given width. A
// width below 20 disables alignment.
func NewRenderer(t Theme, width int) *Renderer {
	return &Renderer{
		width:        width,
		operator:     lipgloss.NewStyle().Bold(true).Foreground(t.Operator),
		counterparty: lipgloss.NewStyle().Bold(true).Foreground(t.Counterparty),
		client:       lipgloss.NewStyle().Foreground(t.Client),
		server:       lipgloss.NewStyle().Foreground(t.Server),
		dim:          lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// Entry renders one transcript entry: operator lines right-aligned,
// counterparty lines left-aligned.
func (r *Renderer) Entry(e reconcile.Entry) string {
	stamp := r.dim.Render(e.Time.Format(time.TimeOnly))
	if e.Speaker == reconcile.Operator {
		line := r.operator.Render(e.Message) + " " + stamp
		if r.width < 20 {
			return line
		}
		return lipgloss.PlaceHorizontal(r.width, lipgloss.Right, line)
	}
	return stamp + " " + r.counterparty.Render(e.Message)
}

// Event renders one event log line with its direction arrow, time and kind.
// detail, when non-empty, follows the kind; it is truncated to fit.
func (r *Renderer) Event(ev realtime.Event, detail string) string {
	arrow, kind := r.server.Render(ArrowServer), r.server.Render(ev.Type)
	if ev.Direction() == realtime.DirectionClient {
		arrow, kind = r.client.Render(ArrowClient), r.client.Render(ev.Type)
	}
	stamp := "--:--:--"
	if !ev.Timestamp.IsZero() {
		stamp = ev.Timestamp.Format(time.TimeOnly)
	}
	line := fmt.Sprintf("%s %s %s", arrow, r.dim.Render(stamp), kind)
	if detail = strings.Join(strings.Fields(detail), " "); detail != "" {
		room := r.width - lipgloss.Width(line) - 1
		if r.width >= 20 && room > 1 && lipgloss.Width(detail) > room {
			detail = truncate(detail, room-1) + "…"
		}
		line += " " + r.dim.Render(detail)
	}
	return line
}

// Transcript renders entries one per line.
func (r *Renderer) Transcript(entries []reconcile.Entry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = r.Entry(e)
	}
	return strings.Join(lines, "\n")
}

// truncate cuts s to at most width display cells, handling multi-byte
// characters correctly.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	current := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if current+w > width {
			return string(runes[:i])
		}
		current += w
	}
	return s
}
