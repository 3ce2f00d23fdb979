// Package picker is the one-shot result list behind `drive find`.
package picker

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nikbrunner/drive/internal/model"
	"github.com/nikbrunner/drive/internal/search"
)

var (
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	matchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")).
			Underline(true)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")).
			Bold(true).
			MarginBottom(1)
)

// linesPerResult is the height of one entry: name and details.
const linesPerResult = 2

// Picker is a simple TUI for selecting from search results.
type Picker struct {
	results   []search.Result
	query     string
	cursor    int
	selected  bool
	cancelled bool
	width     int
	height    int
}

// New creates a new Picker with the given search results.
func New(results []search.Result, query string) Picker {
	return Picker{
		results: results,
		query:   query,
		cursor:  0,
		width:   80,
		height:  24,
	}
}

// Init implements tea.Model.
func (p Picker) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		return p, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c", "q":
			p.cancelled = true
			return p, tea.Quit

		case "enter":
			if len(p.results) == 0 {
				p.cancelled = true
			} else {
				p.selected = true
			}
			return p, tea.Quit

		case "down", "j", "ctrl+n":
			if p.cursor < len(p.results)-1 {
				p.cursor++
			}

		case "up", "k", "ctrl+p":
			if p.cursor > 0 {
				p.cursor--
			}

		case "G":
			if len(p.results) > 0 {
				p.cursor = len(p.results) - 1
			}

		case "g":
			p.cursor = 0
		}
	}

	return p, nil
}

// View implements tea.Model.
func (p Picker) View() string {
	var b strings.Builder

	count := fmt.Sprintf("%d results", len(p.results))
	if len(p.results) == 1 {
		count = "1 result"
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("Search: %s (%s)", p.query, count)))
	b.WriteString("\n\n")

	if len(p.results) == 0 {
		b.WriteString(metaStyle.Render("  nothing matched"))
		b.WriteString("\n")
	}

	start, end := p.window()
	for i := start; i < end; i++ {
		result := p.results[i]
		cursor := "  "
		style := normalStyle
		if i == p.cursor {
			cursor = "> "
			style = selectedStyle
		}

		b.WriteString(cursor + highlight(result, style) + "\n")
		b.WriteString("   " + metaStyle.Render(details(result.Item)) + "\n")
	}

	// Footer
	b.WriteString("\n")
	b.WriteString(metaStyle.Render("j/k: move  Enter: pick  q/Esc: cancel"))

	return b.String()
}

// window returns the slice of results that fits the terminal, keeping
// the cursor visible.
func (p Picker) window() (start, end int) {
	// Header (2) and footer (2) lines.
	visible := (p.height - 4) / linesPerResult
	if visible < 1 {
		visible = 1
	}
	if len(p.results) <= visible {
		return 0, len(p.results)
	}
	if p.cursor >= visible {
		start = p.cursor - visible + 1
	}
	return start, start + visible
}

// highlight renders the item name with the fuzzy-matched runes marked.
func highlight(r search.Result, base lipgloss.Style) string {
	name := r.Item.Name
	if r.Item.IsFolder() {
		name += "/"
	}
	if len(r.MatchedIndexes) == 0 {
		return base.Render(name)
	}

	matched := make(map[int]bool, len(r.MatchedIndexes))
	for _, i := range r.MatchedIndexes {
		matched[i] = true
	}

	var b strings.Builder
	// MatchedIndexes are byte offsets into the name.
	for i, ch := range name {
		if matched[i] {
			b.WriteString(matchStyle.Render(string(ch)))
		} else {
			b.WriteString(base.Render(string(ch)))
		}
	}
	return b.String()
}

func details(item model.Item) string {
	if item.IsFolder() {
		return "folder · " + item.ID
	}
	parts := []string{}
	if mt := item.Mime(); mt != "" {
		parts = append(parts, mt)
	}
	if size := item.Size(); size >= 0 {
		parts = append(parts, humanize.Bytes(uint64(size)))
	}
	parts = append(parts, item.ID)
	return strings.Join(parts, " · ")
}

// Selected returns the picked item, or nil if cancelled.
func (p Picker) Selected() *model.Item {
	if p.cancelled || !p.selected {
		return nil
	}
	if p.cursor < len(p.results) {
		item := p.results[p.cursor].Item
		return &item
	}
	return nil
}

// Cancelled returns true if the user cancelled the selection.
func (p Picker) Cancelled() bool {
	return p.cancelled
}
