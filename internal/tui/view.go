package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nikbrunner/drive/internal/model"
	"github.com/nikbrunner/drive/internal/search"
	"github.com/nikbrunner/drive/internal/tui/layout"
	"github.com/nikbrunner/drive/internal/view"
)

// Thumbnail markers in front of image names.
const (
	markCached  = "▣ "
	markPending = "… "
	markMissing = "□ "
	markNone    = "  "
)

// renderView creates the list + preview view.
func (a App) renderView() string {
	switch a.mode {
	case ModeHelp:
		return a.renderHelpOverlay()
	case ModePrompt, ModeConfirmDelete:
		return a.renderModal()
	}

	paneHeight := layout.CalculatePaneHeight(a.height, a.layoutConfig.Pane)
	widths := layout.CalculatePaneWidths(a.width, a.layoutConfig.Pane)

	columns := lipgloss.JoinHorizontal(
		lipgloss.Top,
		a.renderListPane(widths.List, paneHeight),
		a.renderPreviewPane(widths.Preview, paneHeight),
	)

	content := a.styles.App.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			a.renderBreadcrumb(),
			a.renderSearchBar(),
			columns,
			a.renderHelpBar(),
		),
	)

	// Use Place to ensure exact terminal dimensions and prevent overflow
	return lipgloss.Place(a.width, a.height, lipgloss.Left, lipgloss.Top, content)
}

// renderBreadcrumb renders the scope tabs and the numbered crumb trail.
// The numbers are the 0-9 jump keys.
func (a App) renderBreadcrumb() string {
	var tabs strings.Builder
	for _, s := range model.Scopes {
		if s == a.snap.Scope {
			tabs.WriteString(a.styles.ScopeActive.Render("[" + s.String() + "]"))
		} else {
			tabs.WriteString(a.styles.Scope.Render(" " + s.String() + " "))
		}
	}

	parts := make([]string, len(a.snap.Crumbs))
	for i, c := range a.snap.Crumbs {
		parts[i] = strconv.Itoa(i) + ":" + c.Name
	}
	path := strings.Join(parts, " / ")

	// Terminal width minus app padding (2+2), the tabs and a gap.
	available := a.width - 4 - layout.VisibleLength(tabs.String()) - 2
	path = layout.TruncateFromLeft(path, available, a.layoutConfig.Text)

	return tabs.String() + " " + a.styles.Breadcrumb.Render(path)
}

// renderSearchBar shows the query being typed or the active one, with
// the state of the search behind it.
func (a App) renderSearchBar() string {
	var bar string
	switch {
	case a.mode == ModeSearch:
		bar = a.search.Input.View()
	case a.snap.Query != "":
		bar = "/" + a.snap.Query
	default:
		return ""
	}

	if status := a.searchStatus(); status != "" {
		bar += "  " + status
	}
	return a.styles.SearchBar.Render(bar)
}

// searchStatus describes the search behind the current Searching view.
func (a App) searchStatus() string {
	s, ok := a.snap.State.(view.Searching)
	if !ok {
		return ""
	}

	req := search.Request{Query: s.Query, Scope: s.In, FolderID: s.FolderID}
	res := a.snap.Search
	switch {
	case !res.Completed(req):
		return a.styles.Meta.Render("searching...")
	case res.Err != nil:
		return a.styles.Error.Render("search failed: " + res.Err.Error())
	case len(res.Results) == 1:
		return a.styles.Meta.Render("1 match")
	default:
		return a.styles.Meta.Render(fmt.Sprintf("%d matches", len(res.Results)))
	}
}

func (a App) renderListPane(width, height int) string {
	var content strings.Builder

	visibleHeight := layout.CalculateVisibleHeight(height, 0)
	itemWidth := layout.CalculateItemWidth(width, a.layoutConfig.Pane)
	items := a.snap.Items

	if len(items) == 0 {
		content.WriteString(a.styles.Empty.Render(a.emptyText()))
	} else {
		offset := layout.CalculateViewportOffset(a.cursor, len(items), visibleHeight)
		for i := offset; i < len(items) && i < offset+visibleHeight; i++ {
			content.WriteString(a.renderItem(items[i], i == a.cursor, itemWidth) + "\n")
		}
	}

	style := a.styles.PaneActive
	if a.mode == ModeSearch {
		style = a.styles.Pane
	}
	return style.
		Width(width).
		Height(height).
		Render(strings.TrimRight(content.String(), "\n"))
}

func (a App) emptyText() string {
	if s, ok := a.snap.State.(view.Searching); ok {
		req := search.Request{Query: s.Query, Scope: s.In, FolderID: s.FolderID}
		switch {
		case !a.snap.Search.Completed(req):
			return "(searching)"
		case a.snap.Search.Err != nil:
			return "(search failed)"
		}
		return "(no matches)"
	}
	if a.snap.Err != nil {
		return "(could not load: " + a.snap.Err.Error() + ")"
	}
	return "(empty)"
}

func (a App) renderItem(item model.Item, isCursor bool, maxWidth int) string {
	prefix := markNone
	if item.IsImage() {
		switch {
		case a.snap.Thumbs[item.ID] != nil:
			prefix = markCached
		case a.snap.Pending[item.ID]:
			prefix = markPending
		default:
			prefix = markMissing
		}
	}

	suffix := ""
	if item.IsFolder() {
		suffix = "/"
	}

	line, _ := layout.TruncateWithPrefixSuffix(item.Name, maxWidth, prefix, suffix, a.layoutConfig.Text)
	if isCursor {
		return a.styles.ItemSelected.Render(layout.PadRight(line, maxWidth))
	}
	return a.styles.Item.Render(line)
}

func (a App) renderPreviewPane(width, height int) string {
	var content strings.Builder
	itemWidth := layout.CalculateItemWidth(width, a.layoutConfig.Pane)
	text := a.layoutConfig.Text

	item, ok := a.Selected()
	if !ok {
		content.WriteString(a.styles.Empty.Render("(nothing selected)"))
	} else {
		name, _ := layout.TruncateText(item.Name, itemWidth, text)
		content.WriteString(a.styles.Title.Render(name) + "\n\n")

		if item.IsFolder() {
			content.WriteString(a.styles.Meta.Render("folder") + "\n")
		} else {
			if mt := item.Mime(); mt != "" {
				content.WriteString(a.styles.Meta.Render(mt) + "\n")
			}
			if size := item.Size(); size >= 0 {
				content.WriteString(a.styles.Meta.Render(humanize.Bytes(uint64(size))) + "\n")
			}
		}
		if !item.UpdatedAt.IsZero() {
			content.WriteString(a.styles.Meta.Render("updated "+humanize.Time(item.UpdatedAt)) + "\n")
		}

		if item.IsImage() {
			content.WriteString("\n")
			switch h := a.snap.Thumbs[item.ID]; {
			case h != nil:
				desc, _ := layout.TruncateText("preview: "+h.Describe(), itemWidth, text)
				content.WriteString(a.styles.Thumb.Render(desc) + "\n")
			case a.snap.Pending[item.ID]:
				content.WriteString(a.styles.ThumbPending.Render("preview: loading") + "\n")
			default:
				content.WriteString(a.styles.Empty.Render("preview: unavailable") + "\n")
			}
		}

		id, _ := layout.TruncateText("id "+item.ID, itemWidth, text)
		content.WriteString("\n" + a.styles.Meta.Render(id))
	}

	return a.styles.Pane.
		Width(width).
		Height(height).
		Render(strings.TrimRight(content.String(), "\n"))
}

// renderHelpBar renders the message line and the contextual hints.
func (a App) renderHelpBar() string {
	lines := []string{""}
	if a.messageText != "" {
		lines[0] = a.renderMessageLine()
	}
	if hints := a.renderHints(a.getContextualHints()); hints != "" {
		lines = append(lines, hints)
	}
	return strings.Join(lines, "\n")
}

// renderMessageLine renders the styled message with prefix icon based on type.
func (a App) renderMessageLine() string {
	switch a.messageType {
	case MessageError:
		return a.styles.Error.Render("✗ " + a.messageText)
	case MessageSuccess:
		return a.styles.Success.Render("✓ " + a.messageText)
	default:
		return a.styles.Info.Render(a.messageText)
	}
}

func (a App) renderModal() string {
	var title, content strings.Builder

	modalWidth := layout.CalculateModalWidth(a.width, a.layoutConfig.Modal)
	modalStyle := a.styles.Modal.Width(modalWidth)

	switch a.mode {
	case ModePrompt:
		switch a.prompt.Kind {
		case PromptNewFolder:
			title.WriteString("New Folder\n\n")
			content.WriteString("In: " + a.cwdName() + "\n\n")
			content.WriteString("Name:\n")
		case PromptRename:
			title.WriteString("Rename\n\n")
			content.WriteString("\"" + a.prompt.Target.Name + "\"\n\n")
			content.WriteString("New name:\n")
		case PromptShare:
			title.WriteString("Share\n\n")
			content.WriteString("\"" + a.prompt.Target.Name + "\"\n\n")
			content.WriteString("Role: " + strings.ToLower(a.prompt.Role.String()) + "\n\n")
			content.WriteString("With user:\n")
		case PromptUpload:
			title.WriteString("Upload File\n\n")
			content.WriteString("Into: " + a.cwdName() + "\n\n")
			content.WriteString("Path:\n")
		}
		content.WriteString(a.prompt.Input.View())

	case ModeConfirmDelete:
		kind := "File"
		if a.deleteTarget.IsFolder() {
			kind = "Folder"
		}
		title.WriteString("Delete " + kind + "?\n\n")
		content.WriteString("\"" + a.deleteTarget.Name + "\"\n\n")
		if a.deleteTarget.IsFolder() {
			content.WriteString(a.styles.Help.Render("Everything inside goes with it. This cannot be undone.") + "\n\n")
		} else {
			content.WriteString(a.styles.Help.Render("This cannot be undone.") + "\n\n")
		}
		content.WriteString(a.renderHintsInline([]Hint{
			{Key: "y/Enter", Desc: "confirm"},
			{Key: "Esc", Desc: "cancel"},
		}))
	}

	modalContent := a.styles.Title.Render(title.String()) + content.String()

	// Place modal in center, then add help bar at bottom
	modal := lipgloss.Place(
		a.width,
		a.height-3, // Leave room for help bar
		lipgloss.Center,
		lipgloss.Center,
		modalStyle.Render(modalContent),
	)

	return lipgloss.JoinVertical(lipgloss.Left, modal, a.renderHelpBar())
}

// renderHelpOverlay lists every key binding in two columns.
func (a App) renderHelpOverlay() string {
	groups := a.keys.helpGroups()
	keyCol := lipgloss.NewStyle().Width(a.layoutConfig.Modal.HelpKeyColumnWidth)

	column := func(gs []helpGroup) string {
		var b strings.Builder
		for i, g := range gs {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(a.styles.Title.Render(g.Title) + "\n")
			for _, binding := range g.Bindings {
				h := binding.Help()
				b.WriteString(keyCol.Render(h.Key) + h.Desc + "\n")
			}
		}
		return b.String()
	}

	half := (len(groups) + 1) / 2
	cols := lipgloss.JoinHorizontal(lipgloss.Top, column(groups[:half]), "    ", column(groups[half:]))
	body := cols + "\n" + a.styles.Help.Render("[?/esc] close")

	// Top-left aligned, brutalist style
	return lipgloss.Place(
		a.width,
		a.height,
		lipgloss.Left,
		lipgloss.Top,
		lipgloss.NewStyle().Padding(1, 2).Render(body),
	)
}

// cwdName is the name of the current folder.
func (a App) cwdName() string {
	if n := len(a.snap.Crumbs); n > 0 {
		return a.snap.Crumbs[n-1].Name
	}
	return a.snap.Scope.Title()
}
