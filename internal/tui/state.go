package tui

import (
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nikbrunner/drive/internal/model"
	"github.com/nikbrunner/drive/internal/tui/layout"
)

// Mode is what the keyboard currently drives.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
	ModePrompt
	ModeConfirmDelete
	ModeHelp
)

// MessageType picks the style of the message line.
type MessageType int

const (
	MessageInfo MessageType = iota
	MessageSuccess
	MessageError
)

// PromptKind says what a submitted prompt does.
type PromptKind int

const (
	PromptNewFolder PromptKind = iota
	PromptRename
	PromptShare
	PromptUpload
)

// PromptState holds the single-line input used by the create, rename,
// share and upload dialogs.
type PromptState struct {
	Kind   PromptKind
	Input  textinput.Model
	Target model.Item // item being renamed or shared
	Role   model.ShareRole

	cfg layout.InputConfig
}

// NewPromptState creates an idle prompt.
func NewPromptState(cfg layout.LayoutConfig) PromptState {
	return PromptState{
		Input: newInput(cfg.Input.StandardWidth, cfg.Input.NameCharLimit),
		cfg:   cfg.Input,
	}
}

// Start prepares the prompt for kind. Target is ignored for kinds that
// act on the current folder.
func (p *PromptState) Start(kind PromptKind, target model.Item) tea.Cmd {
	p.Reset()
	p.Kind = kind
	p.Target = target
	p.Role = model.RoleViewer

	switch kind {
	case PromptNewFolder:
		p.Input.Placeholder = "Folder name"
		p.Input.CharLimit = p.cfg.NameCharLimit
	case PromptRename:
		p.Input.Placeholder = "New name"
		p.Input.CharLimit = p.cfg.NameCharLimit
		p.Input.SetValue(target.Name)
		p.Input.CursorEnd()
	case PromptShare:
		p.Input.Placeholder = "User id"
		p.Input.CharLimit = p.cfg.NameCharLimit
	case PromptUpload:
		p.Input.Placeholder = "Path to a local file"
		p.Input.CharLimit = p.cfg.PathCharLimit
	}
	return p.Input.Focus()
}

// ToggleRole flips the share role between viewer and editor.
func (p *PromptState) ToggleRole() {
	if p.Role == model.RoleViewer {
		p.Role = model.RoleEditor
	} else {
		p.Role = model.RoleViewer
	}
}

// Reset clears the prompt for a new session.
func (p *PromptState) Reset() {
	p.Input.Reset()
	p.Input.Blur()
	p.Target = model.Item{}
	p.Role = model.RoleViewer
}

// SearchState holds the search bar input.
type SearchState struct {
	Input textinput.Model
}

// NewSearchState creates a SearchState with an initialized input.
func NewSearchState(cfg layout.LayoutConfig) SearchState {
	input := newInput(cfg.Input.SearchWidth, cfg.Input.SearchCharLimit)
	input.Placeholder = "Search..."
	input.Prompt = "/"
	return SearchState{Input: input}
}

// newInput returns a text input with a steady cursor. Blinking would
// keep a timer running for every open prompt.
func newInput(width, limit int) textinput.Model {
	input := textinput.New()
	input.Width = width
	input.CharLimit = limit
	input.Prompt = ""
	input.Cursor.SetMode(cursor.CursorStatic)
	return input
}
