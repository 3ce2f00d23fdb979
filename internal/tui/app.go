package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/nikbrunner/drive/internal/browser"
	"github.com/nikbrunner/drive/internal/logging"
	"github.com/nikbrunner/drive/internal/model"
	"github.com/nikbrunner/drive/internal/nav"
	"github.com/nikbrunner/drive/internal/tui/layout"
)

// opDoneMsg reports a finished browser call.
type opDoneMsg struct {
	op   string
	nav  bool // cursor returns to the top on success
	note string
	err  error
}

// App is the main bubbletea model for the drive browser. It owns no
// listing state of its own: everything drawn comes from the last
// browser.Snapshot.
type App struct {
	ctx          context.Context
	browser      *browser.Browser
	keys         KeyMap
	styles       Styles
	layoutConfig layout.LayoutConfig
	opener       func(path string) error
	clipboard    func(text string) error
	log          *zap.Logger

	snap     browser.Snapshot
	mode     Mode
	cursor   int
	cursorID string // keeps the selection across refreshes

	search       SearchState
	prompt       PromptState
	deleteTarget model.Item

	messageText string
	messageType MessageType

	// For gg command
	lastKeyWasG bool

	// Window dimensions
	width  int
	height int
}

// AppParams holds parameters for creating a new App.
type AppParams struct {
	Context      context.Context // for browser calls; defaults to Background
	Browser      *browser.Browser
	Keys         *KeyMap              // optional, uses default if nil
	Styles       *Styles              // optional, uses default if nil
	LayoutConfig *layout.LayoutConfig // optional, uses default if nil
	Opener       func(path string) error
	Clipboard    func(text string) error
}

// NewApp creates a new App with the given parameters.
func NewApp(params AppParams) App {
	keys := DefaultKeyMap()
	if params.Keys != nil {
		keys = *params.Keys
	}

	styles := DefaultStyles()
	if params.Styles != nil {
		styles = *params.Styles
	}

	layoutConfig := layout.DefaultConfig()
	if params.LayoutConfig != nil {
		layoutConfig = *params.LayoutConfig
	}

	ctx := params.Context
	if ctx == nil {
		ctx = context.Background()
	}

	opener := params.Opener
	if opener == nil {
		opener = OpenFile
	}
	clip := params.Clipboard
	if clip == nil {
		clip = clipboard.WriteAll
	}

	app := App{
		ctx:          ctx,
		browser:      params.Browser,
		keys:         keys,
		styles:       styles,
		layoutConfig: layoutConfig,
		opener:       opener,
		clipboard:    clip,
		log:          logging.Named("tui"),
		search:       NewSearchState(layoutConfig),
		prompt:       NewPromptState(layoutConfig),
		width:        80,
		height:       24,
	}
	app.syncSnapshot()
	return app
}

// WithDimensions returns a copy of the app sized for a terminal.
func (a App) WithDimensions(width, height int) App {
	a.width = width
	a.height = height
	return a
}

// Cursor returns the current cursor position.
func (a App) Cursor() int {
	return a.cursor
}

// Mode returns the current input mode.
func (a App) Mode() Mode {
	return a.mode
}

// Message returns the text of the message line.
func (a App) Message() string {
	return a.messageText
}

// Snapshot returns the browser state the app last drew from.
func (a App) Snapshot() browser.Snapshot {
	return a.snap
}

// Selected returns the item under the cursor.
func (a App) Selected() (model.Item, bool) {
	if a.cursor < 0 || a.cursor >= len(a.snap.Items) {
		return model.Item{}, false
	}
	return a.snap.Items[a.cursor], true
}

// Init implements tea.Model. It loads the first listing.
func (a App) Init() tea.Cmd {
	b := a.browser
	return a.run("refresh", false, func(ctx context.Context) (string, error) {
		return "", b.Refresh(ctx)
	})
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case ChangedMsg:
		a.syncSnapshot()
		return a, nil

	case opDoneMsg:
		a.syncSnapshot()
		if msg.err != nil {
			a.log.Warn("operation failed", zap.String("op", msg.op), zap.Error(msg.err))
			a.setMessage(MessageError, describeError(msg.err))
			return a, nil
		}
		if msg.nav {
			a.cursor = 0
			a.clampCursor()
		}
		if msg.note != "" {
			a.setMessage(MessageSuccess, msg.note)
		}
		return a, nil

	case tea.KeyMsg:
		switch a.mode {
		case ModeSearch:
			return a.updateSearch(msg)
		case ModePrompt:
			return a.updatePrompt(msg)
		case ModeConfirmDelete:
			return a.updateConfirmDelete(msg)
		case ModeHelp:
			return a.updateHelp(msg)
		}
		return a.updateNormal(msg)
	}

	return a, nil
}

// View implements tea.Model.
func (a App) View() string {
	return a.renderView()
}

func (a App) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Handle gg sequence
	if key.Matches(msg, a.keys.Top) {
		if a.lastKeyWasG {
			a.lastKeyWasG = false
			a.cursor = 0
			a.clampCursor()
			return a, nil
		}
		a.lastKeyWasG = true
		return a, nil
	}
	a.lastKeyWasG = false
	a.messageText = ""

	b := a.browser

	switch {
	case key.Matches(msg, a.keys.Quit):
		b.Close()
		return a, tea.Quit

	case key.Matches(msg, a.keys.Help):
		a.mode = ModeHelp

	case key.Matches(msg, a.keys.Down):
		a.moveCursor(1)

	case key.Matches(msg, a.keys.Up):
		a.moveCursor(-1)

	case key.Matches(msg, a.keys.Bottom):
		a.cursor = len(a.snap.Items) - 1
		a.clampCursor()

	case key.Matches(msg, a.keys.Left):
		return a, a.run("back", true, func(ctx context.Context) (string, error) {
			return "", b.Back(ctx)
		})

	case key.Matches(msg, a.keys.Right):
		item, ok := a.Selected()
		if !ok {
			break
		}
		if !item.IsFolder() {
			a.setMessage(MessageInfo, item.Name+" is a file, o opens its preview")
			break
		}
		return a, a.run("open", true, func(ctx context.Context) (string, error) {
			return "", b.Open(ctx, item)
		})

	case key.Matches(msg, a.keys.Jump):
		index, _ := strconv.Atoi(msg.String())
		return a, a.run("jump", true, func(ctx context.Context) (string, error) {
			return "", b.JumpTo(ctx, index)
		})

	case key.Matches(msg, a.keys.SwitchScope):
		return a, a.run("scope", true, func(ctx context.Context) (string, error) {
			return "", b.ToggleScope(ctx)
		})

	case key.Matches(msg, a.keys.Search):
		a.mode = ModeSearch
		a.search.Input.SetValue(a.snap.Query)
		a.search.Input.CursorEnd()
		return a, a.search.Input.Focus()

	case key.Matches(msg, a.keys.ClearSearch):
		if a.snap.Query != "" {
			b.ClearQuery()
			a.syncSnapshot()
		}

	case key.Matches(msg, a.keys.Refresh):
		return a, a.run("refresh", false, func(ctx context.Context) (string, error) {
			return "refreshed", b.Refresh(ctx)
		})

	case key.Matches(msg, a.keys.AddFolder):
		a.mode = ModePrompt
		return a, a.prompt.Start(PromptNewFolder, model.Item{})

	case key.Matches(msg, a.keys.Upload):
		a.mode = ModePrompt
		return a, a.prompt.Start(PromptUpload, model.Item{})

	case key.Matches(msg, a.keys.Rename):
		if item, ok := a.Selected(); ok {
			a.mode = ModePrompt
			return a, a.prompt.Start(PromptRename, item)
		}

	case key.Matches(msg, a.keys.Share):
		if item, ok := a.Selected(); ok {
			a.mode = ModePrompt
			return a, a.prompt.Start(PromptShare, item)
		}

	case key.Matches(msg, a.keys.Delete):
		if item, ok := a.Selected(); ok {
			a.deleteTarget = item
			a.mode = ModeConfirmDelete
		}

	case key.Matches(msg, a.keys.OpenPreview):
		a.openPreview()

	case key.Matches(msg, a.keys.YankID):
		if item, ok := a.Selected(); ok {
			if err := a.clipboard(item.ID); err != nil {
				a.setMessage(MessageError, "clipboard: "+err.Error())
			} else {
				a.setMessage(MessageSuccess, "copied id of "+item.Name)
			}
		}
	}

	return a, nil
}

func (a App) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.browser.ClearQuery()
		a.search.Input.Reset()
		a.search.Input.Blur()
		a.mode = ModeNormal
		a.syncSnapshot()
		return a, nil

	case "enter":
		a.search.Input.Blur()
		a.mode = ModeNormal
		a.cursor = 0
		a.clampCursor()
		return a, nil

	case "up", "ctrl+p":
		a.moveCursor(-1)
		return a, nil

	case "down", "ctrl+n":
		a.moveCursor(1)
		return a, nil
	}

	prev := a.search.Input.Value()
	var cmd tea.Cmd
	a.search.Input, cmd = a.search.Input.Update(msg)
	if value := a.search.Input.Value(); value != prev {
		a.browser.SetQuery(value)
		a.syncSnapshot()
	}
	return a, cmd
}

func (a App) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.prompt.Reset()
		a.mode = ModeNormal
		return a, nil

	case "tab":
		if a.prompt.Kind == PromptShare {
			a.prompt.ToggleRole()
		}
		return a, nil

	case "enter":
		kind, target, role := a.prompt.Kind, a.prompt.Target, a.prompt.Role
		value := strings.TrimSpace(a.prompt.Input.Value())
		a.prompt.Reset()
		a.mode = ModeNormal
		return a, a.submitPrompt(kind, target, role, value)
	}

	var cmd tea.Cmd
	a.prompt.Input, cmd = a.prompt.Input.Update(msg)
	return a, cmd
}

func (a App) submitPrompt(kind PromptKind, target model.Item, role model.ShareRole, value string) tea.Cmd {
	b := a.browser

	switch kind {
	case PromptNewFolder:
		return a.run("create", false, func(ctx context.Context) (string, error) {
			item, err := b.CreateFolder(ctx, value)
			if err != nil {
				return "", err
			}
			return "created " + item.Name, nil
		})

	case PromptRename:
		return a.run("rename", false, func(ctx context.Context) (string, error) {
			item, err := b.Rename(ctx, target.ID, value)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("renamed %s to %s", target.Name, item.Name), nil
		})

	case PromptShare:
		return a.run("share", false, func(ctx context.Context) (string, error) {
			if err := b.Share(ctx, target.ID, value, role); err != nil {
				return "", err
			}
			return fmt.Sprintf("shared %s with %s as %s", target.Name, value, strings.ToLower(role.String())), nil
		})

	case PromptUpload:
		path := expandHome(value)
		return a.run("upload", false, func(ctx context.Context) (string, error) {
			item, err := b.Upload(ctx, path)
			if err != nil {
				return "", err
			}
			note := "uploaded " + item.Name
			if size := item.Size(); size >= 0 {
				note += " (" + humanize.Bytes(uint64(size)) + ")"
			}
			return note, nil
		})
	}
	return nil
}

func (a App) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		target := a.deleteTarget
		a.deleteTarget = model.Item{}
		a.mode = ModeNormal
		b := a.browser
		return a, a.run("delete", false, func(ctx context.Context) (string, error) {
			if err := b.Delete(ctx, target.ID); err != nil {
				return "", err
			}
			return "deleted " + target.Name, nil
		})

	case "n", "esc", "q":
		a.deleteTarget = model.Item{}
		a.mode = ModeNormal
	}
	return a, nil
}

func (a App) updateHelp(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "?", "q", "esc":
		a.mode = ModeNormal
	}
	return a, nil
}

// openPreview hands the selected item's thumbnail file to the system viewer.
func (a *App) openPreview() {
	item, ok := a.Selected()
	if !ok {
		return
	}

	h := a.snap.Thumbs[item.ID]
	switch {
	case h != nil:
		if err := a.opener(h.Path); err != nil {
			a.setMessage(MessageError, "open preview: "+err.Error())
			return
		}
		a.setMessage(MessageInfo, "opened preview of "+item.Name)
	case a.snap.Pending[item.ID]:
		a.setMessage(MessageInfo, "preview of "+item.Name+" is still loading")
	default:
		a.setMessage(MessageInfo, "no preview for "+item.Name)
	}
}

// run wraps a browser call as a command reporting opDoneMsg.
func (a App) run(op string, nav bool, fn func(ctx context.Context) (string, error)) tea.Cmd {
	ctx := a.ctx
	return func() tea.Msg {
		note, err := fn(ctx)
		return opDoneMsg{op: op, nav: nav, note: note, err: err}
	}
}

// syncSnapshot reloads the browser snapshot and keeps the cursor on the
// same item when it is still listed.
func (a *App) syncSnapshot() {
	a.snap = a.browser.Snapshot()
	if a.mode != ModeSearch {
		a.search.Input.SetValue(a.snap.Query)
	}

	if a.cursorID != "" {
		for i, it := range a.snap.Items {
			if it.ID == a.cursorID {
				a.cursor = i
				return
			}
		}
	}
	a.clampCursor()
}

// clampCursor keeps the cursor inside the list and remembers the item
// under it. An empty list keeps the remembered id, so the selection
// survives a search round trip.
func (a *App) clampCursor() {
	n := len(a.snap.Items)
	if n == 0 {
		a.cursor = 0
		return
	}
	if a.cursor >= n {
		a.cursor = n - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
	a.cursorID = a.snap.Items[a.cursor].ID
}

func (a *App) moveCursor(delta int) {
	if len(a.snap.Items) == 0 {
		return
	}
	a.cursor += delta
	a.clampCursor()
}

func (a *App) setMessage(t MessageType, text string) {
	a.messageType = t
	a.messageText = text
}

// describeError turns browser errors into message line text.
func describeError(err error) string {
	switch {
	case errors.Is(err, nav.ErrIndexOutOfRange):
		return "no such crumb"
	case errors.Is(err, browser.ErrSharedRoot):
		return "pick a shared folder first: " + err.Error()
	}
	return err.Error()
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
