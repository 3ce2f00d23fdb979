package layout

// LayoutConfig holds all layout-related configuration values.
type LayoutConfig struct {
	Pane  PaneConfig
	Modal ModalConfig
	Input InputConfig
	Text  TextConfig
}

// PaneConfig holds pane dimension configuration.
type PaneConfig struct {
	// HeightReduction is subtracted from terminal height for pane content.
	// Accounts for: app padding (1) + breadcrumb (1) + search bar (1) +
	// pane borders (2) + help bar (2) = 7
	HeightReduction int

	// MinHeight is the minimum pane height.
	MinHeight int

	// WidthOffset is subtracted before splitting the width between the
	// list and preview panes. Accounts for borders and app padding.
	WidthOffset int

	// ListWidthPercent is the share of the width given to the list pane.
	ListWidthPercent int

	// MinListWidth and MinPreviewWidth clamp the two panes.
	MinListWidth    int
	MinPreviewWidth int

	// ContentPadding is subtracted from pane width for item rendering.
	// Accounts for pane border/padding on each side.
	ContentPadding int
}

// ModalConfig holds modal dialog configuration.
type ModalConfig struct {
	// WidthPercent is the modal width as percentage of terminal width.
	WidthPercent int

	// MinWidth is the minimum modal width in characters.
	MinWidth int

	// MaxWidth is the maximum modal width in characters.
	MaxWidth int

	// HelpKeyColumnWidth: width of the key column in the help overlay.
	HelpKeyColumnWidth int
}

// InputConfig holds text input configuration.
type InputConfig struct {
	NameCharLimit   int
	PathCharLimit   int
	SearchCharLimit int

	// Display widths
	StandardWidth int // folder name, rename, share target, upload path
	SearchWidth   int
}

// TextConfig holds text truncation configuration.
type TextConfig struct {
	// Ellipsis is the string used to indicate truncation.
	Ellipsis string
}

// DefaultConfig returns the default layout configuration.
func DefaultConfig() LayoutConfig {
	return LayoutConfig{
		Pane: PaneConfig{
			HeightReduction:  7,
			MinHeight:        5,
			WidthOffset:      8,
			ListWidthPercent: 55,
			MinListWidth:     24,
			MinPreviewWidth:  20,
			ContentPadding:   4,
		},
		Modal: ModalConfig{
			WidthPercent:       40,
			MinWidth:           44,
			MaxWidth:           72,
			HelpKeyColumnWidth: 14,
		},
		Input: InputConfig{
			NameCharLimit:   255,
			PathCharLimit:   1024,
			SearchCharLimit: 100,
			StandardWidth:   40,
			SearchWidth:     40,
		},
		Text: TextConfig{
			Ellipsis: "...",
		},
	}
}
