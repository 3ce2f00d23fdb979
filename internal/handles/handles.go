// Package handles turns fetched thumbnail bytes into displayable resources.
// A handle is a temp file the renderer (or the system image viewer) can
// open; it must be revoked exactly once when the thumbnail leaves the view.
package handles

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/nikbrunner/drive/internal/logging"
)

// Handle is a live displayable resource for one item.
type Handle struct {
	Seq    uint64 // unique per manager
	ItemID string
	Path   string
	Size   int64
	Format string // decoder name, empty if the bytes are not a known image
	Width  int
	Height int
}

// Describe returns a short human-readable summary, e.g. "png 640×480, 12 kB".
func (h *Handle) Describe() string {
	size := humanize.Bytes(uint64(h.Size))
	if h.Format == "" {
		return size
	}
	return fmt.Sprintf("%s %d×%d, %s", h.Format, h.Width, h.Height, size)
}

// TempFiles manages handles backed by files in a private session directory.
type TempFiles struct {
	dir string
	log *zap.Logger

	mu     sync.Mutex
	seq    uint64
	live   map[uint64]*Handle
	closed bool
}

// NewTempFiles creates a session directory under parent ("" = os.TempDir()).
func NewTempFiles(parent string) (*TempFiles, error) {
	dir, err := os.MkdirTemp(parent, "drive-thumbs-")
	if err != nil {
		return nil, fmt.Errorf("create handle directory: %w", err)
	}
	return &TempFiles{
		dir:  dir,
		log:  logging.Named("handles"),
		live: make(map[uint64]*Handle),
	}, nil
}

// Dir returns the session directory.
func (m *TempFiles) Dir() string {
	return m.dir
}

// Create writes data to a new file and returns its handle. Bytes that are not
// a recognised image still produce a handle.
func (m *TempFiles) Create(ctx context.Context, itemID string, data []byte) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := &Handle{ItemID: itemID, Size: int64(len(data))}
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		h.Format = format
		h.Width = cfg.Width
		h.Height = cfg.Height
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("handle manager closed")
	}
	m.seq++
	h.Seq = m.seq
	m.mu.Unlock()

	name := fmt.Sprintf("%d-%s", h.Seq, sanitize(itemID))
	if h.Format != "" {
		name += "." + h.Format
	}
	h.Path = filepath.Join(m.dir, name)

	if err := os.WriteFile(h.Path, data, 0600); err != nil {
		return nil, fmt.Errorf("write handle: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		_ = os.Remove(h.Path)
		return nil, fmt.Errorf("handle manager closed")
	}
	m.live[h.Seq] = h
	return h, nil
}

// Revoke releases the handle. Revoking twice, or revoking nil, is a no-op.
func (m *TempFiles) Revoke(h *Handle) {
	if h == nil {
		return
	}

	m.mu.Lock()
	_, ok := m.live[h.Seq]
	delete(m.live, h.Seq)
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
		m.log.Debug("remove handle file", zap.String("path", h.Path), zap.Error(err))
	}
}

// Live returns the number of handles created and not yet revoked.
func (m *TempFiles) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Close revokes every live handle and removes the session directory.
func (m *TempFiles) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	leaked := len(m.live)
	m.live = make(map[uint64]*Handle)
	m.mu.Unlock()

	if leaked > 0 {
		m.log.Debug("closing with live handles", zap.Int("count", leaked))
	}
	return os.RemoveAll(m.dir)
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
