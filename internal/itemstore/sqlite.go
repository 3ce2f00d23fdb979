package itemstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nikbrunner/drive/internal/model"
	"github.com/nikbrunner/drive/internal/search"
)

const currentSchemaVersion = 2

// uploadScheme prefixes the upload URLs handed out by SQLiteStore.
const uploadScheme = "sqlite://"

// LocalUser is the identity used by a SQLiteStore opened without one.
const LocalUser = "local"

// SQLiteStore implements Store and Uploader on a SQLite database. It applies
// the same access rules as the hosted item store: owners have full access,
// shares grant VIEWER or EDITOR on a root item and everything below it.
type SQLiteStore struct {
	db   *sql.DB
	path string
	user string
}

// NewSQLiteStore opens (or creates) the database at path, acting as user.
func NewSQLiteStore(path, user string) (*SQLiteStore, error) {
	if user == "" {
		user = LocalUser
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// foreign_keys is per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	s := &SQLiteStore{db: db, path: path, user: user}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// As returns a store sharing the same database but acting as another user.
// Closing either closes the database.
func (s *SQLiteStore) As(user string) *SQLiteStore {
	return &SQLiteStore{db: s.db, path: s.path, user: user}
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		version = 0
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return fmt.Errorf("migrate v1: %w", err)
		}
	}

	if version < currentSchemaVersion {
		if err := s.migrateV2(); err != nil {
			return fmt.Errorf("migrate v2: %w", err)
		}
	}

	return nil
}

// migrateV1 creates the item and share tables.
func (s *SQLiteStore) migrateV1() error {
	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY NOT NULL,
			parent_id TEXT,
			owner_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			mime_type TEXT,
			size_bytes INTEGER,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (parent_id) REFERENCES items(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_items_parent_id ON items(parent_id);
		CREATE INDEX IF NOT EXISTS idx_items_owner_root ON items(owner_id) WHERE parent_id IS NULL;

		CREATE TABLE IF NOT EXISTS shares (
			item_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (item_id, target_id),
			FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_shares_target ON shares(target_id);

		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// migrateV2 stores file bytes next to the item. Files stay pending (hidden)
// until their content arrives.
func (s *SQLiteStore) migrateV2() error {
	migration := `
		ALTER TABLE items ADD COLUMN content BLOB;
		ALTER TABLE items ADD COLUMN pending INTEGER NOT NULL DEFAULT 0;
		UPDATE schema_version SET version = 2;
	`
	_, err := s.db.Exec(migration)
	return err
}

const itemColumns = `id, parent_id, kind, name, mime_type, size_bytes, created_at, updated_at`

// ListRoot lists the user's own root items.
func (s *SQLiteStore) ListRoot(ctx context.Context) ([]model.Item, error) {
	return s.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE parent_id IS NULL AND owner_id = ? AND pending = 0
		ORDER BY kind DESC, name
	`, s.user)
}

// ListChildren lists a folder the user can read.
func (s *SQLiteStore) ListChildren(ctx context.Context, folderID string) ([]model.Item, error) {
	folder, err := s.readable(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if !folder.IsFolder() {
		return nil, fmt.Errorf("%w: %s is not a folder", ErrBadRequest, folderID)
	}

	return s.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE parent_id = ? AND pending = 0
		ORDER BY kind DESC, name
	`, folderID)
}

// ListSharedRoots lists root items other users shared with this user.
func (s *SQLiteStore) ListSharedRoots(ctx context.Context) ([]model.Item, error) {
	return s.queryItems(ctx, `
		SELECT i.id, i.parent_id, i.kind, i.name, i.mime_type, i.size_bytes, i.created_at, i.updated_at
		FROM items i JOIN shares sh ON sh.item_id = i.id
		WHERE sh.target_id = ? AND i.owner_id <> ? AND i.pending = 0
		ORDER BY i.kind DESC, i.name
	`, s.user, s.user)
}

// Search fuzzy-ranks item names inside the requested scope, or inside the
// requested folder's subtree when FolderID is set.
func (s *SQLiteStore) Search(ctx context.Context, req search.Request) ([]model.Item, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return []model.Item{}, nil
	}

	var candidates []model.Item
	var err error
	switch {
	case req.FolderID != nil:
		if _, err := s.readable(ctx, *req.FolderID); err != nil {
			return nil, err
		}
		candidates, err = s.queryItems(ctx, `
			WITH RECURSIVE tree(id) AS (
				SELECT id FROM items WHERE parent_id = ?
				UNION ALL
				SELECT i.id FROM items i JOIN tree t ON i.parent_id = t.id
			)
			SELECT `+itemColumns+` FROM items
			WHERE id IN (SELECT id FROM tree) AND pending = 0
		`, *req.FolderID)
	case req.Scope == model.ScopeShared:
		candidates, err = s.queryItems(ctx, `
			WITH RECURSIVE tree(id) AS (
				SELECT i.id FROM items i JOIN shares sh ON sh.item_id = i.id
				WHERE sh.target_id = ? AND i.owner_id <> ?
				UNION ALL
				SELECT i.id FROM items i JOIN tree t ON i.parent_id = t.id
			)
			SELECT `+itemColumns+` FROM items
			WHERE id IN (SELECT id FROM tree) AND pending = 0
		`, s.user, s.user)
	default:
		candidates, err = s.queryItems(ctx, `
			SELECT `+itemColumns+` FROM items
			WHERE owner_id = ? AND pending = 0
		`, s.user)
	}
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = search.DefaultLimit
	}
	return search.Items(search.Rank(query, candidates, limit)), nil
}

// FetchContent returns a file's stored bytes.
func (s *SQLiteStore) FetchContent(ctx context.Context, id string) (*Content, error) {
	item, err := s.readable(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.IsFolder() {
		return nil, fmt.Errorf("%w: %s is a folder", ErrBadRequest, id)
	}

	var data []byte
	if err := s.db.QueryRowContext(ctx, "SELECT content FROM items WHERE id = ?", id).Scan(&data); err != nil {
		return nil, err
	}

	return &Content{
		Body:     io.NopCloser(bytes.NewReader(data)),
		Filename: item.Name,
		MimeType: item.Mime(),
		Size:     int64(len(data)),
	}, nil
}

// CreateFolder creates a folder under parentID, or at the user's root.
func (s *SQLiteStore) CreateFolder(ctx context.Context, parentID *string, name string) (*model.Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
	}

	owner, err := s.ownerForNewChild(ctx, parentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := model.Item{
		ID:        model.GenerateID(),
		ParentID:  parentID,
		Kind:      model.KindFolder,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.insert(ctx, item, owner, false); err != nil {
		return nil, err
	}
	return &item, nil
}

// Rename renames an item the user can write.
func (s *SQLiteStore) Rename(ctx context.Context, id, name string) (*model.Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
	}

	item, err := s.writable(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		"UPDATE items SET name = ?, updated_at = ? WHERE id = ?",
		name, now.Format(time.RFC3339Nano), id,
	); err != nil {
		return nil, err
	}

	item.Name = name
	item.UpdatedAt = now
	return item, nil
}

// Move re-parents an item into a folder. Both need write access, and a
// folder cannot move into its own subtree. The moved subtree takes the
// destination's owner; shares on a moved root are dropped.
func (s *SQLiteStore) Move(ctx context.Context, id, parentID string) (*model.Item, error) {
	item, err := s.writable(ctx, id)
	if err != nil {
		return nil, err
	}

	owner, err := s.ownerForNewChild(ctx, &parentID)
	if err != nil {
		return nil, err
	}

	var inside int
	err = s.db.QueryRowContext(ctx, `
		WITH RECURSIVE tree(id) AS (
			SELECT id FROM items WHERE id = ?
			UNION ALL
			SELECT i.id FROM items i JOIN tree t ON i.parent_id = t.id
		)
		SELECT COUNT(*) FROM tree WHERE id = ?
	`, id, parentID).Scan(&inside)
	if err != nil {
		return nil, err
	}
	if inside > 0 {
		return nil, fmt.Errorf("%w: cannot move %s into its own subtree", ErrBadRequest, id)
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE items SET parent_id = ?, updated_at = ? WHERE id = ?",
		parentID, now.Format(time.RFC3339Nano), id,
	); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		WITH RECURSIVE tree(id) AS (
			SELECT id FROM items WHERE id = ?
			UNION ALL
			SELECT i.id FROM items i JOIN tree t ON i.parent_id = t.id
		)
		UPDATE items SET owner_id = ? WHERE id IN (SELECT id FROM tree)
	`, id, owner); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM shares WHERE item_id = ?", id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	item.ParentID = &parentID
	item.UpdatedAt = now
	return item, nil
}

// Delete removes an item and its subtree.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.writable(ctx, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	return err
}

// Share grants target a role on one of the user's root items.
func (s *SQLiteStore) Share(ctx context.Context, id, target string, role model.ShareRole) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("%w: share target is required", ErrBadRequest)
	}

	item, owner, err := s.authorize(ctx, id, false)
	if err != nil {
		return err
	}
	if owner != s.user {
		return fmt.Errorf("%w: only the owner can share", ErrForbidden)
	}
	if item.ParentID != nil {
		return fmt.Errorf("%w: only root items can be shared", ErrBadRequest)
	}
	if target == s.user {
		return fmt.Errorf("%w: cannot share with yourself", ErrBadRequest)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shares (item_id, target_id, role, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (item_id, target_id) DO UPDATE SET role = excluded.role
	`, id, target, role.String(), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// PresignUpload registers a pending file and returns a sqlite:// target.
func (s *SQLiteStore) PresignUpload(ctx context.Context, req UploadRequest) (*PresignedUpload, error) {
	name := strings.TrimSpace(req.Filename)
	if name == "" {
		return nil, fmt.Errorf("%w: %w: filename is required", ErrPresignFailed, ErrBadRequest)
	}

	owner, err := s.ownerForNewChild(ctx, req.ParentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPresignFailed, err)
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	size := req.SizeBytes

	now := time.Now().UTC()
	item := model.Item{
		ID:        model.GenerateID(),
		ParentID:  req.ParentID,
		Kind:      model.KindFile,
		Name:      name,
		MimeType:  &mimeType,
		SizeBytes: &size,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.insert(ctx, item, owner, true); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPresignFailed, err)
	}

	return &PresignedUpload{
		Item:        item,
		UploadURL:   uploadScheme + item.ID,
		Method:      "PUT",
		ContentType: mimeType,
	}, nil
}

// PutObject stores the body of a pending file and makes it visible.
func (s *SQLiteStore) PutObject(ctx context.Context, target *PresignedUpload, body io.Reader, size int64) error {
	id, ok := strings.CutPrefix(target.UploadURL, uploadScheme)
	if !ok || id == "" {
		return fmt.Errorf("%w: unsupported upload URL %q", ErrStoragePut, target.UploadURL)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrStoragePut, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("%w: got %d bytes, expected %d", ErrStoragePut, len(data), size)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET content = ?, size_bytes = ?, pending = 0, updated_at = ?
		WHERE id = ? AND pending = 1
	`, data, len(data), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoragePut, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: no pending upload %s", ErrStoragePut, id)
	}
	return nil
}

// Me returns the local identity.
func (s *SQLiteStore) Me(ctx context.Context) (*model.Identity, error) {
	return &model.Identity{UserID: s.user, ExternalID: s.user}, nil
}

// ownerForNewChild returns who will own a new item under parentID: the
// parent's owner when the user may write there, the user at the root.
func (s *SQLiteStore) ownerForNewChild(ctx context.Context, parentID *string) (string, error) {
	if parentID == nil {
		return s.user, nil
	}
	parent, err := s.writable(ctx, *parentID)
	if err != nil {
		return "", err
	}
	if !parent.IsFolder() {
		return "", fmt.Errorf("%w: parent %s is not a folder", ErrBadRequest, *parentID)
	}
	_, owner, err := s.lookup(ctx, *parentID)
	return owner, err
}

// readable returns the item if the user owns it or it sits below a root
// shared with the user.
func (s *SQLiteStore) readable(ctx context.Context, id string) (*model.Item, error) {
	item, _, err := s.authorize(ctx, id, false)
	return item, err
}

// writable is readable plus the EDITOR requirement for shared items.
func (s *SQLiteStore) writable(ctx context.Context, id string) (*model.Item, error) {
	item, _, err := s.authorize(ctx, id, true)
	return item, err
}

func (s *SQLiteStore) authorize(ctx context.Context, id string, write bool) (*model.Item, string, error) {
	item, owner, err := s.lookup(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if owner == s.user {
		return item, owner, nil
	}

	rootID, err := s.rootOf(ctx, id)
	if err != nil {
		return nil, "", err
	}

	var roleName string
	err = s.db.QueryRowContext(ctx,
		"SELECT role FROM shares WHERE item_id = ? AND target_id = ?", rootID, s.user,
	).Scan(&roleName)
	if errors.Is(err, sql.ErrNoRows) {
		// Unshared items are indistinguishable from missing ones.
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, "", err
	}

	role, err := model.ParseShareRole(roleName)
	if err != nil {
		return nil, "", err
	}
	if write && !role.CanWrite() {
		return nil, "", fmt.Errorf("%w: %s role cannot modify %s", ErrForbidden, role, id)
	}
	return item, owner, nil
}

// rootOf walks parent links up to the item's root.
func (s *SQLiteStore) rootOf(ctx context.Context, id string) (string, error) {
	var rootID string
	err := s.db.QueryRowContext(ctx, `
		WITH RECURSIVE up(id, parent_id) AS (
			SELECT id, parent_id FROM items WHERE id = ?
			UNION ALL
			SELECT i.id, i.parent_id FROM items i JOIN up u ON i.id = u.parent_id
		)
		SELECT id FROM up WHERE parent_id IS NULL LIMIT 1
	`, id).Scan(&rootID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rootID, err
}

// lookup loads a visible item and its owner.
func (s *SQLiteStore) lookup(ctx context.Context, id string) (*model.Item, string, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+", owner_id FROM items WHERE id = ? AND pending = 0", id)

	var owner string
	item, err := scanItem(row, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, "", err
	}
	return item, owner, nil
}

func (s *SQLiteStore) insert(ctx context.Context, item model.Item, owner string, pending bool) error {
	p := 0
	if pending {
		p = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, parent_id, owner_id, kind, name, mime_type, size_bytes, created_at, updated_at, pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, item.ParentID, owner, item.Kind.String(), item.Name,
		item.MimeType, item.SizeBytes,
		item.CreatedAt.Format(time.RFC3339Nano), item.UpdatedAt.Format(time.RFC3339Nano), p,
	)
	return err
}

func (s *SQLiteStore) queryItems(ctx context.Context, query string, args ...any) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanItem reads itemColumns followed by any extra destinations.
func scanItem(row scanner, extra ...any) (*model.Item, error) {
	var item model.Item
	var parentID, mimeType sql.NullString
	var size sql.NullInt64
	var kind, createdAt, updatedAt string

	dest := []any{&item.ID, &parentID, &kind, &item.Name, &mimeType, &size, &createdAt, &updatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if parentID.Valid {
		item.ParentID = &parentID.String
	}
	if mimeType.Valid {
		item.MimeType = &mimeType.String
	}
	if size.Valid {
		item.SizeBytes = &size.Int64
	}
	if kind == model.KindFolder.String() {
		item.Kind = model.KindFolder
	} else {
		item.Kind = model.KindFile
	}
	item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	item.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &item, nil
}

// DefaultSQLitePath returns the default local database path:
// ~/.local/share/drive/drive.db
func DefaultSQLitePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".local", "share", "drive", "drive.db"), nil
}
