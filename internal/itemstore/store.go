// Package itemstore talks to the item store: listings, search, raw content,
// and the mutations behind the browser.
package itemstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nikbrunner/drive/internal/model"
	"github.com/nikbrunner/drive/internal/search"
)

var (
	ErrNoToken        = errors.New("no session token (are you signed in?)")
	ErrMissingBaseURL = errors.New("item store base URL not configured")
	ErrAPIRequest     = errors.New("API request failed")
	ErrNotFound       = errors.New("item not found")
	ErrForbidden      = errors.New("access denied")
	ErrBadRequest     = errors.New("bad request")
	ErrPresignFailed  = errors.New("upload presign failed")
	ErrStoragePut     = errors.New("upload to storage failed")
)

// Store is the item store API consumed by the browser.
type Store interface {
	ListRoot(ctx context.Context) ([]model.Item, error)
	ListChildren(ctx context.Context, folderID string) ([]model.Item, error)
	ListSharedRoots(ctx context.Context) ([]model.Item, error)
	Search(ctx context.Context, req search.Request) ([]model.Item, error)
	FetchContent(ctx context.Context, id string) (*Content, error)

	CreateFolder(ctx context.Context, parentID *string, name string) (*model.Item, error)
	Rename(ctx context.Context, id, name string) (*model.Item, error)
	Move(ctx context.Context, id, parentID string) (*model.Item, error)
	Delete(ctx context.Context, id string) error
	Share(ctx context.Context, id, target string, role model.ShareRole) error
	PresignUpload(ctx context.Context, req UploadRequest) (*PresignedUpload, error)

	Me(ctx context.Context) (*model.Identity, error)
}

// Uploader sends file bytes to a presigned upload target.
type Uploader interface {
	PutObject(ctx context.Context, target *PresignedUpload, body io.Reader, size int64) error
}

// Content is the raw body of a file. The caller must close Body.
type Content struct {
	Body     io.ReadCloser
	Filename string
	MimeType string
	Size     int64 // -1 if unknown
}

// UploadRequest describes a file about to be uploaded.
type UploadRequest struct {
	ParentID  *string `json:"parentId"`
	Filename  string  `json:"filename"`
	MimeType  string  `json:"mimeType"`
	SizeBytes int64   `json:"sizeBytes"`
}

// PresignedUpload is the item store's answer to UploadRequest.
type PresignedUpload struct {
	Item        model.Item `json:"item"`
	UploadURL   string     `json:"uploadUrl"`
	Method      string     `json:"method"`
	ContentType string     `json:"contentType"`
}

// List returns the listing for a folder in a scope: the scope root when
// folderID is nil, the folder's children otherwise.
func List(ctx context.Context, s Store, scope model.Scope, folderID *string) ([]model.Item, error) {
	if folderID != nil {
		return s.ListChildren(ctx, *folderID)
	}
	if scope == model.ScopeShared {
		return s.ListSharedRoots(ctx)
	}
	return s.ListRoot(ctx)
}

// Upload presigns and then sends the body. A failure in the first step wraps
// ErrPresignFailed, a failure in the second wraps ErrStoragePut.
func Upload(ctx context.Context, s Store, u Uploader, req UploadRequest, body io.Reader) (*model.Item, error) {
	if req.MimeType == "" {
		req.MimeType = "application/octet-stream"
	}

	target, err := s.PresignUpload(ctx, req)
	if err != nil {
		if errors.Is(err, ErrPresignFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPresignFailed, err)
	}

	if err := u.PutObject(ctx, target, body, req.SizeBytes); err != nil {
		if errors.Is(err, ErrStoragePut) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrStoragePut, err)
	}

	return &target.Item, nil
}
