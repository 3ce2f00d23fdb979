package itemstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/nikbrunner/drive/internal/itemstore"
	"github.com/nikbrunner/drive/internal/model"
	"github.com/nikbrunner/drive/internal/search"
)

func newClient(t *testing.T, handler http.Handler, retryMax int) *itemstore.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := itemstore.NewClient(itemstore.ClientParams{
		BaseURL:  srv.URL + "/",
		Tokens:   itemstore.StaticToken("tok-123"),
		RetryMax: retryMax,
	})
	assert.NilError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := itemstore.NewClient(itemstore.ClientParams{BaseURL: "  "})
	assert.Assert(t, errors.Is(err, itemstore.ErrMissingBaseURL))
}

func TestClient_ListChildren(t *testing.T) {
	var gotAuth, gotPath string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "f2", "parentId": "f1", "type": "FOLDER", "name": "2024"},
			{"id": "i1", "parentId": "f1", "type": "FILE", "name": "cat.png", "mimeType": "image/png", "sizeBytes": 12},
		})
	}), 0)

	items, err := c.ListChildren(context.Background(), "f1")
	assert.NilError(t, err)

	assert.Equal(t, gotAuth, "Bearer tok-123")
	assert.Equal(t, gotPath, "/v1/folders/f1/children")
	assert.Assert(t, is.Len(items, 2))
	assert.Assert(t, items[0].IsFolder())
	assert.Assert(t, items[1].IsImage())
}

func TestClient_MissingTokenSendsNothing(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	t.Setenv("DRIVE_TEST_TOKEN", "")
	c, err := itemstore.NewClient(itemstore.ClientParams{
		BaseURL: srv.URL,
		Tokens:  itemstore.EnvToken("DRIVE_TEST_TOKEN"),
	})
	assert.NilError(t, err)

	_, err = c.ListRoot(context.Background())
	assert.Assert(t, errors.Is(err, itemstore.ErrNoToken))
	err = c.Delete(context.Background(), "x")
	assert.Assert(t, errors.Is(err, itemstore.ErrNoToken))
	assert.Equal(t, hits.Load(), int32(0))
}

func TestClient_ErrorBodies(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		sentinel    error
		wantMessage string
	}{
		{
			name:        "json error field",
			status:      http.StatusNotFound,
			contentType: "application/json",
			body:        `{"error":"Folder not found"}`,
			sentinel:    itemstore.ErrNotFound,
			wantMessage: "Folder not found",
		},
		{
			name:        "json message field",
			status:      http.StatusForbidden,
			contentType: "application/json; charset=utf-8",
			body:        `{"message":"Only the owner can share"}`,
			sentinel:    itemstore.ErrForbidden,
			wantMessage: "Only the owner can share",
		},
		{
			name:        "html page",
			status:      http.StatusBadRequest,
			contentType: "text/html",
			body:        `<html><head><style>p{}</style></head><body><h1>Bad</h1><p>name  required</p></body></html>`,
			sentinel:    itemstore.ErrBadRequest,
			wantMessage: "Bad name required",
		},
		{
			name:        "plain text",
			status:      http.StatusNotFound,
			contentType: "text/plain",
			body:        "nope",
			sentinel:    itemstore.ErrNotFound,
			wantMessage: "nope",
		},
		{
			name:        "empty body",
			status:      http.StatusUnauthorized,
			sentinel:    itemstore.ErrForbidden,
			wantMessage: "API 401",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}), 0)

			_, err := c.ListRoot(context.Background())

			var apiErr *itemstore.APIError
			assert.Assert(t, errors.As(err, &apiErr))
			assert.Equal(t, apiErr.Status, tt.status)
			assert.Equal(t, apiErr.Message, tt.wantMessage)
			assert.Assert(t, errors.Is(err, itemstore.ErrAPIRequest))
			assert.Assert(t, errors.Is(err, tt.sentinel))
		})
	}
}

func TestClient_SearchQuery(t *testing.T) {
	var got map[string]string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Check(t, is.Equal(r.URL.Path, "/v1/search"))
		q := r.URL.Query()
		got = map[string]string{
			"q":        q.Get("q"),
			"scope":    q.Get("scope"),
			"folderId": q.Get("folderId"),
			"limit":    q.Get("limit"),
		}
		writeJSON(w, http.StatusOK, []any{})
	}), 0)

	folder := "f 1"
	_, err := c.Search(context.Background(), search.Request{
		Query:    "cat & dog",
		Scope:    model.ScopeShared,
		FolderID: &folder,
	})
	assert.NilError(t, err)
	assert.DeepEqual(t, got, map[string]string{
		"q":        "cat & dog",
		"scope":    "shared",
		"folderId": "f 1",
		"limit":    "50",
	})
}

func TestClient_FetchContent(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/files/named/download" {
			w.Header().Set("Content-Disposition", `attachment; filename="holiday photo.png"`)
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = io.WriteString(w, "PNGDATA")
	}), 0)

	content, err := c.FetchContent(context.Background(), "named")
	assert.NilError(t, err)
	data, err := io.ReadAll(content.Body)
	assert.NilError(t, err)
	assert.NilError(t, content.Body.Close())

	assert.Equal(t, string(data), "PNGDATA")
	assert.Equal(t, content.Filename, "holiday photo.png")
	assert.Equal(t, content.MimeType, "image/png")

	content, err = c.FetchContent(context.Background(), "bare")
	assert.NilError(t, err)
	defer content.Body.Close()
	assert.Equal(t, content.Filename, "bare")
}

func TestClient_Mutations(t *testing.T) {
	type call struct {
		method, path string
		body         map[string]any
	}
	var calls []call

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, call{r.Method, r.URL.Path, body})

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/folders":
			writeJSON(w, http.StatusCreated, map[string]any{"id": "new", "type": "FOLDER", "name": body["name"]})
		case r.Method == http.MethodPatch:
			writeJSON(w, http.StatusOK, map[string]any{"id": "x", "type": "FILE", "name": body["name"]})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}), 0)
	ctx := context.Background()

	parent := "p1"
	folder, err := c.CreateFolder(ctx, &parent, "Trips")
	assert.NilError(t, err)
	assert.Equal(t, folder.ID, "new")

	renamed, err := c.Rename(ctx, "x", "y.png")
	assert.NilError(t, err)
	assert.Equal(t, renamed.Name, "y.png")

	moved, err := c.Move(ctx, "x", "p2")
	assert.NilError(t, err)
	assert.Equal(t, moved.ID, "x")

	assert.NilError(t, c.Delete(ctx, "x"))
	assert.NilError(t, c.Share(ctx, "x", "user_2", model.RoleEditor))

	assert.Assert(t, is.Len(calls, 5))
	assert.DeepEqual(t, calls[0].body, map[string]any{"parentId": "p1", "name": "Trips"})
	assert.Equal(t, calls[1].method, http.MethodPatch)
	assert.Equal(t, calls[1].path, "/v1/items/x")
	assert.Equal(t, calls[2].method, http.MethodPatch)
	assert.DeepEqual(t, calls[2].body, map[string]any{"parentId": "p2"})
	assert.Equal(t, calls[3].method, http.MethodDelete)
	assert.Equal(t, calls[4].path, "/v1/items/x/share")
	assert.DeepEqual(t, calls[4].body, map[string]any{"targetClerkUserId": "user_2", "role": "EDITOR"})
}

func TestClient_RetriesReadsOnly(t *testing.T) {
	var gets, posts atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if gets.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"userId": "u1", "clerkUserId": "user_1"})
			return
		}
		posts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}), 2)
	ctx := context.Background()

	me, err := c.Me(ctx)
	assert.NilError(t, err)
	assert.Equal(t, me.ExternalID, "user_1")
	assert.Equal(t, gets.Load(), int32(2))

	_, err = c.CreateFolder(ctx, nil, "x")
	assert.Assert(t, errors.Is(err, itemstore.ErrAPIRequest))
	assert.Equal(t, posts.Load(), int32(1))
}

func TestUpload_DistinguishesFailures(t *testing.T) {
	var storageStatus atomic.Int32
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Check(t, r.Header.Get("Authorization") == "")
		assert.Check(t, is.Equal(r.Header.Get("Content-Type"), "image/png"))
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(int(storageStatus.Load()))
	}))
	defer storage.Close()

	var presignStatus atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status := int(presignStatus.Load()); status != http.StatusOK {
			writeJSON(w, status, map[string]string{"error": "Not allowed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"item":        map[string]any{"id": "up1", "type": "FILE", "name": "a.png"},
			"uploadUrl":   storage.URL + "/bucket/up1",
			"method":      "PUT",
			"contentType": "image/png",
		})
	}), 0)

	upload := func() (*model.Item, error) {
		return itemstore.Upload(context.Background(), c, c, itemstore.UploadRequest{
			Filename:  "a.png",
			MimeType:  "image/png",
			SizeBytes: 4,
		}, strings.NewReader("data"))
	}

	presignStatus.Store(http.StatusForbidden)
	_, err := upload()
	assert.Assert(t, errors.Is(err, itemstore.ErrPresignFailed))
	assert.Assert(t, !errors.Is(err, itemstore.ErrStoragePut))
	assert.Assert(t, errors.Is(err, itemstore.ErrForbidden))

	presignStatus.Store(http.StatusOK)
	storageStatus.Store(http.StatusForbidden)
	_, err = upload()
	assert.Assert(t, errors.Is(err, itemstore.ErrStoragePut))
	assert.Assert(t, !errors.Is(err, itemstore.ErrPresignFailed))

	storageStatus.Store(http.StatusOK)
	item, err := upload()
	assert.NilError(t, err)
	assert.Equal(t, item.ID, "up1")
}
