package itemstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/nikbrunner/drive/internal/logging"
	"github.com/nikbrunner/drive/internal/metrics"
	"github.com/nikbrunner/drive/internal/model"
	"github.com/nikbrunner/drive/internal/search"
)

// retryLogger adapts zap to retryablehttp.LeveledLogger.
type retryLogger struct {
	s *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) { l.s.Errorw(msg, keysAndValues...) }
func (l retryLogger) Info(msg string, keysAndValues ...interface{})  { l.s.Debugw(msg, keysAndValues...) }
func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) { l.s.Debugw(msg, keysAndValues...) }
func (l retryLogger) Warn(msg string, keysAndValues ...interface{})  { l.s.Warnw(msg, keysAndValues...) }

// Client is the HTTP implementation of Store and Uploader.
type Client struct {
	baseURL string
	tokens  TokenSource
	log     *zap.Logger

	readClient   *http.Client // GETs, retried on transient failures
	writeClient  *http.Client // mutations, never retried
	uploadClient *http.Client // presigned storage targets, no bearer token
}

// ClientParams holds parameters for creating a new Client.
type ClientParams struct {
	BaseURL  string
	Tokens   TokenSource
	Timeout  time.Duration // defaults to 30s
	RetryMax int           // retries for GET requests
}

// NewClient creates a new item store client.
// Returns an error if the base URL is not set.
func NewClient(params ClientParams) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(params.BaseURL), "/")
	if base == "" {
		return nil, ErrMissingBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	log := logging.Named("itemstore")

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{Timeout: timeout}
	retryClient.RetryMax = params.RetryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = retryLogger{s: log.Sugar()}
	// Hand the last response back so its error body can be read.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:      base,
		tokens:       params.Tokens,
		log:          log,
		readClient:   retryClient.StandardClient(),
		writeClient:  &http.Client{Timeout: timeout},
		uploadClient: &http.Client{},
	}, nil
}

// ListRoot lists the caller's root folder.
func (c *Client) ListRoot(ctx context.Context) ([]model.Item, error) {
	var items []model.Item
	err := c.doJSON(ctx, http.MethodGet, "/v1/root/children", "/v1/root/children", nil, &items)
	return items, err
}

// ListChildren lists a folder.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]model.Item, error) {
	var items []model.Item
	path := "/v1/folders/" + url.PathEscape(folderID) + "/children"
	err := c.doJSON(ctx, http.MethodGet, "/v1/folders/{id}/children", path, nil, &items)
	return items, err
}

// ListSharedRoots lists items other users shared with the caller.
func (c *Client) ListSharedRoots(ctx context.Context) ([]model.Item, error) {
	var items []model.Item
	err := c.doJSON(ctx, http.MethodGet, "/v1/shared", "/v1/shared", nil, &items)
	return items, err
}

// Search searches item names within a scope and optional folder.
func (c *Client) Search(ctx context.Context, req search.Request) ([]model.Item, error) {
	q := url.Values{}
	q.Set("q", req.Query)
	q.Set("scope", req.Scope.String())
	if req.FolderID != nil {
		q.Set("folderId", *req.FolderID)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = search.DefaultLimit
	}
	q.Set("limit", strconv.Itoa(limit))

	var items []model.Item
	err := c.doJSON(ctx, http.MethodGet, "/v1/search", "/v1/search?"+q.Encode(), nil, &items)
	return items, err
}

// FetchContent downloads a file's bytes. The caller must close Body.
func (c *Client) FetchContent(ctx context.Context, id string) (*Content, error) {
	path := "/v1/files/" + url.PathEscape(id) + "/download"
	resp, err := c.do(ctx, http.MethodGet, "/v1/files/{id}/download", path, nil)
	if err != nil {
		return nil, err
	}

	filename := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if filename == "" {
		filename = id
	}

	return &Content{
		Body:     resp.Body,
		Filename: filename,
		MimeType: resp.Header.Get("Content-Type"),
		Size:     resp.ContentLength,
	}, nil
}

// CreateFolder creates a folder under parentID (nil = root).
func (c *Client) CreateFolder(ctx context.Context, parentID *string, name string) (*model.Item, error) {
	body := map[string]any{"parentId": parentID, "name": name}
	var item model.Item
	if err := c.doJSON(ctx, http.MethodPost, "/v1/folders", "/v1/folders", body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Rename renames an item.
func (c *Client) Rename(ctx context.Context, id, name string) (*model.Item, error) {
	path := "/v1/items/" + url.PathEscape(id)
	var item model.Item
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/items/{id}", path, map[string]string{"name": name}, &item); err != nil {
		return nil, err
	}
	if item.ID == "" {
		// Server answered 204; report what we asked for.
		item = model.Item{ID: id, Name: name}
	}
	return &item, nil
}

// Move re-parents an item into the folder parentID.
func (c *Client) Move(ctx context.Context, id, parentID string) (*model.Item, error) {
	path := "/v1/items/" + url.PathEscape(id)
	var item model.Item
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/items/{id}", path, map[string]string{"parentId": parentID}, &item); err != nil {
		return nil, err
	}
	if item.ID == "" {
		item = model.Item{ID: id, ParentID: &parentID}
	}
	return &item, nil
}

// Delete deletes an item and everything below it.
func (c *Client) Delete(ctx context.Context, id string) error {
	path := "/v1/items/" + url.PathEscape(id)
	return c.doJSON(ctx, http.MethodDelete, "/v1/items/{id}", path, nil, nil)
}

// Share grants target access to a root item.
func (c *Client) Share(ctx context.Context, id, target string, role model.ShareRole) error {
	path := "/v1/items/" + url.PathEscape(id) + "/share"
	body := map[string]string{"targetClerkUserId": target, "role": role.String()}
	return c.doJSON(ctx, http.MethodPost, "/v1/items/{id}/share", path, body, nil)
}

// PresignUpload registers a file and returns where to send its bytes.
func (c *Client) PresignUpload(ctx context.Context, req UploadRequest) (*PresignedUpload, error) {
	var out PresignedUpload
	if err := c.doJSON(ctx, http.MethodPost, "/v1/files/presign-upload", "/v1/files/presign-upload", req, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPresignFailed, err)
	}
	if out.UploadURL == "" {
		return nil, fmt.Errorf("%w: empty upload URL", ErrPresignFailed)
	}
	return &out, nil
}

// PutObject sends body to a presigned target. The target carries its own
// authorization, so no bearer token is attached.
func (c *Client) PutObject(ctx context.Context, target *PresignedUpload, body io.Reader, size int64) error {
	method := target.Method
	if method == "" {
		method = http.MethodPut
	}
	contentType := target.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, err := http.NewRequestWithContext(ctx, method, target.UploadURL, body)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrStoragePut, err)
	}
	req.Header.Set("Content-Type", contentType)
	if size >= 0 {
		req.ContentLength = size
	}

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoragePut, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w (%d)", ErrStoragePut, resp.StatusCode)
	}
	return nil
}

// Me returns the signed-in identity.
func (c *Client) Me(ctx context.Context) (*model.Identity, error) {
	var id model.Identity
	if err := c.doJSON(ctx, http.MethodGet, "/v1/me", "/v1/me", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// doJSON sends body as JSON and decodes the answer into out (if non-nil).
func (c *Client) doJSON(ctx context.Context, method, route, path string, body, out any) error {
	resp, err := c.do(ctx, method, route, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// do sends an authenticated request. Non-2xx answers become *APIError and
// the body is closed; otherwise the caller owns resp.Body.
func (c *Client) do(ctx context.Context, method, route, path string, body any) (*http.Response, error) {
	if c.tokens == nil {
		return nil, ErrNoToken
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNoToken
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.writeClient
	if method == http.MethodGet {
		client = c.readClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		metrics.ObserveRequest(method, route, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %v", ErrAPIRequest, err)
	}
	metrics.ObserveRequest(method, route, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{
			Method:  method,
			Route:   route,
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, resp.Header.Get("Content-Type"), data),
		}
		c.log.Debug("api error", zap.String("method", method), zap.String("route", route), zap.Int("status", resp.StatusCode))
		return nil, apiErr
	}

	return resp, nil
}

// filenameFromDisposition returns the filename parameter of a
// Content-Disposition header, or "".
func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
