package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/canopy-fm/canopy/internal/config"
	"github.com/canopy-fm/canopy/internal/constants"
	"github.com/canopy-fm/canopy/internal/http"
	"github.com/canopy-fm/canopy/internal/models"
)

// wireIDKey is the backend's canonical identifier field; the client speaks
// "id" everywhere else. See RenameKey.
const (
	wireIDKey = "_id"
	uiIDKey   = "id"
)

// retryLogger implements the retryablehttp.LeveledLogger interface on top
// of zerolog. Only errors and warnings are surfaced.
type retryLogger struct{}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Error().Msgf("[retry] %s %v", msg, keysAndValues)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warn().Msgf("[retry] %s %v", msg, keysAndValues)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

// Client is the typed client for the file-manager backend.
type Client struct {
	httpClient   *nethttp.Client // retry-wrapped, for plain REST calls
	streamClient *nethttp.Client // no overall timeout, for SSE and blobs
	baseURL      string
	token        string
}

// NewClient creates a new backend client from the given configuration.
func NewClient(cfg *config.Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("API base URL is empty")
	}

	baseClient, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = baseClient
	retryClient.RetryMax = constants.RetryMax
	retryClient.RetryWaitMin = constants.RetryWaitMin
	retryClient.RetryWaitMax = constants.RetryWaitMax
	retryClient.Logger = &retryLogger{}

	streamClient, err := http.CreateStreamingClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure streaming client: %w", err)
	}

	return &Client{
		httpClient:   retryClient.StandardClient(),
		streamClient: streamClient,
		baseURL:      strings.TrimSuffix(cfg.APIBaseURL, "/"),
		token:        cfg.APIToken,
	}, nil
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// encodeBody marshals a request body and rewrites the identifier key to the
// wire convention. Only JSON bodies pass through here; multipart transfer
// bodies bypass the transform entirely.
func encodeBody(body any) (io.Reader, error) {
	if body == nil {
		return nil, nil
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var generic any
	if err := json.Unmarshal(jsonData, &generic); err != nil {
		return nil, fmt.Errorf("failed to normalize request body: %w", err)
	}

	wireData, err := json.Marshal(RenameKey(generic, uiIDKey, wireIDKey))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal wire body: %w", err)
	}
	return bytes.NewReader(wireData), nil
}

// decodeBody reads a response body, rewrites the wire identifier key back
// to the client convention, and unmarshals into out.
func decodeBody(r io.Reader, out any) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	uiData, err := json.Marshal(RenameKey(generic, wireIDKey, uiIDKey))
	if err != nil {
		return fmt.Errorf("failed to re-encode response: %w", err)
	}
	if err := json.Unmarshal(uiData, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request with authentication and the
// identifier key transform applied to the JSON body.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*nethttp.Response, error) {
	reqBody, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Msgf("API call failed: %s %s - %v", method, path, err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// checkStatus drains and wraps a non-2xx response into a StatusError.
func checkStatus(resp *nethttp.Response, method, path string, okCodes ...int) error {
	for _, code := range okCodes {
		if resp.StatusCode == code {
			return nil
		}
	}
	body, _ := io.ReadAll(resp.Body)
	return &StatusError{
		StatusCode: resp.StatusCode,
		Method:     method,
		Path:       path,
		Body:       string(body),
	}
}

// getJSON is the shared GET-and-decode helper.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "GET", path, nethttp.StatusOK); err != nil {
		return err
	}
	return decodeBody(resp.Body, out)
}

// RootFolders lists the top-level folders (entries with a null parent).
func (c *Client) RootFolders(ctx context.Context) (*models.Listing, error) {
	var listing models.Listing
	if err := c.getJSON(ctx, "/api/folders/root", &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// FolderTree fetches the full folder tree. The backend returns a forest of
// root folders, each with recursive children.
func (c *Client) FolderTree(ctx context.Context) ([]models.Entry, error) {
	var result struct {
		Results []models.Entry `json:"results"`
	}
	if err := c.getJSON(ctx, "/api/folders/tree", &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// ListOptions control pagination and sorting of a folder-contents query.
type ListOptions struct {
	Page     int
	PageSize int
	SortBy   string // "name", "size", "date"
	Asc      bool
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", fmt.Sprintf("%d", o.Page))
	}
	if o.PageSize > 0 {
		q.Set("pageSize", fmt.Sprintf("%d", o.PageSize))
	}
	if o.SortBy != "" {
		q.Set("sortBy", o.SortBy)
		order := "desc"
		if o.Asc {
			order = "asc"
		}
		q.Set("order", order)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// FolderContents lists the direct children of a folder.
func (c *Client) FolderContents(ctx context.Context, folderID string, opts ListOptions) (*models.Listing, error) {
	if err := ValidateEntryID(folderID); err != nil {
		return nil, err
	}
	var listing models.Listing
	path := fmt.Sprintf("/api/folders/%s/contents%s", folderID, opts.query())
	if err := c.getJSON(ctx, path, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// Breadcrumb returns the root-to-target id/name chain for a folder.
func (c *Client) Breadcrumb(ctx context.Context, folderID string) (*models.Breadcrumb, error) {
	if err := ValidateEntryID(folderID); err != nil {
		return nil, err
	}
	var result struct {
		Results []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"results"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/api/folders/%s/breadcrumb", folderID), &result); err != nil {
		return nil, err
	}

	crumb := &models.Breadcrumb{}
	for _, seg := range result.Results {
		crumb.IDs = append(crumb.IDs, seg.ID)
		crumb.Names = append(crumb.Names, seg.Name)
	}
	return crumb, nil
}

// FolderCounts returns a folder's direct subfolder and file counts.
func (c *Client) FolderCounts(ctx context.Context, folderID string) (*models.FolderCounts, error) {
	if err := ValidateEntryID(folderID); err != nil {
		return nil, err
	}
	var counts models.FolderCounts
	if err := c.getJSON(ctx, fmt.Sprintf("/api/folders/%s/counts", folderID), &counts); err != nil {
		return nil, err
	}
	return &counts, nil
}

// AggregateCounts returns the backend-wide folder and file totals.
func (c *Client) AggregateCounts(ctx context.Context) (*models.AggregateCounts, error) {
	var counts models.AggregateCounts
	if err := c.getJSON(ctx, "/api/counts", &counts); err != nil {
		return nil, err
	}
	return &counts, nil
}

// UnifiedSearch runs the combined folder+file search. Results arrive typed
// by the backend's "type" discriminator.
func (c *Client) UnifiedSearch(ctx context.Context, params models.SearchParams) (*models.Listing, error) {
	q := url.Values{}
	if params.Query != "" {
		q.Set("query", params.Query)
	}
	if params.Name != "" {
		q.Set("name", params.Name)
	}
	if params.Description != "" {
		q.Set("description", params.Description)
	}
	if params.From != nil {
		q.Set("from", params.From.UTC().Format(time.RFC3339))
	}
	if params.To != nil {
		q.Set("to", params.To.UTC().Format(time.RFC3339))
	}
	if params.Page > 0 {
		q.Set("page", fmt.Sprintf("%d", params.Page))
	}
	if params.PageSize > 0 {
		q.Set("pageSize", fmt.Sprintf("%d", params.PageSize))
	}

	var listing models.Listing
	if err := c.getJSON(ctx, "/api/search?"+q.Encode(), &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// CreateFolderRequest is the body for CreateFolder.
type CreateFolderRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	ParentID    *string `json:"parentId"`
}

// CreateFolder creates a folder under the given parent (nil = root).
func (c *Client) CreateFolder(ctx context.Context, req CreateFolderRequest) (*models.Entry, error) {
	resp, err := c.doRequest(ctx, "POST", "/api/folders", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == nethttp.StatusConflict {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrNameConflict, string(body))
	}
	if err := checkStatus(resp, "POST", "/api/folders", nethttp.StatusCreated, nethttp.StatusOK); err != nil {
		return nil, err
	}

	var entry models.Entry
	if err := decodeBody(resp.Body, &entry); err != nil {
		return nil, err
	}
	entry.Type = models.EntryTypeFolder
	return &entry, nil
}

// UpdateRequest carries the patchable entry fields. Nil fields are omitted.
type UpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	ParentID    *string `json:"parentId,omitempty"`
}

func (c *Client) patchEntry(ctx context.Context, kind, id string, req UpdateRequest) (*models.Entry, error) {
	if err := ValidateEntryID(id); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/api/%s/%s", kind, id)
	resp, err := c.doRequest(ctx, "PATCH", path, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == nethttp.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode == nethttp.StatusConflict {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrNameConflict, string(body))
	}
	if err := checkStatus(resp, "PATCH", path, nethttp.StatusOK); err != nil {
		return nil, err
	}

	var entry models.Entry
	if err := decodeBody(resp.Body, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateFolder patches a folder's name, description, or parent.
func (c *Client) UpdateFolder(ctx context.Context, folderID string, req UpdateRequest) (*models.Entry, error) {
	return c.patchEntry(ctx, "folders", folderID, req)
}

// UpdateFile patches a file's name, description, or containing folder.
func (c *Client) UpdateFile(ctx context.Context, fileID string, req UpdateRequest) (*models.Entry, error) {
	return c.patchEntry(ctx, "files", fileID, req)
}

// MoveFile moves a file into the given folder.
func (c *Client) MoveFile(ctx context.Context, fileID, folderID string) (*models.Entry, error) {
	if err := ValidateEntryID(folderID); err != nil {
		return nil, err
	}
	return c.UpdateFile(ctx, fileID, UpdateRequest{ParentID: &folderID})
}

func (c *Client) deleteEntry(ctx context.Context, kind, id string) error {
	if err := ValidateEntryID(id); err != nil {
		return err
	}
	path := fmt.Sprintf("/api/%s/%s", kind, id)
	resp, err := c.doRequest(ctx, "DELETE", path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == nethttp.StatusNotFound {
		return ErrNotFound
	}
	return checkStatus(resp, "DELETE", path, nethttp.StatusNoContent, nethttp.StatusOK)
}

// DeleteFolder deletes a folder and its contents.
func (c *Client) DeleteFolder(ctx context.Context, folderID string) error {
	return c.deleteEntry(ctx, "folders", folderID)
}

// DeleteFile deletes a file.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	return c.deleteEntry(ctx, "files", fileID)
}

// Download opens the blob stream for a file. The caller owns the returned
// ReadCloser. The response body is not passed through the key transform.
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, int64, error) {
	if err := ValidateEntryID(fileID); err != nil {
		return nil, 0, err
	}

	path := fmt.Sprintf("/api/files/%s/download", fileID)
	req, err := nethttp.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode == nethttp.StatusNotFound {
		resp.Body.Close()
		return nil, 0, ErrNotFound
	}
	if resp.StatusCode != nethttp.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, 0, &StatusError{StatusCode: resp.StatusCode, Method: "GET", Path: path, Body: string(body)}
	}
	return resp.Body, resp.ContentLength, nil
}
