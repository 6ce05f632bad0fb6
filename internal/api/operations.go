package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteFile is one entry returned by List.
type RemoteFile struct {
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Checksum   string    `json:"checksum"`
}

type listResponse struct {
	Files []RemoteFile `json:"files"`
}

// List fetches the current server-side file listing.
func (c *Client) List(ctx context.Context) ([]RemoteFile, error) {
	resp, err := c.do(ctx, http.MethodGet, "/sync/files", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded listResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("api: decoding list response: %w", err)
	}

	return decoded.Files, nil
}

// DownloadResult is the body of a download response.
type DownloadResult struct {
	Content    string    `json:"content"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Checksum   string    `json:"checksum"`
}

// Download fetches a site's content by its server-side name. siteName may
// contain forward slashes (a folder path) and must NOT be URL-encoded —
// the server expects the raw path segment.
func (c *Client) Download(ctx context.Context, siteName string) (*DownloadResult, error) {
	resp, err := c.do(ctx, http.MethodGet, "/sync/download/"+siteName, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result DownloadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("api: decoding download response: %w", err)
	}

	return &result, nil
}

type uploadRequest struct {
	Filename   string    `json:"filename"`
	Content    string    `json:"content"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Upload pushes content for siteName (no .html suffix) to the server.
func (c *Client) Upload(ctx context.Context, siteName, content string, modifiedAt time.Time) error {
	body, err := json.Marshal(uploadRequest{Filename: siteName, Content: content, ModifiedAt: modifiedAt})
	if err != nil {
		return fmt.Errorf("api: encoding upload request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/sync/upload", body)
	if err != nil {
		return err
	}

	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse only

	return nil
}

// StatusResult is the body of a status response.
type StatusResult struct {
	ServerTime time.Time `json:"serverTime"`
}

// Status calls /sync/status and returns the server's reported clock.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	resp, err := c.do(ctx, http.MethodGet, "/sync/status", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result StatusResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("api: decoding status response: %w", err)
	}

	return &result, nil
}
