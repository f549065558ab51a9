package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
)

// UploadIDHeader correlates the transfer call with the init phase. The
// transfer and the progress SSE stream share only this identifier; they
// may land on different transports or backend replicas.
const UploadIDHeader = "x-upload-id"

// InitUploadRequest is the first phase of the upload handshake.
type InitUploadRequest struct {
	FileName  string  `json:"fileName"`
	SizeBytes int64   `json:"sizeBytes"`
	FolderID  *string `json:"folderId"`
}

// InitUpload requests an upload identifier from the server for the given
// file name, size, and target folder.
func (c *Client) InitUpload(ctx context.Context, req InitUploadRequest) (string, error) {
	resp, err := c.doRequest(ctx, "POST", "/api/uploads/init", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "POST", "/api/uploads/init", nethttp.StatusCreated, nethttp.StatusOK); err != nil {
		return "", err
	}

	var result struct {
		UploadID string `json:"uploadId"`
	}
	if err := decodeBody(resp.Body, &result); err != nil {
		return "", err
	}
	if result.UploadID == "" {
		return "", fmt.Errorf("upload init returned no upload id")
	}
	return result.UploadID, nil
}

// TransferUpload sends the file content as a multipart body tagged with the
// upload identifier. The multipart payload is opaque to the identifier key
// transform. Progress is not reported here; the server pushes it over the
// per-identifier SSE channel.
func (c *Client) TransferUpload(ctx context.Context, uploadID, fileName string, content io.Reader) (*UploadResult, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile("file", fileName)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, content); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := nethttp.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/uploads", pr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(UploadIDHeader, uploadID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload transfer failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "POST", "/api/uploads", nethttp.StatusCreated, nethttp.StatusOK, nethttp.StatusAccepted); err != nil {
		return nil, err
	}

	var result UploadResult
	if err := decodeBody(resp.Body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UploadResult is the backend's acknowledgement of a completed transfer.
type UploadResult struct {
	FileID   string `json:"fileId,omitempty"`
	UploadID string `json:"uploadId,omitempty"`
	Status   string `json:"status,omitempty"`
}
