// batch.go: the HTTP operations against the storage service API
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/awsl-project/awsl-pic-pipeline/internal/blob"
)

// webpageMediaEmptyMarker is the remote error naming the unembeddable-media
// condition, which triggers the degradation cascade instead of a plain retry.
const webpageMediaEmptyMarker = "WEBPAGE_MEDIA_EMPTY"

// groupUploadRequest is the payload of the media-group endpoint.
type groupUploadRequest struct {
	URLs    []string `json:"urls"`
	Caption string   `json:"caption,omitempty"`
	ChatID  string   `json:"chat_id,omitempty"`
}

// groupUploadResponse is the envelope of the media-group endpoint: one
// rendition list per input URL.
type groupUploadResponse struct {
	Success bool                  `json:"success"`
	Error   string                `json:"error"`
	Files   [][]blob.TelegramFile `json:"files"`
}

// documentUploadResponse is the envelope of the single-file endpoint.
type documentUploadResponse struct {
	Success bool                `json:"success"`
	Error   string              `json:"error"`
	Files   []blob.TelegramFile `json:"files"`
}

// batchResult carries the outcome of one batch upload. files is nil on
// failure; webpageMediaEmpty marks the failure as individually recoverable.
type batchResult struct {
	files             [][]blob.TelegramFile
	webpageMediaEmpty bool
}

// uploadBatch posts one batch of at most BatchSize URLs, retrying transient
// and rate-limit failures up to MaxRetries. The unembeddable-media error
// returns immediately so the caller can degrade rather than retry.
func (c *Client) uploadBatch(urls []string, caption string) batchResult {
	apiURL := c.config.BaseURL + "/api/upload/group"

	payload := groupUploadRequest{
		URLs:    urls,
		Caption: caption,
		ChatID:  c.config.ChatID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		serviceLogger.Error("Failed to marshal upload payload", "error", err)
		return batchResult{}
	}

	var lastError string
	for attempt := 0; attempt < MaxRetries; attempt++ {
		data, requestErr := c.postJSON(apiURL, body)
		if requestErr != nil {
			lastError = requestErr.Error()
			serviceLogger.Warn("Request failed",
				"attempt", attempt+1, "max_attempts", MaxRetries, "error", lastError)
			c.sleep(retryDelay(attempt, lastError))
			continue
		}

		var resp groupUploadResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			lastError = fmt.Sprintf("invalid JSON response: %v", err)
			serviceLogger.Warn("JSON parse failed",
				"attempt", attempt+1, "max_attempts", MaxRetries, "error", lastError)
			c.sleep(retryDelay(attempt, lastError))
			continue
		}

		if !resp.Success {
			lastError = resp.Error
			if lastError == "" {
				lastError = "unknown error"
			}
			if isWebpageMediaEmpty(lastError) {
				serviceLogger.Warn("Unembeddable media reported", "error", lastError)
				return batchResult{webpageMediaEmpty: true}
			}
			delay := retryDelay(attempt, lastError)
			if isRateLimited(lastError) {
				serviceLogger.Warn("Upload rate limited",
					"attempt", attempt+1, "max_attempts", MaxRetries,
					"delay", delay, "error", lastError)
			} else {
				serviceLogger.Warn("Upload failed",
					"attempt", attempt+1, "max_attempts", MaxRetries, "error", lastError)
			}
			c.sleep(delay)
			continue
		}

		// A success envelope must carry one rendition list per submitted URL;
		// anything else would break the per-pic result accounting downstream.
		if len(resp.Files) != len(urls) {
			lastError = fmt.Sprintf("response carries %d rendition lists for %d urls",
				len(resp.Files), len(urls))
			serviceLogger.Warn("Misaligned upload response",
				"attempt", attempt+1, "max_attempts", MaxRetries, "error", lastError)
			c.sleep(retryDelay(attempt, lastError))
			continue
		}

		serviceLogger.Info("Uploaded images to storage", "count", len(resp.Files))
		return batchResult{files: resp.Files}
	}

	serviceLogger.Error("Upload failed after retries",
		"max_attempts", MaxRetries, "error", lastError)
	return batchResult{}
}

// uploadAsDocument is the last stage of the degradation cascade: the image
// bytes are downloaded locally and re-uploaded as a generic document. Only
// rate-limit errors are retried; anything else fails the upload. Returns nil
// on failure.
func (c *Client) uploadAsDocument(url string) []blob.TelegramFile {
	apiURL := c.config.BaseURL + "/api/upload"

	imageData := c.downloadImage(url)
	if imageData == nil {
		serviceLogger.Warn("Cannot download image, skipping document upload", "url", url)
		return nil
	}

	body, contentType, err := c.documentForm(imageData)
	if err != nil {
		serviceLogger.Warn("Failed to build document form", "error", err)
		return nil
	}

	for attempt := 0; attempt < MaxRetries; attempt++ {
		data, requestErr := c.post(apiURL, contentType, body)
		if requestErr != nil {
			serviceLogger.Warn("Document upload request failed", "error", requestErr)
			return nil
		}

		var resp documentUploadResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			serviceLogger.Warn("Document upload JSON parse failed", "error", err)
			return nil
		}

		if !resp.Success {
			respErr := resp.Error
			if respErr == "" {
				respErr = "unknown error"
			}
			if !isRateLimited(respErr) {
				serviceLogger.Warn("Document upload failed (non-retriable)", "error", respErr)
				return nil
			}
			delay := retryDelay(attempt, respErr)
			serviceLogger.Warn("Document upload rate limited",
				"attempt", attempt+1, "max_attempts", MaxRetries,
				"delay", delay, "error", respErr)
			c.sleep(delay)
			continue
		}

		serviceLogger.Info("Uploaded as document", "files", len(resp.Files))
		return resp.Files
	}

	serviceLogger.Error("Document upload failed after rate limit retries",
		"max_attempts", MaxRetries)
	return nil
}

// documentForm builds the multipart body for a document upload.
func (c *Client) documentForm(imageData []byte) (body []byte, contentType string, err error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, "", fmt.Errorf("writing file part: %w", err)
	}

	if err := writer.WriteField("media_type", "document"); err != nil {
		return nil, "", fmt.Errorf("writing media_type field: %w", err)
	}
	if c.config.ChatID != "" {
		if err := writer.WriteField("chat_id", c.config.ChatID); err != nil {
			return nil, "", fmt.Errorf("writing chat_id field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

// downloadImage fetches the raw image bytes, returning nil on any failure.
func (c *Client) downloadImage(url string) []byte {
	serviceLogger.Info("Downloading image", "url", url)

	ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		serviceLogger.Warn("Failed to create download request", "url", url, "error", err)
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		serviceLogger.Warn("Failed to download image", "url", url, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		serviceLogger.Warn("Failed to download image",
			"url", url, "status_code", resp.StatusCode)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		serviceLogger.Warn("Failed to read image body", "url", url, "error", err)
		return nil
	}
	serviceLogger.Info("Downloaded image", "url", url, "bytes", len(data))
	return data
}

// postJSON posts a JSON body and returns the raw response bytes.
func (c *Client) postJSON(url string, body []byte) ([]byte, error) {
	return c.post(url, "application/json", body)
}

func (c *Client) post(url, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create POST request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Api-Token", c.config.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}
