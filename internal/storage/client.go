// Package storage implements the client for the awsl-telegram-storage
// service: batched media-group uploads with retry, rate-limit handling, and a
// degradation cascade for media the service cannot embed from a URL.
package storage

import (
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/awsl-project/awsl-pic-pipeline/internal/blob"
	"github.com/awsl-project/awsl-pic-pipeline/internal/errors"
	"github.com/awsl-project/awsl-pic-pipeline/internal/logging"
)

// Package-level logger specific to the storage service client
var (
	serviceLogger   *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "storage.log")
	serviceLevelVar.Set(slog.LevelInfo)

	serviceLogger, closeLogger, err = logging.NewFileLogger(logFilePath, "storage", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize storage file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		serviceLogger = slog.New(fbHandler).With("service", "storage")
		closeLogger = func() error { return nil }
	}
}

const (
	// BatchSize is the maximum number of URLs per media-group request.
	BatchSize = 6
	// MaxRetries bounds retry attempts per batch or document upload.
	MaxRetries = 10
	// RetryDelay is the base for the escalating backoff between attempts.
	RetryDelay = 5 * time.Second
	// IndividualRetryDelay paces single-item uploads inside the degradation
	// cascade.
	IndividualRetryDelay = 3 * time.Second

	requestTimeout  = 60 * time.Second
	downloadTimeout = 30 * time.Second
)

// Config holds the storage service endpoint and credential.
type Config struct {
	BaseURL  string
	APIToken string
	ChatID   string // optional, forwarded with uploads when set
	Timeout  time.Duration
}

// Client talks to the awsl-telegram-storage HTTP API. Sleeping is a field so
// tests can run the retry and pacing logic without real delays.
type Client struct {
	config     Config
	httpClient *http.Client
	sleep      func(time.Duration)
}

// NewClient creates a storage client. Base URL and API token are required;
// their absence fails fast before any upload is attempted.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" || cfg.APIToken == "" {
		return nil, errors.Newf("storage.baseurl and storage.apitoken must be configured").
			Component("storage").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = requestTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		sleep: time.Sleep,
	}, nil
}

// FileURL builds the stable public URL for an uploaded file.
func (c *Client) FileURL(fileID string) string {
	return c.config.BaseURL + "/file/" + fileID
}

// Close releases idle connections held by the client and flushes the service
// log file.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Failed to close storage file logger: %v", err)
		}
	}
}

// UploadMediaGroup uploads every pic of one group, splitting into batches of
// six URLs. Batches rejected with the unembeddable-media error degrade to
// individual uploads and then to document uploads. The returned result
// accounts for every input blob group exactly once.
func (c *Client) UploadMediaGroup(group *blob.UploadGroup) (*blob.UploadResult, error) {
	if len(group.BlobGroups) == 0 {
		return nil, errors.Newf("at least 1 blob group required").
			Component("storage").
			Category(errors.CategoryValidation).
			Context("awsl_id", group.AwslID).
			Build()
	}

	urls := make([]string, 0, len(group.BlobGroups))
	for i := range group.BlobGroups {
		urls = append(urls, firstVariantURL(&group.BlobGroups[i]))
	}

	// allFiles aligns with urls; a nil entry marks a failed upload.
	allFiles := make([][]blob.TelegramFile, 0, len(urls))

	for start := 0; start < len(urls); start += BatchSize {
		end := min(start+BatchSize, len(urls))
		batchURLs := urls[start:end]

		result := c.uploadBatch(batchURLs, group.Caption)
		switch {
		case result.files != nil:
			allFiles = append(allFiles, result.files...)
		case result.webpageMediaEmpty:
			serviceLogger.Info("Unembeddable media detected, retrying batch individually",
				"awsl_id", group.AwslID, "batch_size", len(batchURLs))
			allFiles = append(allFiles, c.uploadIndividually(batchURLs, group.Caption)...)
		default:
			serviceLogger.Error("Batch upload failed, marking batch as failed",
				"awsl_id", group.AwslID, "batch_size", len(batchURLs))
			for range batchURLs {
				allFiles = append(allFiles, nil)
			}
		}
	}

	result := &blob.UploadResult{}
	for i := range group.BlobGroups {
		bg := &group.BlobGroups[i]
		if len(allFiles[i]) > 0 {
			result.Succeeded = append(result.Succeeded, blob.BlobGroup{
				ID:     bg.ID,
				AwslID: bg.AwslID,
				Blobs:  blob.FilesToBlobs(allFiles[i], c.FileURL),
			})
		} else {
			result.Failed = append(result.Failed, *bg)
			serviceLogger.Warn("Failed blob group", "pic_id", bg.ID)
		}
	}

	serviceLogger.Info("Upload result",
		"awsl_id", group.AwslID,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed))
	return result, nil
}

// uploadIndividually runs the degradation cascade for one rejected batch:
// each URL is retried as a single-item upload, then as a document upload.
// Returns one entry per URL, nil where both fell through.
func (c *Client) uploadIndividually(urls []string, caption string) [][]blob.TelegramFile {
	files := make([][]blob.TelegramFile, 0, len(urls))
	for i, url := range urls {
		single := c.uploadBatch([]string{url}, caption)
		switch {
		case len(single.files) > 0:
			files = append(files, single.files[0])
			serviceLogger.Info("Uploaded image as photo", "index", i+1, "total", len(urls))
		default:
			serviceLogger.Info("Photo upload failed, trying as document",
				"index", i+1, "total", len(urls), "url", url)
			documentFiles := c.uploadAsDocument(url)
			if documentFiles != nil {
				files = append(files, documentFiles)
				serviceLogger.Info("Uploaded image as document", "index", i+1, "total", len(urls))
			} else {
				files = append(files, nil)
				serviceLogger.Warn("Failed to upload image as photo and document",
					"index", i+1, "total", len(urls), "url", url)
			}
		}
		if i < len(urls)-1 { // no delay after the last image
			c.sleep(IndividualRetryDelay)
		}
	}
	return files
}

// firstVariantURL extracts the single pre-upload variant URL of a blob group.
func firstVariantURL(bg *blob.BlobGroup) string {
	for _, b := range bg.Blobs.Blobs {
		return b.URL
	}
	return ""
}
