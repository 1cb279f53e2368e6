// Package selector turns raw catalog rows into well-formed upload groups:
// it runs the bounded two-phase selection query, picks one usable variant per
// pic, and derives the caption for each post.
package selector

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/awsl-project/awsl-pic-pipeline/internal/blob"
	"github.com/awsl-project/awsl-pic-pipeline/internal/datastore"
	"github.com/awsl-project/awsl-pic-pipeline/internal/logging"
)

// Package-level logger specific to candidate selection
var (
	serviceLogger   *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "selector.log")
	serviceLevelVar.Set(slog.LevelInfo)

	serviceLogger, closeLogger, err = logging.NewFileLogger(logFilePath, "selector", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize selector file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		serviceLogger = slog.New(fbHandler).With("service", "selector")
		closeLogger = func() error { return nil }
	}
}

// picTypes is the variant kind priority order. The first kind with a usable
// URL wins; a pic contributes at most one blob group.
var picTypes = []string{"original", "large"}

const (
	producerCacheTTL     = 15 * time.Minute
	producerCacheCleanup = 30 * time.Minute
)

// Selector selects and groups pics ready for upload.
type Selector struct {
	db            datastore.Interface
	producerCache *cache.Cache
}

// New creates a selector reading from the given datastore. Producer display
// names change rarely, so lookups are cached.
func New(db datastore.Interface) *Selector {
	return &Selector{
		db:            db,
		producerCache: cache.New(producerCacheTTL, producerCacheCleanup),
	}
}

// variantEntry is the shape of one variant inside the pic_info JSON blob.
type variantEntry struct {
	URL    string `json:"url"`
	Width  *int   `json:"width"`
	Height *int   `json:"height"`
}

// reUser is the shape of the reposted-author JSON blob on a post.
type reUser struct {
	ScreenName string `json:"screen_name"`
}

// filterStats counts pics skipped during selection. Skips are diagnostics,
// never fatal.
type filterStats struct {
	jsonError   int
	noValidType int
	invalidURL  int
}

// PicsToUpload returns the upload groups for the next migration run, bounded
// by limit distinct awsl_id groups (not pic rows). Groups come back in
// descending awsl_id order, the most recent posts first.
func (s *Selector) PicsToUpload(limit int) ([]blob.UploadGroup, error) {
	awslIDs, err := s.db.UnmigratedAwslIDs(limit)
	if err != nil {
		return nil, fmt.Errorf("resolving group universe: %w", err)
	}
	if len(awslIDs) == 0 {
		serviceLogger.Info("No unmigrated groups found")
		return nil, nil
	}

	pics, err := s.db.UnmigratedPics(awslIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching pics for %d groups: %w", len(awslIDs), err)
	}

	mblogs, err := s.db.MblogsByID(awslIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching mblogs: %w", err)
	}

	groups := make(map[uint64]*blob.UploadGroup)
	var order []uint64
	var stats filterStats

	for i := range pics {
		pic := &pics[i]

		bg, skip := s.selectVariant(pic, &stats)
		if skip {
			continue
		}

		group, ok := groups[pic.AwslID]
		if !ok {
			mblog, hasMblog := mblogs[pic.AwslID]
			var mblogPtr *datastore.Mblog
			if hasMblog {
				mblogPtr = &mblog
			}
			group = &blob.UploadGroup{
				AwslID:  pic.AwslID,
				Caption: s.caption(mblogPtr),
			}
			groups[pic.AwslID] = group
			order = append(order, pic.AwslID)
		}
		group.BlobGroups = append(group.BlobGroups, bg)
	}

	result := make([]blob.UploadGroup, 0, len(order))
	for _, id := range order {
		result = append(result, *groups[id])
	}

	serviceLogger.Info("Selected upload groups",
		"groups", len(result),
		"invalid_url", stats.invalidURL,
		"no_valid_type", stats.noValidType,
		"json_error", stats.jsonError)
	return result, nil
}

// selectVariant picks the first usable variant of a pic in priority order.
// The second return value is true when the pic must be skipped; the skip
// reason is recorded in stats.
func (s *Selector) selectVariant(pic *datastore.Pic, stats *filterStats) (blob.BlobGroup, bool) {
	var picInfo map[string]*variantEntry
	if pic.PicInfo != "" {
		if err := json.Unmarshal([]byte(pic.PicInfo), &picInfo); err != nil {
			stats.jsonError++
			return blob.BlobGroup{}, true
		}
	}

	for _, picType := range picTypes {
		entry, ok := picInfo[picType]
		if !ok || entry == nil {
			continue
		}
		if entry.URL == "" || isGif(entry.URL) {
			stats.invalidURL++
			continue
		}

		return blob.BlobGroup{
			ID:     pic.PicID,
			AwslID: pic.AwslID,
			Blobs: blob.Blobs{
				Blobs: map[string]blob.Blob{
					picType: {
						URL:    entry.URL,
						Width:  entry.Width,
						Height: entry.Height,
					},
				},
			},
		}, false
	}

	stats.noValidType++
	return blob.BlobGroup{}, true
}

// caption derives the post caption: "#{name} {url}" when a display name was
// found, the bare post URL otherwise, the empty string when the post row is
// missing entirely.
func (s *Selector) caption(mblog *datastore.Mblog) string {
	if mblog == nil {
		return ""
	}
	wbURL := fmt.Sprintf("https://weibo.com/%d/%s", mblog.UID, mblog.Mblogid)

	screenName := ""
	if mblog.ReUser != "" {
		var ru reUser
		if err := json.Unmarshal([]byte(mblog.ReUser), &ru); err == nil {
			screenName = ru.ScreenName
		}
	}
	if screenName == "" {
		screenName = s.producerName(mblog.UID)
	}

	if screenName != "" {
		return fmt.Sprintf("#%s %s", screenName, wbURL)
	}
	return wbURL
}

// producerName resolves a poster's display name through the cache, falling
// back to the datastore. Lookup failures degrade to an empty name; the
// caption then falls back to the bare URL.
func (s *Selector) producerName(uid uint64) string {
	key := strconv.FormatUint(uid, 10)
	if name, found := s.producerCache.Get(key); found {
		return name.(string)
	}

	name, err := s.db.ProducerName(uid)
	if err != nil {
		serviceLogger.Warn("Producer lookup failed", "uid", uid, "error", err)
		return ""
	}
	s.producerCache.Set(key, name, cache.DefaultExpiration)
	return name
}

// isGif reports whether a variant URL points at an animated image, which are
// excluded by policy.
func isGif(url string) bool {
	return strings.Contains(url, ".gif")
}
