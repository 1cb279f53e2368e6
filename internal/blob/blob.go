// Package blob defines the value types moved through the pipeline: image
// variants, per-pic groups, per-post upload groups, and the remote files
// reported back by the storage service.
package blob

import "encoding/json"

// Blob is a single image variant. Width and Height are optional because the
// catalog does not always record dimensions; FileID is set once the variant
// lives in remote storage. Blobs are immutable values.
type Blob struct {
	URL    string `json:"url"`
	Width  *int   `json:"width,omitempty"`
	Height *int   `json:"height,omitempty"`
	FileID string `json:"file_id,omitempty"`
}

// Blobs maps a variant kind name ("original", "large") to its Blob.
type Blobs struct {
	Blobs map[string]Blob `json:"blobs"`
}

// MarshalString serializes the variant set for the migrated-blob record.
func (b Blobs) MarshalString() (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// BlobGroup is one pic's upload unit. Before upload it carries the single
// source variant selected from the catalog; after upload it is replaced with
// a group carrying the resolved remote variants. Never mutated in place.
type BlobGroup struct {
	ID     uint64 // pic_id
	AwslID uint64
	Blobs  Blobs
}

// UploadGroup is one social post's upload unit: the pics grouped under one
// awsl_id plus the caption shown with them.
type UploadGroup struct {
	AwslID     uint64
	BlobGroups []BlobGroup
	Caption    string
}

// TelegramFile is a single uploaded asset as reported by the remote service.
// The service returns several size renditions per uploaded image.
type TelegramFile struct {
	FileID string `json:"file_id"`
	Width  *int   `json:"width,omitempty"`
	Height *int   `json:"height,omitempty"`
}

// UploadResult partitions the input blob groups of one upload into the groups
// that now carry resolved remote variants and the groups that failed and are
// due for cleanup. Every input group appears in exactly one partition.
type UploadResult struct {
	Succeeded []BlobGroup
	Failed    []BlobGroup
}

// largeEdgePx is the threshold above which a rendition qualifies as the
// "large" variant.
const largeEdgePx = 800

// LargestFile returns the rendition with the largest width×height product,
// or the last rendition when none carry dimensions. Returns nil for an empty
// list.
func LargestFile(files []TelegramFile) *TelegramFile {
	if len(files) == 0 {
		return nil
	}
	best := -1
	bestArea := 0
	for i := range files {
		f := &files[i]
		if f.Width == nil || f.Height == nil {
			continue
		}
		area := *f.Width * *f.Height
		if best == -1 || area > bestArea {
			best = i
			bestArea = area
		}
	}
	if best >= 0 {
		return &files[best]
	}
	return &files[len(files)-1]
}

// FirstFileOver800 returns the first rendition whose width or height exceeds
// 800 pixels, or the last rendition when none qualify. Returns nil for an
// empty list.
func FirstFileOver800(files []TelegramFile) *TelegramFile {
	if len(files) == 0 {
		return nil
	}
	for i := range files {
		f := &files[i]
		if f.Width != nil && *f.Width > largeEdgePx {
			return f
		}
		if f.Height != nil && *f.Height > largeEdgePx {
			return f
		}
	}
	return &files[len(files)-1]
}

// FilesToBlobs collapses a pic's rendition list into the canonical variant
// set: "original" is the largest rendition, "large" the first one over 800px.
// Both may resolve to the same rendition. buildURL maps a file id to its
// public URL on the storage service.
func FilesToBlobs(files []TelegramFile, buildURL func(fileID string) string) Blobs {
	blobs := make(map[string]Blob, 2)
	if f := LargestFile(files); f != nil {
		blobs["original"] = Blob{
			URL:    buildURL(f.FileID),
			FileID: f.FileID,
			Width:  f.Width,
			Height: f.Height,
		}
	}
	if f := FirstFileOver800(files); f != nil {
		blobs["large"] = Blob{
			URL:    buildURL(f.FileID),
			FileID: f.FileID,
			Width:  f.Width,
			Height: f.Height,
		}
	}
	return Blobs{Blobs: blobs}
}
