// model.go this code defines the data model for the catalog database
package datastore

import "time"

// Pic represents a single source image attached to a post. PicInfo carries the
// raw JSON blob of named image variants as written by the ingestion process.
type Pic struct {
	ID      uint   `gorm:"primaryKey"`
	PicID   uint64 `gorm:"uniqueIndex:idx_pics_pic_id"`
	AwslID  uint64 `gorm:"index:idx_pics_awsl_id"`
	PicInfo string `gorm:"type:text"`
	Deleted bool
	Cleaned bool
}

// Mblog represents a source social post. Its ID equals the awsl_id that pics
// group under. ReUser optionally carries the reposted-author JSON blob.
type Mblog struct {
	ID      uint64 `gorm:"primaryKey"`
	UID     uint64 `gorm:"index:idx_mblogs_uid"`
	Mblogid string
	ReUser  string `gorm:"type:text"`
}

// AwslProducer maps a poster uid to a display name, used as the caption
// fallback when a post has no repost author.
type AwslProducer struct {
	ID   uint   `gorm:"primaryKey"`
	UID  uint64 `gorm:"uniqueIndex:idx_awsl_producers_uid"`
	Name string
}

// AwslBlobV2 records a migrated pic: PicInfo holds the serialized variant set
// pointing at the remote storage service. One record per pic, write-once; the
// unique index on PicID keeps re-runs idempotent.
type AwslBlobV2 struct {
	ID        uint   `gorm:"primaryKey"`
	AwslID    uint64 `gorm:"index:idx_awsl_blob_v2_awsl_id"`
	PicID     uint64 `gorm:"uniqueIndex:idx_awsl_blob_v2_pic_id"`
	PicInfo   string `gorm:"type:text"`
	CreatedAt time.Time
}

// TableName overrides the default pluralization for the blob table.
func (AwslBlobV2) TableName() string {
	return "awsl_blob_v2"
}
