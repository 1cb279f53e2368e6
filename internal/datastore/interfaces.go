// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/awsl-project/awsl-pic-pipeline/internal/conf"
	"github.com/awsl-project/awsl-pic-pipeline/internal/errors"
)

// Interface abstracts the underlying database implementation and defines the
// operations the pipeline needs from the metadata store.
type Interface interface {
	Open() error
	Close() error
	// candidate selection
	UnmigratedAwslIDs(limit int) ([]uint64, error)
	UnmigratedPics(awslIDs []uint64) ([]Pic, error)
	MblogsByID(ids []uint64) (map[uint64]Mblog, error)
	ProducerName(uid uint64) (string, error)
	// persistence and cleanup
	SaveBlobs(records []AwslBlobV2) error
	MarkPicDeleted(picID uint64) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Database.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Database.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		// ValidateSettings rejects this configuration before we get here
		return nil
	}
}

// UnmigratedAwslIDs returns the most recent distinct awsl_id values, limited
// to at most limit groups, for pics that have no migrated blob record, are not
// soft-deleted, and whose awsl_id has a matching mblog row. Limiting on the
// group universe rather than pic rows keeps whole posts together.
func (ds *DataStore) UnmigratedAwslIDs(limit int) ([]uint64, error) {
	var ids []uint64
	err := ds.DB.Model(&Pic{}).
		Select("pics.awsl_id").
		Joins("JOIN mblogs ON pics.awsl_id = mblogs.id").
		Joins("LEFT JOIN awsl_blob_v2 ON pics.pic_id = awsl_blob_v2.pic_id").
		Where("awsl_blob_v2.pic_id IS NULL").
		Where("pics.deleted = ?", false).
		Group("pics.awsl_id").
		Order("pics.awsl_id DESC").
		Limit(limit).
		Scan(&ids).Error
	if err != nil {
		return nil, errors.New(fmt.Errorf("querying unmigrated awsl ids: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("limit", limit).
			Build()
	}
	return ids, nil
}

// UnmigratedPics returns every unmigrated, not-deleted pic row belonging to
// the given awsl_id set, ordered by awsl_id descending to match the group
// universe ordering.
func (ds *DataStore) UnmigratedPics(awslIDs []uint64) ([]Pic, error) {
	if len(awslIDs) == 0 {
		return nil, nil
	}
	var pics []Pic
	err := ds.DB.
		Joins("LEFT JOIN awsl_blob_v2 ON pics.pic_id = awsl_blob_v2.pic_id").
		Where("awsl_blob_v2.pic_id IS NULL").
		Where("pics.deleted = ?", false).
		Where("pics.awsl_id IN ?", awslIDs).
		Order("pics.awsl_id DESC").
		Find(&pics).Error
	if err != nil {
		return nil, errors.New(fmt.Errorf("querying unmigrated pics: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("group_count", len(awslIDs)).
			Build()
	}
	return pics, nil
}

// MblogsByID fetches the given posts and returns them keyed by id.
func (ds *DataStore) MblogsByID(ids []uint64) (map[uint64]Mblog, error) {
	if len(ids) == 0 {
		return map[uint64]Mblog{}, nil
	}
	var mblogs []Mblog
	if err := ds.DB.Where("id IN ?", ids).Find(&mblogs).Error; err != nil {
		return nil, errors.New(fmt.Errorf("querying mblogs: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	byID := make(map[uint64]Mblog, len(mblogs))
	for _, m := range mblogs {
		byID[m.ID] = m
	}
	return byID, nil
}

// ProducerName returns the display name recorded for a poster uid, or the
// empty string when no producer row exists.
func (ds *DataStore) ProducerName(uid uint64) (string, error) {
	var producer AwslProducer
	err := ds.DB.Where("uid = ?", uid).First(&producer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", errors.New(fmt.Errorf("querying producer for uid %d: %w", uid, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return producer.Name, nil
}

// SaveBlobs stores migrated blob records as a single transaction. The unique
// index on pic_id rejects duplicates, keeping persistence write-once per pic.
func (ds *DataStore) SaveBlobs(records []AwslBlobV2) error {
	if len(records) == 0 {
		return nil
	}
	tx := ds.DB.Begin()
	if tx.Error != nil {
		return fmt.Errorf("starting transaction: %w", tx.Error)
	}

	// Roll back the transaction if a panic occurs
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for i := range records {
		if err := tx.Create(&records[i]).Error; err != nil {
			tx.Rollback()
			return errors.New(fmt.Errorf("saving blob record for pic_id %d: %w", records[i].PicID, err)).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Build()
		}
		getLogger().Info("Saved blob record", "pic_id", records[i].PicID, "awsl_id", records[i].AwslID)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// MarkPicDeleted soft-deletes every pic row carrying the given pic_id by
// setting the deleted and cleaned flags.
func (ds *DataStore) MarkPicDeleted(picID uint64) error {
	err := ds.DB.Model(&Pic{}).
		Where("pic_id = ?", picID).
		Updates(map[string]any{"deleted": true, "cleaned": true}).Error
	if err != nil {
		return errors.New(fmt.Errorf("marking pic %d deleted: %w", picID, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// performAutoMigration creates or updates the catalog tables.
func performAutoMigration(db *gorm.DB, debug bool, dbType string) error {
	if err := db.AutoMigrate(&Pic{}, &Mblog{}, &AwslProducer{}, &AwslBlobV2{}); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}
	if debug {
		getLogger().Debug("Database migration completed", "db_type", dbType)
	}
	return nil
}
