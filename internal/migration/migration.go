// Package migration drives one migration run: it sequences upload groups
// through upload, persistence, and cleanup, isolating failures at the group
// boundary so one bad post never aborts the batch.
package migration

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/awsl-project/awsl-pic-pipeline/internal/blob"
	"github.com/awsl-project/awsl-pic-pipeline/internal/conf"
	"github.com/awsl-project/awsl-pic-pipeline/internal/datastore"
	"github.com/awsl-project/awsl-pic-pipeline/internal/logging"
)

// Package-level logger specific to migration runs
var (
	serviceLogger   *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "migration.log")
	serviceLevelVar.Set(slog.LevelInfo)

	serviceLogger, closeLogger, err = logging.NewFileLogger(logFilePath, "migration", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize migration file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		serviceLogger = slog.New(fbHandler).With("service", "migration")
		closeLogger = func() error { return nil }
	}
}

// CandidateSource yields the upload groups for one run.
type CandidateSource interface {
	PicsToUpload(limit int) ([]blob.UploadGroup, error)
}

// Uploader uploads one group to remote storage.
type Uploader interface {
	UploadMediaGroup(group *blob.UploadGroup) (*blob.UploadResult, error)
}

// Summary is the final tally of a migration run.
type Summary struct {
	Success int
	Fail    int
	Total   int
}

// Migrator owns the per-group state flow.
type Migrator struct {
	db       datastore.Interface
	source   CandidateSource
	uploader Uploader
	config   conf.MigrationConfig
	sleep    func(time.Duration)
}

// New creates a migrator. The configuration is passed in explicitly; there is
// no process-wide settings state.
func New(db datastore.Interface, source CandidateSource, uploader Uploader, config conf.MigrationConfig) *Migrator {
	return &Migrator{
		db:       db,
		source:   source,
		uploader: uploader,
		config:   config,
		sleep:    time.Sleep,
	}
}

// Run executes one migration pass over at most the configured number of
// groups. A fixed pacing delay follows every group regardless of outcome.
func (m *Migrator) Run() (Summary, error) {
	groups, err := m.source.PicsToUpload(m.config.GroupLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("selecting upload groups: %w", err)
	}

	summary := Summary{Total: len(groups)}
	serviceLogger.Info("Starting migration", "groups", summary.Total)

	for idx := range groups {
		group := &groups[idx]
		serviceLogger.Info("Processing group",
			"index", idx+1, "total", summary.Total, "awsl_id", group.AwslID)

		ok, err := m.processGroup(group)
		switch {
		case err != nil:
			serviceLogger.Error("Error uploading group",
				"index", idx+1, "total", summary.Total,
				"awsl_id", group.AwslID, "error", err)
			m.deleteUploadGroup(group)
			summary.Fail++
		case ok:
			summary.Success++
		default:
			summary.Fail++
		}

		m.sleep(m.config.UploadDelay)
	}

	serviceLogger.Info("Migration completed",
		"success", summary.Success, "fail", summary.Fail, "total", summary.Total)
	return summary, nil
}

// processGroup runs one group through upload, persistence, and cleanup. Any
// panic in the flow is recovered into an error so the caller can soft-delete
// the group and move on.
func (m *Migrator) processGroup(group *blob.UploadGroup) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("panic while processing group %d: %v", group.AwslID, r)
		}
	}()

	result, err := m.uploader.UploadMediaGroup(group)
	if err != nil {
		return false, err
	}

	if len(result.Succeeded) > 0 {
		if err := m.saveBlobs(result.Succeeded); err != nil {
			return false, err
		}
		serviceLogger.Info("Saved succeeded pics",
			"count", len(result.Succeeded), "awsl_id", group.AwslID)
	}

	for i := range result.Failed {
		m.deletePic(&result.Failed[i])
	}
	if len(result.Failed) > 0 {
		serviceLogger.Warn("Cleaned up failed pics",
			"count", len(result.Failed), "awsl_id", group.AwslID)
	}

	if len(result.Succeeded) == 0 {
		serviceLogger.Error("All pics failed", "awsl_id", group.AwslID)
		return false, nil
	}
	return true, nil
}

// saveBlobs persists succeeded blob groups as migrated-blob records.
func (m *Migrator) saveBlobs(groups []blob.BlobGroup) error {
	records := make([]datastore.AwslBlobV2, 0, len(groups))
	for i := range groups {
		bg := &groups[i]
		picInfo, err := bg.Blobs.MarshalString()
		if err != nil {
			return fmt.Errorf("serializing blobs for pic_id %d: %w", bg.ID, err)
		}
		records = append(records, datastore.AwslBlobV2{
			AwslID:  bg.AwslID,
			PicID:   bg.ID,
			PicInfo: picInfo,
		})
	}
	return m.db.SaveBlobs(records)
}

// deletePic soft-deletes one pic. A no-op with a log line when deletion is
// globally disabled, so failed pics stay selectable for a later run.
func (m *Migrator) deletePic(bg *blob.BlobGroup) {
	if !m.config.EnableDelete {
		serviceLogger.Info("Delete disabled, skipping pic", "pic_id", bg.ID)
		return
	}
	if err := m.db.MarkPicDeleted(bg.ID); err != nil {
		serviceLogger.Error("Failed to mark pic deleted", "pic_id", bg.ID, "error", err)
	}
}

// deleteUploadGroup soft-deletes every pic of a group after an unexpected
// group-level failure.
func (m *Migrator) deleteUploadGroup(group *blob.UploadGroup) {
	if !m.config.EnableDelete {
		serviceLogger.Info("Delete disabled, skipping group", "awsl_id", group.AwslID)
		return
	}
	for i := range group.BlobGroups {
		m.deletePic(&group.BlobGroups[i])
	}
	serviceLogger.Info("Deleted all pics for group", "awsl_id", group.AwslID)
}
