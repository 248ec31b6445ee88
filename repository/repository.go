package repository

import (
	"fmt"

	"github.com/cepro/dercompliance/telemetry"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository stores results to the local file system (sqlite) before they are uploaded to Supabase.
type Repository struct {
	db *gorm.DB
}

func New(path string) (*Repository, error) {

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Migrate the schema
	err = db.AutoMigrate(&StoredResultRow{}, &StoredRun{})
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Repository{
		db: db,
	}, nil
}

func (r *Repository) AddRun(run StoredRun) error {
	result := r.db.Create(&run)
	return result.Error
}

// AppendRow stores a result row for upload.
func (r *Repository) AppendRow(row telemetry.ResultRow) error {
	stored := newStoredResultRow(row)
	result := r.db.Create(&stored)
	return result.Error
}

// GetResultRows returns up to `limit` rows that are waiting to be uploaded. Fresh rows have never been attempted,
// the others have failed to upload at least once.
func (r *Repository) GetResultRows(limit int, fresh bool) ([]StoredResultRow, error) {
	var rows []StoredResultRow

	query := r.db.Limit(limit).Order("upload_attempt_count asc, created_at asc")
	if fresh {
		query = query.Where("upload_attempt_count = ?", 0)
	} else {
		query = query.Where("upload_attempt_count > ?", 0)
	}
	result := query.Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	return rows, nil
}

// RunResultRows returns the rows of a run that are still held locally, oldest first.
func (r *Repository) RunResultRows(runID uuid.UUID) ([]StoredResultRow, error) {
	var rows []StoredResultRow
	result := r.db.Where("run_id = ?", runID).Order("created_at asc").Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	return rows, nil
}

func (r *Repository) DeleteResultRows(rows []StoredResultRow) error {
	if len(rows) == 0 {
		return nil
	}
	result := r.db.Delete(&rows)
	return result.Error
}

func (r *Repository) IncrementUploadAttemptCount(rows []StoredResultRow) error {
	if len(rows) == 0 {
		return nil
	}
	result := r.db.Model(&rows).UpdateColumn("upload_attempt_count", gorm.Expr("upload_attempt_count + ?", 1))
	return result.Error
}

// Close releases the database file.
func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
