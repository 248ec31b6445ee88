package dataplatform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cepro/dercompliance/repository"
)

// uploadChunkLimit defines how many rows we can upload in one supabase HTTP request
const uploadChunkLimit = 100

// Uploader sends result rows to the data platform.
type Uploader interface {
	UploadResultRows(rows []repository.StoredResultRow) error
}

// DataPlatform handles the streaming of results to Supabase. Result rows are buffered on disk in the SQLite
// repository and uploaded from there, so that a run can complete without a connection.
type DataPlatform struct {
	repository *repository.Repository
	uploader   Uploader
	logger     *slog.Logger
}

func New(repo *repository.Repository, uploader Uploader) *DataPlatform {
	return &DataPlatform{
		repository: repo,
		uploader:   uploader,
		logger:     slog.Default().With("component", "data_platform"),
	}
}

// Run loops attempting an upload every `period` until the context is cancelled, and then makes a final attempt.
func (d *DataPlatform) Run(ctx context.Context, period time.Duration) {

	uploadTicker := time.NewTicker(period)
	defer uploadTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.AttemptUpload()
			return
		case <-uploadTicker.C:
			d.AttemptUpload()
		}
	}
}

// AttemptUpload uploads a chunk of the rows that have never been attempted, and a chunk of the rows that have
// failed before. Both chunks are queried up front so that a row is attempted at most once. It returns the number of
// rows uploaded.
func (d *DataPlatform) AttemptUpload() int {
	var chunks [][]repository.StoredResultRow
	for _, fresh := range []bool{true, false} {
		rows, err := d.repository.GetResultRows(uploadChunkLimit, fresh)
		if err != nil {
			d.logger.Error("Failed to query result rows", "fresh", fresh, "error", err)
			continue
		}
		if len(rows) > 0 {
			chunks = append(chunks, rows)
		}
	}

	uploaded := 0
	for _, rows := range chunks {
		err := d.handleRows(rows)
		if err != nil {
			d.logger.Error("Failed to handle result rows", "error", err)
			continue
		}
		uploaded += len(rows)
	}
	return uploaded
}

// handleRows attempts to upload the given rows. If successful, it deletes the rows from the database, if
// unsuccessful, it increments the 'upload attempt count' column and leaves the rows in the database for another time.
func (d *DataPlatform) handleRows(rows []repository.StoredResultRow) error {

	uploadErr := d.uploader.UploadResultRows(rows)
	if uploadErr != nil {
		uploadErr := fmt.Errorf("upload failed: %w", uploadErr)
		errInc := d.repository.IncrementUploadAttemptCount(rows)
		if errInc != nil {
			return fmt.Errorf("%w: increment upload attempt count: %w", uploadErr, errInc)
		}
		return uploadErr
	}

	deleteErr := d.repository.DeleteResultRows(rows)
	if deleteErr != nil {
		return fmt.Errorf("delete uploaded rows: %w", deleteErr)
	}

	d.logger.Info("Uploaded result rows", "db_records", len(rows))
	return nil
}
