package dataplatform

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/cepro/dercompliance/repository"
	"github.com/cepro/dercompliance/telemetry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	fail     bool
	uploaded []repository.StoredResultRow
}

func (f *fakeUploader) UploadResultRows(rows []repository.StoredResultRow) error {
	if f.fail {
		return errors.New("connection refused")
	}
	f.uploaded = append(f.uploaded, rows...)
	return nil
}

func newTestRepository(t *testing.T, runID uuid.UUID, steps ...string) *repository.Repository {
	repo, err := repository.New(filepath.Join(t.TempDir(), "results.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	for _, step := range steps {
		require.NoError(t, repo.AppendRow(telemetry.NewResultRow(runID, step, "VV_CRV1_PWR_100")))
	}
	return repo
}

func TestAttemptUpload(t *testing.T) {
	runID := uuid.New()
	repo := newTestRepository(t, runID, "Step G", "Step H")
	uploader := &fakeUploader{}

	uploaded := New(repo, uploader).AttemptUpload()
	assert.Equal(t, 2, uploaded)
	assert.Len(t, uploader.uploaded, 2)

	remaining, err := repo.RunResultRows(runID)
	require.NoError(t, err)
	assert.Empty(t, remaining, "uploaded rows are deleted")
}

func TestFailedUploadIsRetried(t *testing.T) {
	runID := uuid.New()
	repo := newTestRepository(t, runID, "Step G")
	uploader := &fakeUploader{fail: true}
	platform := New(repo, uploader)

	assert.Equal(t, 0, platform.AttemptUpload())
	old, err := repo.GetResultRows(10, false)
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, uint(1), old[0].UploadAttemptCount)

	uploader.fail = false
	assert.Equal(t, 1, platform.AttemptUpload())
	assert.Equal(t, "Step G", uploader.uploaded[0].Step)
}
