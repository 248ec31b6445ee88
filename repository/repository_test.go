package repository

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/cepro/dercompliance/telemetry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	repo, err := New(filepath.Join(t.TempDir(), "results.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testRow(runID uuid.UUID, step string) telemetry.ResultRow {
	row := telemetry.NewResultRow(runID, step, "VW_CRV1_PWR_100")
	row.XAxis = telemetry.AxisVoltage
	row.YAxis = telemetry.AxisActivePower
	row.XMeas = 259.2
	row.YMeas = 1920
	row.YTarget = 1800
	row.WithinBoundsTRN = telemetry.VerdictPass
	return row
}

func TestResultRowRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	runID := uuid.New()
	row := testRow(runID, "Step G")

	require.NoError(t, repo.AppendRow(row))

	stored, err := repo.RunResultRows(runID)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	got := stored[0].ResultRow()
	assert.Equal(t, row.ID, got.ID)
	assert.Equal(t, 259.2, got.XMeas)
	assert.True(t, math.IsNaN(got.YTargetMin), "NaN is stored as NULL and read back as NaN")
	assert.Equal(t, telemetry.VerdictPass, got.WithinBoundsTRN)
	assert.Equal(t, telemetry.VerdictNone, got.Within90PctTR1)
	assert.Equal(t, telemetry.AxisActivePower, got.YAxis)
}

func TestUploadQueue(t *testing.T) {
	repo := newTestRepository(t)
	runID := uuid.New()
	for _, step := range []string{"Step G", "Step H", "Step I"} {
		require.NoError(t, repo.AppendRow(testRow(runID, step)))
	}

	fresh, err := repo.GetResultRows(2, true)
	require.NoError(t, err)
	require.Len(t, fresh, 2)

	require.NoError(t, repo.IncrementUploadAttemptCount(fresh))

	fresh, err = repo.GetResultRows(10, true)
	require.NoError(t, err)
	assert.Len(t, fresh, 1)

	old, err := repo.GetResultRows(10, false)
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.Equal(t, uint(1), old[0].UploadAttemptCount)

	require.NoError(t, repo.DeleteResultRows(old))
	remaining, err := repo.RunResultRows(runID)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestAddRun(t *testing.T) {
	repo := newTestRepository(t)
	assert.NoError(t, repo.AddRun(StoredRun{ID: uuid.New(), Standard: "IEEE1547dot1", Function: "VW", Mode: "run"}))
}
