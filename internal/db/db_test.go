package db

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate_test.db")
	database, err := NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestBeginRunAndRecordTick(t *testing.T) {
	database := newTestDB(t)
	runID := uuid.NewString()

	require.NoError(t, database.BeginRun(runID, `{"tick_interval":"33ms"}`))

	for i := 0; i < 3; i++ {
		err := database.RecordTick(TickRecord{
			RunID:        runID,
			Tick:         uint64(i),
			Mode:         "AUTO",
			Engaged:      true,
			MrmState:     "NORMAL",
			RawSteering:  0.3,
			RawSpeed:     5.0,
			RawAccel:     1.2,
			OutSteering:  0.1,
			OutSpeed:     5.0,
			OutAccel:     1.0,
			VehicleSpeed: 4.8,
		})
		require.NoError(t, err)
	}

	ticks, err := database.RecentTicks(10)
	require.NoError(t, err)
	require.Len(t, ticks, 3)

	// Newest first.
	require.Equal(t, uint64(2), ticks[0].Tick)
	require.Equal(t, "AUTO", ticks[0].Mode)
	require.True(t, ticks[0].Engaged)
	require.False(t, ticks[0].Override)
	require.InDelta(t, 1.0, ticks[0].OutAccel, 1e-9)
}

func TestRecentTicksDefaultLimit(t *testing.T) {
	database := newTestDB(t)
	runID := uuid.NewString()
	require.NoError(t, database.BeginRun(runID, "{}"))
	require.NoError(t, database.RecordTick(TickRecord{RunID: runID, Tick: 1}))

	ticks, err := database.RecentTicks(0)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
}

func TestRecordEvent(t *testing.T) {
	database := newTestDB(t)
	runID := uuid.NewString()
	require.NoError(t, database.BeginRun(runID, "{}"))

	require.NoError(t, database.RecordEvent(runID, "mrm_transition", "NORMAL -> MRM_OPERATING: heartbeat stale"))
	require.NoError(t, database.RecordEvent(runID, "engaged", "true"))

	events, err := database.Events(10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "engaged", events[0].Kind)
	require.Equal(t, "mrm_transition", events[1].Kind)
	require.Contains(t, events[1].Detail, "MRM_OPERATING")
}

func TestMigrateUpAndDown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate_test.db")
	database, err := NewDB(path)
	require.NoError(t, err)
	defer database.Close()

	// NewDB already migrated to the latest version.
	version, dirty, err := database.MigrateVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)

	// Up again is a no-op.
	require.NoError(t, database.MigrateUp())

	require.NoError(t, database.MigrateDown())
	version, _, err = database.MigrateVersion()
	require.NoError(t, err)
	require.Equal(t, uint(0), version)

	// The schema is gone until migrated back up.
	require.Error(t, database.BeginRun(uuid.NewString(), "{}"))
	require.NoError(t, database.MigrateUp())
	require.NoError(t, database.BeginRun(uuid.NewString(), "{}"))
}
