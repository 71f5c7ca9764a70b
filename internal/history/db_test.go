package history

import (
	"compress/gzip"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/throughput.report/internal/sweep"
	"github.com/banshee-data/throughput.report/internal/timeutil"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) (*DB, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	db, err := Open(filepath.Join(t.TempDir(), "history.db"), WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, clock
}

func point(tcp, ber string) sweep.Point {
	return sweep.Point{
		{Axis: "tcp", Value: sweep.ParseValue(tcp)},
		{Axis: "ber", Value: sweep.ParseValue(ber)},
	}
}

func TestOpenMigrates(t *testing.T) {
	db, _ := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Migrating an up-to-date database is a no-op.
	require.NoError(t, db.MigrateUp())

	for _, table := range []string{"sweep_runs", "sweep_run_rows"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestOpenInMemory(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	runs, err := db.ListRuns(0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunLifecycle(t *testing.T) {
	db, clock := openTestDB(t)

	axes := []sweep.Axis{
		sweep.NewAxis("tcp", "Vegas", "Veno"),
		sweep.NewAxis("ber", "1e-6", "1e-5"),
	}
	run := &Run{
		Trials:    10,
		Seed:      math.MaxUint64,
		Levels:    []float64{0.99, 0.95},
		Axes:      AxisRecords(axes),
		Output:    "results.csv",
		TrialKind: "synthetic",
	}
	id, err := db.StartRun(run)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, StatusRunning, run.Status)

	rec := db.Recorder(id)
	rec.OnTrial(point("Vegas", "1e-6"), 0, 10)
	rec.OnPoint(sweep.Row{
		Point:      point("Vegas", "1e-6"),
		Mean:       4600,
		HalfWidths: map[float64]float64{0.99: 60, 0.95: 42},
		Samples:    10,
	}, 0, 4)
	rec.OnPoint(sweep.IncompleteRow(point("Vegas", "1e-5"), 1, 9), 1, 4)

	clock.Advance(90 * time.Second)
	require.NoError(t, db.FinishRun(id, StatusComplete, ""))

	got, err := db.GetRun(id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, uint64(math.MaxUint64), got.Seed)
	assert.True(t, got.StartedAt.Equal(epoch))
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 90*time.Second, got.CompletedAt.Sub(got.StartedAt))
	assert.Equal(t, 2, got.Rows)
	assert.Equal(t, 1, got.Incomplete)
	assert.Equal(t, "all", got.Shard)
	if diff := cmp.Diff(run.Axes, got.Axes); diff != "" {
		t.Errorf("axes mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []float64{0.99, 0.95}, got.Levels)

	rows, err := db.RunRows(id)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]string{"tcp": "Vegas", "ber": "1e-06"}, rows[0].Point)
	require.NotNil(t, rows[0].Mean)
	assert.Equal(t, 4600.0, *rows[0].Mean)
	assert.Equal(t, map[string]float64{"off99": 60, "off95": 42}, rows[0].HalfWidths)
	assert.True(t, rows[1].Incomplete)
	assert.Nil(t, rows[1].Mean)
	assert.Equal(t, 9, rows[1].Invalid)
}

func TestListRunsAndFailures(t *testing.T) {
	db, clock := openTestDB(t)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := db.StartRun(&Run{Trials: 2, Levels: sweep.DefaultLevels, Output: "r.csv", Shard: "1/3"})
		require.NoError(t, err)
		ids = append(ids, id)
		clock.Advance(time.Minute)
	}
	require.NoError(t, db.FinishRun(ids[1], StatusFailed, "simulator missing"))

	runs, err := db.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Equal(t, "simulator missing", runs[1].Error)
	assert.Equal(t, "1/3", runs[1].Shard)

	missing, err := db.GetRun("no-such-run")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, db.FinishRun("no-such-run", StatusComplete, ""))
}

func TestRecordRowReplacesIndex(t *testing.T) {
	db, _ := openTestDB(t)
	id, err := db.StartRun(&Run{Trials: 2, Levels: []float64{0.95}})
	require.NoError(t, err)

	p := point("NewReno", "1e-4")
	require.NoError(t, db.RecordRow(id, 0, sweep.Row{Point: p, Mean: 1, HalfWidths: map[float64]float64{0.95: 0.5}, Samples: 2}))
	require.NoError(t, db.RecordRow(id, 0, sweep.Row{Point: p, Mean: 2, HalfWidths: map[float64]float64{0.95: 0.5}, Samples: 2}))

	rows, err := db.RunRows(id)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2.0, *rows[0].Mean)
}

func TestIsSQLiteBusy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"database is locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"SQLITE_BUSY", errors.New("SQLITE_BUSY"), true},
		{"other error", errors.New("some other error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSQLiteBusy(tt.err); got != tt.expected {
				t.Errorf("isSQLiteBusy(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetryOnBusy(t *testing.T) {
	busy := errors.New("database is locked (5) (SQLITE_BUSY)")

	t.Run("success after retry", func(t *testing.T) {
		clock := timeutil.NewMockClock(epoch)
		db := &DB{clock: clock}
		calls := 0
		err := db.retryOnBusy(func() error {
			calls++
			if calls < 3 {
				return busy
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, clock.Sleeps())
	})

	t.Run("non-busy error fails immediately", func(t *testing.T) {
		db := &DB{clock: timeutil.NewMockClock(epoch)}
		other := errors.New("constraint failed")
		calls := 0
		err := db.retryOnBusy(func() error {
			calls++
			return other
		})
		assert.Equal(t, other, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		clock := timeutil.NewMockClock(epoch)
		db := &DB{clock: clock}
		calls := 0
		err := db.retryOnBusy(func() error {
			calls++
			return busy
		})
		assert.ErrorIs(t, err, busy)
		assert.Equal(t, maxBusyRetries, calls)
		assert.Len(t, clock.Sleeps(), maxBusyRetries-1)
	})
}

func TestAdminRoutes(t *testing.T) {
	db, _ := openTestDB(t)
	_, err := db.StartRun(&Run{Trials: 3, Levels: []float64{0.95}})
	require.NoError(t, err)

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tailsql")

	resp, err = http.Get(srv.URL + "/debug/backup")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	gz, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	snapshot, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(snapshot[:16]))
}
