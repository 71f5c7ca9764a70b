package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/throughput.report/internal/sweep"
)

// Status is the lifecycle state of a recorded run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// AxisRecord is the persisted form of one sweep axis.
type AxisRecord struct {
	Name   string   `json:"name"`
	Unit   string   `json:"unit,omitempty"`
	Values []string `json:"values"`
}

// AxisRecords converts sweep axes to their persisted form.
func AxisRecords(axes []sweep.Axis) []AxisRecord {
	out := make([]AxisRecord, len(axes))
	for i, a := range axes {
		vals := make([]string, len(a.Values))
		for j, v := range a.Values {
			vals[j] = v.Text
		}
		out[i] = AxisRecord{Name: a.Name, Unit: a.Unit, Values: vals}
	}
	return out
}

// Run is one recorded sweep invocation.
type Run struct {
	ID          string       `json:"run_id"`
	Status      Status       `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Trials      int          `json:"trials"`
	Seed        uint64       `json:"seed"`
	Levels      []float64    `json:"levels"`
	Axes        []AxisRecord `json:"axes"`
	Output      string       `json:"output"`
	Shard       string       `json:"shard"`
	TrialKind   string       `json:"trial_kind,omitempty"`
	Error       string       `json:"error,omitempty"`

	// Rows and Incomplete are derived from the recorded rows.
	Rows       int `json:"rows"`
	Incomplete int `json:"incomplete"`
}

// RowRecord is one recorded summary row.
type RowRecord struct {
	Index      int                `json:"index"`
	Point      map[string]string  `json:"point"`
	Mean       *float64           `json:"mean,omitempty"`
	HalfWidths map[string]float64 `json:"half_widths,omitempty"`
	Samples    int                `json:"samples"`
	Invalid    int                `json:"invalid"`
	Incomplete bool               `json:"incomplete"`
}

// StartRun inserts r with a fresh run id and running status, and returns the
// id. StartedAt is taken from the database clock.
func (db *DB) StartRun(r *Run) (string, error) {
	r.ID = uuid.NewString()
	r.Status = StatusRunning
	r.StartedAt = db.clock.Now()
	if r.Shard == "" {
		r.Shard = sweep.Shard{}.String()
	}

	levels, err := json.Marshal(r.Levels)
	if err != nil {
		return "", err
	}
	axes, err := json.Marshal(r.Axes)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO sweep_runs (run_id, status, started_at, trials, seed, levels_json, axes_json, output, shard, trial_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err = db.retryOnBusy(func() error {
		_, err := db.Exec(query, r.ID, string(r.Status), formatTime(r.StartedAt), r.Trials,
			int64(r.Seed), string(levels), string(axes), r.Output, r.Shard, r.TrialKind)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("inserting run %s: %w", r.ID, err)
	}
	logf("started run %s", r.ID)
	return r.ID, nil
}

// RecordRow stores the summary row at index within run runID.
func (db *DB) RecordRow(runID string, index int, row sweep.Row) error {
	point, err := json.Marshal(row.Point.Map())
	if err != nil {
		return err
	}
	var mean interface{}
	var widths sql.NullString
	if !row.Incomplete && !math.IsNaN(row.Mean) {
		mean = row.Mean
		hw := make(map[string]float64, len(row.HalfWidths))
		for level, w := range row.HalfWidths {
			hw[sweep.LevelColumn(level)] = w
		}
		b, err := json.Marshal(hw)
		if err != nil {
			return err
		}
		widths = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO sweep_run_rows
			(run_id, point_index, point_key, point_json, mean, half_widths_json, samples, invalid, incomplete, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err = db.retryOnBusy(func() error {
		_, err := db.Exec(query, runID, index, row.Point.Key(), string(point), mean, widths,
			row.Samples, row.Invalid, row.Incomplete, formatTime(db.clock.Now()))
		return err
	})
	if err != nil {
		return fmt.Errorf("recording row %d of run %s: %w", index, runID, err)
	}
	return nil
}

// FinishRun marks a run as ended with the given status. errMsg is stored for
// failed and cancelled runs.
func (db *DB) FinishRun(runID string, status Status, errMsg string) error {
	query := `UPDATE sweep_runs SET status = ?, completed_at = ?, error = ? WHERE run_id = ?`
	var res sql.Result
	err := db.retryOnBusy(func() error {
		var err error
		res, err = db.Exec(query, string(status), formatTime(db.clock.Now()), nullStr(errMsg), runID)
		return err
	})
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing run %s: no such run", runID)
	}
	logf("run %s %s", runID, status)
	return nil
}

const runColumns = `
	r.run_id, r.status, r.started_at, r.completed_at, r.trials, r.seed, r.levels_json, r.axes_json,
	r.output, r.shard, r.trial_kind, r.error,
	(SELECT COUNT(*) FROM sweep_run_rows w WHERE w.run_id = r.run_id),
	(SELECT COUNT(*) FROM sweep_run_rows w WHERE w.run_id = r.run_id AND w.incomplete)
`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r                    Run
		status, started      string
		completed, errMsg    sql.NullString
		seed                 int64
		levelsJSON, axesJSON string
	)
	if err := s.Scan(&r.ID, &status, &started, &completed, &r.Trials, &seed, &levelsJSON, &axesJSON,
		&r.Output, &r.Shard, &r.TrialKind, &errMsg, &r.Rows, &r.Incomplete); err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.Seed = uint64(seed)
	r.Error = errMsg.String

	st, err := parseTime(sql.NullString{String: started, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("run %s: bad started_at: %w", r.ID, err)
	}
	r.StartedAt = *st
	if r.CompletedAt, err = parseTime(completed); err != nil {
		return nil, fmt.Errorf("run %s: bad completed_at: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(levelsJSON), &r.Levels); err != nil {
		return nil, fmt.Errorf("run %s: bad levels: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(axesJSON), &r.Axes); err != nil {
		return nil, fmt.Errorf("run %s: bad axes: %w", r.ID, err)
	}
	return &r, nil
}

// GetRun returns the run with the given id, or nil if there is none.
func (db *DB) GetRun(runID string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM sweep_runs r WHERE r.run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit defaults to 20 and is
// capped at 100.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM sweep_runs r ORDER BY r.started_at DESC, r.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// RunRows returns the rows recorded for a run in point order.
func (db *DB) RunRows(runID string) ([]RowRecord, error) {
	rows, err := db.Query(`
		SELECT point_index, point_json, mean, half_widths_json, samples, invalid, incomplete
		FROM sweep_run_rows WHERE run_id = ? ORDER BY point_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing rows of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []RowRecord
	for rows.Next() {
		var (
			rec       RowRecord
			pointJSON string
			mean      sql.NullFloat64
			widths    sql.NullString
		)
		if err := rows.Scan(&rec.Index, &pointJSON, &mean, &widths, &rec.Samples, &rec.Invalid, &rec.Incomplete); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(pointJSON), &rec.Point); err != nil {
			return nil, fmt.Errorf("row %d of run %s: %w", rec.Index, runID, err)
		}
		if mean.Valid {
			m := mean.Float64
			rec.Mean = &m
		}
		if widths.Valid {
			if err := json.Unmarshal([]byte(widths.String), &rec.HalfWidths); err != nil {
				return nil, fmt.Errorf("row %d of run %s: %w", rec.Index, runID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Recorder is a sweep.Observer that stores every finished row under one run.
// Storage errors are logged, never returned, so a full disk cannot stop a
// sweep whose results also go to the CSV store.
type Recorder struct {
	db    *DB
	runID string
}

// Recorder returns an observer recording rows for runID.
func (db *DB) Recorder(runID string) *Recorder {
	return &Recorder{db: db, runID: runID}
}

func (r *Recorder) OnTrial(sweep.Point, int, int) {}

func (r *Recorder) OnPoint(row sweep.Row, index, total int) {
	if err := r.db.RecordRow(r.runID, index, row); err != nil {
		logf("%v", err)
	}
}
