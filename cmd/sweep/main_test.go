package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/throughput.report/internal/config"
	"github.com/banshee-data/throughput.report/internal/history"
	"github.com/banshee-data/throughput.report/internal/results"
	"github.com/banshee-data/throughput.report/internal/sweep"
)

const smallSweep = `{
	"axes": [
		{"name": "tcp", "values": ["Vegas", "WestwoodPlus"]},
		{"name": "ber", "values": [1e-6, 1e-5]}
	],
	"trials": 4,
	"seed": 7,
	"levels": [0.95]
}`

func testConfig(t *testing.T) (*config.SweepConfig, string) {
	t.Helper()
	cfg, err := config.ParseSweepConfig([]byte(smallSweep))
	require.NoError(t, err)
	dir := t.TempDir()
	out := filepath.Join(dir, "results.csv")
	hist := filepath.Join(dir, "history.db")
	cfg.Output = &out
	cfg.HistoryDB = &hist
	return cfg, dir
}

func TestApplyOverrides(t *testing.T) {
	tests := []struct {
		name    string
		o       overrides
		check   func(t *testing.T, cfg *config.SweepConfig)
		wantErr bool
	}{
		{"none", overrides{}, func(t *testing.T, cfg *config.SweepConfig) {
			assert.Equal(t, 10, cfg.GetTrials())
			assert.Equal(t, "results.csv", cfg.GetOutput())
		}, false},
		{"all", overrides{output: "o.csv", trials: 3, seed: "18446744073709551615", levels: "99,90", duplicates: "reject", history: "h.db", metricsAddr: ":9990"},
			func(t *testing.T, cfg *config.SweepConfig) {
				assert.Equal(t, "o.csv", cfg.GetOutput())
				assert.Equal(t, 3, cfg.GetTrials())
				assert.Equal(t, uint64(18446744073709551615), cfg.GetSeed())
				assert.Equal(t, []float64{0.99, 0.9}, cfg.GetLevels())
				assert.Equal(t, results.Reject, cfg.GetDuplicatePolicy())
				assert.Equal(t, "h.db", cfg.GetHistoryDB())
				assert.Equal(t, ":9990", cfg.GetMetricsAddr())
			}, false},
		{"bad seed", overrides{seed: "-1"}, nil, true},
		{"bad levels", overrides{levels: "100"}, nil, true},
		{"bad duplicates", overrides{duplicates: "merge"}, nil, true},
		{"bad trials", overrides{trials: -2}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.EmptySweepConfig()
			err := applyOverrides(cfg, tt.o)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestBuildAxes(t *testing.T) {
	cfg := config.EmptySweepConfig()

	axes, err := buildAxes(cfg, []string{"ber=1e-6,1e-3", "queue=10,20"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tcp", "ber", "delay", "queue"}, sweep.AxisNames(axes))
	require.Len(t, axes[1].Values, 2)
	assert.Equal(t, "0.001", axes[1].Values[1].Text)

	_, err = buildAxes(cfg, []string{"ber"})
	assert.Error(t, err)
}

func TestBuildTrial(t *testing.T) {
	cfg := config.EmptySweepConfig()
	run, err := buildTrial(cfg, false, nil)
	require.NoError(t, err)
	v, err := run(context.Background(), sweep.Point{
		{Axis: "tcp", Value: sweep.ParseValue("Vegas")},
		{Axis: "ber", Value: sweep.ParseValue("1e-6")},
		{Axis: "delay", Value: sweep.ParseValue("10ms")},
	}, 0)
	require.NoError(t, err)
	assert.Greater(t, v, 0.0)

	exec := config.TrialExec
	cfg.Trial = &config.TrialConfig{Kind: &exec}
	_, err = buildTrial(cfg, false, nil)
	assert.ErrorContains(t, err, "trial.command")

	bogus := "carrier-pigeon"
	cfg.Trial = &config.TrialConfig{Kind: &bogus}
	_, err = buildTrial(cfg, false, nil)
	assert.ErrorContains(t, err, "unknown trial kind")
}

func TestRunSweep(t *testing.T) {
	cfg, _ := testConfig(t)
	reg := prometheus.NewRegistry()

	sum, err := runSweep(context.Background(), runOptions{cfg: cfg, registerer: reg})
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Points)
	assert.Equal(t, 4, sum.Append.Rows)
	assert.Equal(t, 4, sum.Append.Added)
	assert.True(t, sum.Append.Created)
	require.NotEmpty(t, sum.RunID)

	data, err := os.ReadFile(cfg.GetOutput())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "tcp,ber,mean,off95", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Vegas,1e-06,"))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	db, err := history.Open(cfg.GetHistoryDB())
	require.NoError(t, err)
	defer db.Close()
	run, err := db.GetRun(sum.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, history.StatusComplete, run.Status)
	assert.Equal(t, 4, run.Rows)
	assert.Equal(t, uint64(7), run.Seed)
	assert.Equal(t, "synthetic", run.TrialKind)

	// The same seed reproduces the same file; Replace keeps one row per point.
	again, err := runSweep(context.Background(), runOptions{cfg: cfg})
	require.NoError(t, err)
	assert.Equal(t, 4, again.Append.Replaced)
	data2, err := os.ReadFile(cfg.GetOutput())
	require.NoError(t, err)
	assert.Equal(t, string(data), string(data2))
}

func TestRunSweepShards(t *testing.T) {
	cfg, dir := testConfig(t)

	var parts []string
	for i := 0; i < 2; i++ {
		out := filepath.Join(dir, fmt.Sprintf("part%d.csv", i))
		cfg.Output = &out
		sh, err := sweep.ParseShard(fmt.Sprintf("%d/2", i))
		require.NoError(t, err)
		sum, err := runSweep(context.Background(), runOptions{cfg: cfg, shard: sh})
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Points)
		parts = append(parts, out)
	}

	merged := filepath.Join(dir, "merged.csv")
	res, err := results.Merge(merged, parts)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Rows)
}

func TestRunSweepCancelled(t *testing.T) {
	cfg, _ := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := runSweep(ctx, runOptions{cfg: cfg})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sum.Points)

	db, err := history.Open(cfg.GetHistoryDB())
	require.NoError(t, err)
	defer db.Close()
	run, err := db.GetRun(sum.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, history.StatusCancelled, run.Status)
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	printRuns(&buf, nil)
	assert.Equal(t, "no recorded runs\n", buf.String())

	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(95 * time.Second)
	buf.Reset()
	printRuns(&buf, []history.Run{
		{ID: "b", Status: history.StatusFailed, StartedAt: start, Rows: 3, Incomplete: 1, Shard: "1/2", Output: "p1.csv", Error: "simulator missing"},
		{ID: "a", Status: history.StatusComplete, StartedAt: start, CompletedAt: &end, Rows: 64, Shard: "all", Output: "results.csv"},
	})
	out := buf.String()
	assert.Contains(t, out, "RUN")
	assert.Contains(t, out, "2024-03-01 09:00:00")
	assert.Contains(t, out, "2/3")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "error: simulator missing")
}
