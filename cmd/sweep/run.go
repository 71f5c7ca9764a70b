package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/throughput.report/internal/config"
	"github.com/banshee-data/throughput.report/internal/history"
	"github.com/banshee-data/throughput.report/internal/metrics"
	"github.com/banshee-data/throughput.report/internal/results"
	"github.com/banshee-data/throughput.report/internal/sweep"
	"github.com/banshee-data/throughput.report/internal/trial"
)

// runOptions is a parsed "sweep run" invocation.
type runOptions struct {
	cfg     *config.SweepConfig
	axes    []string // -axis overrides
	shard   sweep.Shard
	verbose bool

	// registerer receives the sweep metrics; nil disables them.
	registerer prometheus.Registerer
	// stderr receives exec trial stderr in verbose mode.
	stderr io.Writer
}

// runSummary reports what a sweep did.
type runSummary struct {
	RunID      string
	Output     string
	Points     int
	Incomplete int
	Append     results.AppendResult
}

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Sweep configuration file (JSON)")
	output := fs.String("output", "", "Result file (overrides config)")
	trials := fs.Int("trials", 0, "Trials per point (overrides config)")
	seed := fs.String("seed", "", "Master seed (overrides config)")
	levels := fs.String("levels", "", "Comma-separated confidence levels (overrides config)")
	shard := fs.String("shard", "", "Run only shard i of n, as i/n")
	duplicates := fs.String("duplicates", "", "Duplicate policy: replace, reject or keep")
	historyPath := fs.String("history", "", "History database (overrides config)")
	metricsAddr := fs.String("metrics", "", "Prometheus metrics listen address (overrides config)")
	quiet := fs.Bool("quiet", false, "Only log warnings and errors")
	verbose := fs.Bool("v", false, "Log every trial and pass simulator stderr through")
	var axes axisList
	fs.Var(&axes, "axis", "Axis override as name=v1,v2 or name=min:max:step (repeatable)")
	fs.Parse(args)
	rtx.Must(flagx.ArgsFromEnv(fs), "failed to read flags from the environment")

	setupLogging(*quiet, *verbose)

	cfg := config.EmptySweepConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadSweepConfig(*configPath)
		rtx.Must(err, "failed to load sweep config")
	}
	rtx.Must(applyOverrides(cfg, overrides{
		output:      *output,
		trials:      *trials,
		seed:        *seed,
		levels:      *levels,
		duplicates:  *duplicates,
		history:     *historyPath,
		metricsAddr: *metricsAddr,
	}), "invalid flags")

	sh, err := sweep.ParseShard(*shard)
	rtx.Must(err, "invalid -shard")

	opts := runOptions{cfg: cfg, axes: axes, shard: sh, verbose: *verbose, stderr: os.Stderr}
	if addr := cfg.GetMetricsAddr(); addr != "" {
		rtx.Must(flag.Set("prometheusx.listen-address", addr), "invalid -metrics address")
		promSrv := prometheusx.MustServeMetrics()
		defer promSrv.Close()
		opts.registerer = prometheus.DefaultRegisterer
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sum, err := runSweep(ctx, opts)
	if errors.Is(err, context.Canceled) {
		log.Warn("Sweep interrupted; finished rows were kept", "output", sum.Output, "points", sum.Points)
		os.Exit(130)
	}
	rtx.Must(err, "sweep failed")
	log.Info("Sweep complete",
		"output", sum.Output, "points", sum.Points, "incomplete", sum.Incomplete,
		"rows", sum.Append.Rows, "run", sum.RunID)
}

// axisList collects repeated -axis flags. Values keep their commas, which
// separate axis values.
type axisList []string

func (a *axisList) String() string { return strings.Join(*a, " ") }

func (a *axisList) Set(s string) error {
	*a = append(*a, s)
	return nil
}

type overrides struct {
	output, seed, levels, duplicates, history, metricsAddr string
	trials                                                 int
}

// applyOverrides writes non-empty flag values over the configuration.
func applyOverrides(cfg *config.SweepConfig, o overrides) error {
	if o.output != "" {
		cfg.Output = &o.output
	}
	if o.trials != 0 {
		cfg.Trials = &o.trials
	}
	if o.seed != "" {
		s, err := strconv.ParseUint(o.seed, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed %q: %w", o.seed, err)
		}
		cfg.Seed = &s
	}
	if o.levels != "" {
		l, err := sweep.ParseLevels(o.levels)
		if err != nil {
			return err
		}
		cfg.Levels = l
	}
	if o.duplicates != "" {
		if _, err := results.ParseDuplicatePolicy(o.duplicates); err != nil {
			return err
		}
		cfg.Duplicates = &o.duplicates
	}
	if o.history != "" {
		cfg.HistoryDB = &o.history
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = &o.metricsAddr
	}
	return cfg.Validate()
}

// buildAxes returns the configured axes with each -axis override replacing
// the axis of the same name, or appended when new.
func buildAxes(cfg *config.SweepConfig, overrides []string) ([]sweep.Axis, error) {
	axes, err := cfg.BuildAxes()
	if err != nil {
		return nil, err
	}
	for _, raw := range overrides {
		a, err := sweep.ParseAxis(raw)
		if err != nil {
			return nil, err
		}
		replaced := false
		for i := range axes {
			if axes[i].Name == a.Name {
				axes[i] = a
				replaced = true
			}
		}
		if !replaced {
			axes = append(axes, a)
		}
	}
	if err := sweep.ValidateAxes(axes); err != nil {
		return nil, err
	}
	return axes, nil
}

// buildTrial binds the configured trial kind.
func buildTrial(cfg *config.SweepConfig, verbose bool, stderr io.Writer) (sweep.TrialFunc, error) {
	switch kind := cfg.GetTrialKind(); kind {
	case config.TrialSynthetic:
		return (&trial.Synthetic{Seed: cfg.GetSeed()}).Trial, nil
	case config.TrialExec:
		e := &trial.Exec{
			Command: cfg.GetTrialCommand(),
			Timeout: cfg.GetTrialTimeout(),
			Env:     cfg.GetTrialEnv(),
			Dir:     cfg.GetTrialDir(),
			Seed:    cfg.GetSeed(),
		}
		if len(e.Command) == 0 {
			return nil, errors.New("exec trials need a trial.command")
		}
		if verbose {
			e.Stderr = stderr
		}
		return e.Trial, nil
	default:
		return nil, fmt.Errorf("unknown trial kind %q", kind)
	}
}

// runSweep runs the configured sweep, appending each finished row to the
// result file and, when configured, recording it in the history database.
func runSweep(ctx context.Context, o runOptions) (runSummary, error) {
	cfg := o.cfg
	sum := runSummary{Output: cfg.GetOutput()}

	axes, err := buildAxes(cfg, o.axes)
	if err != nil {
		return sum, err
	}
	run, err := buildTrial(cfg, o.verbose, o.stderr)
	if err != nil {
		return sum, err
	}
	levels := cfg.GetLevels()

	store := results.NewStore(sum.Output,
		results.WithDuplicatePolicy(cfg.GetDuplicatePolicy()),
		results.WithSchema(sweep.AxisNames(axes), levels))

	observers := sweep.MultiObserver{sweep.LogObserver{Trials: o.verbose, Levels: levels}}
	if o.registerer != nil {
		observers = append(observers, metrics.New(o.registerer))
	}

	var hist *history.DB
	if path := cfg.GetHistoryDB(); path != "" {
		if hist, err = history.Open(path); err != nil {
			return sum, err
		}
		defer hist.Close()
		sum.RunID, err = hist.StartRun(&history.Run{
			Trials:    cfg.GetTrials(),
			Seed:      cfg.GetSeed(),
			Levels:    levels,
			Axes:      history.AxisRecords(axes),
			Output:    sum.Output,
			Shard:     o.shard.String(),
			TrialKind: cfg.GetTrialKind(),
		})
		if err != nil {
			return sum, err
		}
		observers = append(observers, hist.Recorder(sum.RunID))
	}

	sink := func(row sweep.Row) error {
		t := sweep.NewTable(sweep.AxisNames(axes), levels)
		t.Rows = append(t.Rows, row)
		res, err := store.Append(t)
		if err != nil {
			return err
		}
		sum.Points++
		if row.Incomplete {
			sum.Incomplete++
		}
		sum.Append.Path = res.Path
		sum.Append.Created = sum.Append.Created || res.Created
		sum.Append.Added += res.Added
		sum.Append.Replaced += res.Replaced
		sum.Append.Rows = res.Rows
		sum.Append.Warnings = append(sum.Append.Warnings, res.Warnings...)
		return nil
	}

	engine, err := sweep.NewEngine(sweep.Options{
		TrialCount: cfg.GetTrials(),
		Levels:     levels,
		Observer:   observers,
		Shard:      o.shard,
		Sink:       sink,
	})
	if err != nil {
		return sum, err
	}

	_, err = engine.RunSweep(ctx, axes, run)
	if hist != nil {
		status, msg := history.StatusComplete, ""
		switch {
		case errors.Is(err, context.Canceled):
			status, msg = history.StatusCancelled, err.Error()
		case err != nil:
			status, msg = history.StatusFailed, err.Error()
		}
		if ferr := hist.FinishRun(sum.RunID, status, msg); ferr != nil {
			log.Error("Failed to record run status", "run", sum.RunID, "error", ferr)
		}
	}
	return sum, err
}
