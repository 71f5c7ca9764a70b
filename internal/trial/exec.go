// Package trial provides the trial callbacks the sweep engine drives: an
// external simulator command and a deterministic synthetic model.
package trial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/throughput.report/internal/monitoring"
	"github.com/banshee-data/throughput.report/internal/sweep"
)

var logf = monitoring.Component("trial")

// waitDelay bounds how long a killed simulator's orphaned children may keep
// its output pipes open.
const waitDelay = 2 * time.Second

// Exec runs one external simulator process per trial. Every argument may use
// {axis} placeholders (canonical value text; delays in ms), {seed} (master
// seed, the same for every trial) and {run} (1-based trial number); a
// simulator derives its per-trial stream from the pair, as ns-3's
// SetSeed/SetRun do. Substitution is a single pass, so placeholder text
// inside a substituted value is left alone. The same values are exported as
// SWEEP_<AXIS>, SWEEP_SEED and SWEEP_RUN. The last non-empty stdout line is
// the throughput sample in Kbps; "none", "nan", an empty output or a negative
// number means no measurement.
type Exec struct {
	Command []string
	Timeout time.Duration
	Env     map[string]string
	Dir     string
	Seed    uint64

	// Stderr receives the simulator's stderr; nil discards it except for the
	// tail quoted in failure errors.
	Stderr io.Writer
}

// Trial implements sweep.TrialFunc.
func (e *Exec) Trial(ctx context.Context, p sweep.Point, trial int) (float64, error) {
	if len(e.Command) == 0 {
		return 0, errors.New("exec trial: empty command")
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	vars := e.vars(p, trial)
	r := replacer(vars)
	args := make([]string, len(e.Command))
	for i, a := range e.Command {
		args[i] = r.Replace(a)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = e.Dir
	cmd.WaitDelay = waitDelay
	cmd.Env = os.Environ()
	for k, v := range e.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	for _, v := range vars {
		cmd.Env = append(cmd.Env, "SWEEP_"+envName(v.name)+"="+v.value)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if e.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, e.Stderr)
	}

	start := time.Now()
	err := cmd.Run()
	if ctx.Err() != nil {
		return 0, fmt.Errorf("trial %d at %s: %w", trial, p, ctx.Err())
	}
	if err != nil {
		return 0, fmt.Errorf("trial %d at %s: %w: %s", trial, p, err, tail(stderr.String(), 200))
	}
	logf("trial %d at %s finished in %v", trial, p, time.Since(start).Round(time.Millisecond))
	return ParseSample(stdout.String())
}

type placeholder struct {
	name, value string
}

// vars lists the placeholders for one trial: the point's axes in order, then
// seed and run.
func (e *Exec) vars(p sweep.Point, trial int) []placeholder {
	vars := make([]placeholder, 0, len(p)+2)
	for _, c := range p {
		vars = append(vars, placeholder{c.Axis, c.Value.Text})
	}
	return append(vars,
		placeholder{"seed", strconv.FormatUint(e.Seed, 10)},
		placeholder{"run", strconv.Itoa(trial + 1)},
	)
}

func replacer(vars []placeholder) *strings.Replacer {
	oldnew := make([]string, 0, 2*len(vars))
	for _, v := range vars {
		oldnew = append(oldnew, "{"+v.name+"}", v.value)
	}
	return strings.NewReplacer(oldnew...)
}

func envName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return "..." + s[len(s)-n:]
	}
	return s
}

// ParseSample extracts the throughput sample from simulator output.
func ParseSample(out string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	switch strings.ToLower(last) {
	case "", "none", "nan", "na":
		return 0, sweep.ErrNoMeasurement
	}
	// Accept "throughput: 123.4" style lines by taking the last field.
	fields := strings.FieldsFunc(last, func(r rune) bool { return r == ' ' || r == '\t' || r == ':' || r == '=' })
	if len(fields) == 0 {
		return 0, fmt.Errorf("unparseable simulator output %q", last)
	}
	v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable simulator output %q: %w", last, err)
	}
	if v < 0 || math.IsNaN(v) {
		return 0, sweep.ErrNoMeasurement
	}
	return v, nil
}
