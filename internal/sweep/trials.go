package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// ErrNoMeasurement is returned by a TrialFunc when a run completed without
// producing a throughput sample (for example, no flow was observed). The
// trial is recorded as a gap rather than as a zero.
var ErrNoMeasurement = errors.New("no measurement")

// TrialFunc runs one simulation at point p and returns its throughput
// sample. trial is the zero-based repetition index.
type TrialFunc func(ctx context.Context, p Point, trial int) (float64, error)

// TrialSet is the outcome of repeating trials at one point.
type TrialSet struct {
	Point    Point
	Samples  []float64
	Gaps     []int          // trial indexes that produced no sample
	Failures map[int]string // gaps caused by an error other than ErrNoMeasurement
}

// Invalid returns the number of gaps.
func (ts TrialSet) Invalid() int { return len(ts.Gaps) }

// RunTrials invokes run exactly trialCount times, sequentially, at point p.
// Trials returning ErrNoMeasurement, another error, or a non-finite value are
// recorded as gaps. Only cancellation of ctx aborts the loop; the partial set
// is returned together with the context error.
func RunTrials(ctx context.Context, p Point, trialCount int, run TrialFunc, obs Observer) (TrialSet, error) {
	if trialCount <= 0 {
		return TrialSet{Point: p}, fmt.Errorf("trial count must be positive, got %d", trialCount)
	}
	if obs == nil {
		obs = NopObserver{}
	}

	ts := TrialSet{Point: p, Samples: make([]float64, 0, trialCount)}
	for i := 0; i < trialCount; i++ {
		if err := ctx.Err(); err != nil {
			return ts, err
		}

		v, err := run(ctx, p, i)
		switch {
		case err == nil && !math.IsNaN(v) && !math.IsInf(v, 0):
			ts.Samples = append(ts.Samples, v)
		case err == nil:
			ts.gap(i, fmt.Sprintf("non-finite sample %v", v))
		case errors.Is(err, ErrNoMeasurement):
			ts.Gaps = append(ts.Gaps, i)
		case ctx.Err() != nil:
			return ts, ctx.Err()
		default:
			ts.gap(i, err.Error())
		}

		obs.OnTrial(p, i, trialCount)
	}
	return ts, nil
}

func (ts *TrialSet) gap(i int, reason string) {
	ts.Gaps = append(ts.Gaps, i)
	if ts.Failures == nil {
		ts.Failures = make(map[int]string)
	}
	ts.Failures[i] = reason
}

// TrialSeed derives the seed for one trial from a master seed using a
// splitmix64 step, so every trial index gets an independent, reproducible
// stream.
func TrialSeed(master uint64, trial int) uint64 {
	z := master + uint64(trial+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// TrialRand returns a PCG-backed generator for one trial.
func TrialRand(master uint64, trial int) *rand.Rand {
	return rand.New(rand.NewPCG(master, TrialSeed(master, trial)))
}
