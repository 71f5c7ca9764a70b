package trial

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/banshee-data/throughput.report/internal/sweep"
	"github.com/banshee-data/throughput.report/internal/units"
)

// Synthetic is a closed-form stand-in for the network simulator. It applies
// the Mathis et al. steady-state TCP model to the packet loss implied by the
// bit-error rate and the round trip implied by the link delay, scales by a
// per-variant factor and adds multiplicative noise. Outputs are Kbps.
//
// Every (point, trial) pair draws from its own PCG stream derived from Seed,
// so results are reproducible and independent of sweep order.
type Synthetic struct {
	Seed uint64

	LinkKbps    float64 // bottleneck capacity, default 5000
	PacketBytes float64 // on-wire packet size for loss, default 1500
	MSSBytes    float64 // default 1448
	Duration    float64 // simulated seconds, default 10
	Noise       float64 // relative noise standard deviation, default 0.04

	VariantAxis string // default "tcp"
	BERAxis     string // default "ber"
	DelayAxis   string // default "delay", milliseconds
}

// variantFactor models how each congestion controller copes with random
// (non-congestive) loss. Unknown variants get a stable pseudo-random factor.
var variantFactor = map[string]float64{
	"NewReno":      1.00,
	"Vegas":        0.92,
	"Veno":         1.12,
	"WestwoodPlus": 1.25,
}

func (s *Synthetic) withDefaults() Synthetic {
	c := *s
	if c.LinkKbps <= 0 {
		c.LinkKbps = 5000
	}
	if c.PacketBytes <= 0 {
		c.PacketBytes = 1500
	}
	if c.MSSBytes <= 0 {
		c.MSSBytes = 1448
	}
	if c.Duration <= 0 {
		c.Duration = 10
	}
	if c.Noise <= 0 {
		c.Noise = 0.04
	}
	if c.VariantAxis == "" {
		c.VariantAxis = "tcp"
	}
	if c.BERAxis == "" {
		c.BERAxis = "ber"
	}
	if c.DelayAxis == "" {
		c.DelayAxis = "delay"
	}
	return c
}

func pointHash(p sweep.Point) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(p.Key()))
	return h.Sum64()
}

// Trial implements sweep.TrialFunc.
func (s *Synthetic) Trial(ctx context.Context, p sweep.Point, trial int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c := s.withDefaults()
	rng := sweep.TrialRand(c.Seed^pointHash(p), trial)

	ber := 0.0
	if v, ok := p.Get(c.BERAxis); ok && v.Numeric {
		ber = math.Max(0, math.Min(v.Num, 1))
	}
	delayMS := 10.0
	if v, ok := p.Get(c.DelayAxis); ok && v.Numeric {
		delayMS = math.Max(0, v.Num)
	}
	factor := 1.0
	if v, ok := p.Get(c.VariantAxis); ok {
		if f, known := variantFactor[v.Text]; known {
			factor = f
		} else {
			factor = 0.85 + 0.3*float64(pointHash(sweep.Point{{Axis: c.VariantAxis, Value: v}})%1000)/1000
		}
	}

	// Probability that a packet carries at least one bit error.
	loss := -math.Expm1(c.PacketBytes * 8 * math.Log1p(-ber))
	if ber >= 1 {
		loss = 1
	}

	// The flow may never establish when nearly every packet is corrupted.
	if rng.Float64() < math.Pow(loss, 40) {
		return 0, sweep.ErrNoMeasurement
	}

	rttSec := (2*delayMS + 1) / 1e3
	rate := c.LinkKbps
	if loss > 0 {
		mathis := units.ThroughputKbps(c.MSSBytes, rttSec) * 1.22 / math.Sqrt(loss)
		rate = math.Min(rate, mathis*factor)
	} else {
		rate *= math.Min(1, 0.97*factor)
	}

	// Slow start eats into short runs on long paths.
	rampSec := rttSec * math.Log2(math.Max(2, rate*1e3/8/c.MSSBytes*rttSec))
	rate *= math.Max(0, 1-rampSec/c.Duration/2)

	rate *= 1 + c.Noise*rng.NormFloat64()
	if rate <= 0 {
		return 0, sweep.ErrNoMeasurement
	}
	return rate, nil
}
