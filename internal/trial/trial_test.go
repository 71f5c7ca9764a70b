package trial

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/throughput.report/internal/sweep"
)

func pt(tcp, ber, delay string) sweep.Point {
	return sweep.Point{
		{Axis: "tcp", Value: sweep.ParseValue(tcp)},
		{Axis: "ber", Value: sweep.ParseValue(ber)},
		{Axis: "delay", Value: sweep.ParseValue(delay)},
	}
}

func TestParseSample(t *testing.T) {
	testCases := []struct {
		name    string
		out     string
		want    float64
		wantErr error
		anyErr  bool
	}{
		{"plain", "5123.4\n", 5123.4, nil, false},
		{"last_line_wins", "starting\nflow 1\n4200\n\n", 4200, nil, false},
		{"labelled", "throughput: 812.5", 812.5, nil, false},
		{"kv", "kbps=99", 99, nil, false},
		{"none", "None\n", 0, sweep.ErrNoMeasurement, false},
		{"empty", "", 0, sweep.ErrNoMeasurement, false},
		{"negative_sentinel", "-1\n", 0, sweep.ErrNoMeasurement, false},
		{"nan", "nan", 0, sweep.ErrNoMeasurement, false},
		{"garbage", "segfault", 0, nil, true},
		{"only_separators", "::", 0, nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSample(tc.out)
			switch {
			case tc.wantErr != nil:
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("expected %v, got %v", tc.wantErr, err)
				}
			case tc.anyErr:
				if err == nil || errors.Is(err, sweep.ErrNoMeasurement) {
					t.Errorf("expected parse error, got %v", err)
				}
			default:
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExec_PlaceholdersAndEnv(t *testing.T) {
	requireShell(t)

	e := &Exec{
		Command: []string{"sh", "-c", `test "$SWEEP_TCP" = "{tcp}" && test "$SWEEP_DELAY" = 10 && test "$EXTRA" = yes && echo "run {run} seed {seed}" && echo "${SWEEP_RUN}{delay}"`},
		Env:     map[string]string{"EXTRA": "yes"},
		Seed:    7,
	}
	got, err := e.Trial(context.Background(), pt("Vegas", "1e-6", "10ms"), 2)
	require.NoError(t, err)
	// SWEEP_RUN=3 followed by the delay text "10".
	assert.Equal(t, 310.0, got)
}

func TestReplacerSinglePass(t *testing.T) {
	e := &Exec{Seed: 42}
	p := sweep.Point{
		{Axis: "tcp", Value: sweep.ParseValue("{ber}")},
		{Axis: "ber", Value: sweep.ParseValue("1e-5")},
	}
	r := replacer(e.vars(p, 0))
	for i := 0; i < 20; i++ {
		assert.Equal(t, "--tcp={ber} --ber=1e-05 --seed=42 --run=1", r.Replace("--tcp={tcp} --ber={ber} --seed={seed} --run={run}"))
	}
	want := []placeholder{{"tcp", "{ber}"}, {"ber", "1e-05"}, {"seed", "42"}, {"run", "1"}}
	assert.Equal(t, want, e.vars(p, 0))
}

func TestExec_SeedIsMasterSeed(t *testing.T) {
	requireShell(t)

	e := &Exec{Command: []string{"sh", "-c", `test "$SWEEP_SEED" = {seed} && echo {seed}`}, Seed: 9}
	for trial := 0; trial < 3; trial++ {
		got, err := e.Trial(context.Background(), pt("Vegas", "1e-6", "10"), trial)
		require.NoError(t, err)
		assert.Equal(t, 9.0, got)
	}
}

func TestExec_Failures(t *testing.T) {
	requireShell(t)
	p := pt("Veno", "1e-5", "1")

	_, err := (&Exec{Command: []string{"sh", "-c", "echo boom >&2; exit 3"}}).Trial(context.Background(), p, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.False(t, errors.Is(err, sweep.ErrNoMeasurement))

	_, err = (&Exec{Command: []string{"sh", "-c", "echo -1"}}).Trial(context.Background(), p, 0)
	assert.ErrorIs(t, err, sweep.ErrNoMeasurement)

	_, err = (&Exec{Command: []string{"sh", "-c", "exec sleep 5"}, Timeout: 50 * time.Millisecond}).Trial(context.Background(), p, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = (&Exec{}).Trial(context.Background(), p, 0)
	assert.Error(t, err)
}

func TestExec_TimeoutBecomesGap(t *testing.T) {
	requireShell(t)

	e := &Exec{Command: []string{"sh", "-c", `if [ "{run}" = 2 ]; then exec sleep 5; fi; echo 100`}, Timeout: 100 * time.Millisecond}
	ts, err := sweep.RunTrials(context.Background(), pt("Vegas", "1e-6", "1"), 3, e.Trial, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 100}, ts.Samples)
	assert.Equal(t, []int{1}, ts.Gaps)
	assert.Contains(t, ts.Failures[1], "deadline")
}

func TestSynthetic_Deterministic(t *testing.T) {
	s := &Synthetic{Seed: 1}
	p := pt("NewReno", "1e-5", "10")

	a, errA := s.Trial(context.Background(), p, 3)
	b, errB := s.Trial(context.Background(), p, 3)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)

	c, err := s.Trial(context.Background(), p, 4)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	other, err := (&Synthetic{Seed: 2}).Trial(context.Background(), p, 3)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func meanOf(t *testing.T, s *Synthetic, p sweep.Point, n int) (float64, int) {
	t.Helper()
	sum, ok := 0.0, 0
	for i := 0; i < n; i++ {
		v, err := s.Trial(context.Background(), p, i)
		if errors.Is(err, sweep.ErrNoMeasurement) {
			continue
		}
		require.NoError(t, err)
		sum += v
		ok++
	}
	if ok == 0 {
		return 0, 0
	}
	return sum / float64(ok), ok
}

func TestSynthetic_Trends(t *testing.T) {
	s := &Synthetic{Seed: 1}

	low, _ := meanOf(t, s, pt("NewReno", "1e-6", "10"), 20)
	mid, _ := meanOf(t, s, pt("NewReno", "1e-5", "10"), 20)
	high, _ := meanOf(t, s, pt("NewReno", "1e-4", "10"), 20)
	assert.Greater(t, low, mid)
	assert.Greater(t, mid, high)

	short, _ := meanOf(t, s, pt("NewReno", "1e-5", "1"), 20)
	long, _ := meanOf(t, s, pt("NewReno", "1e-5", "50"), 20)
	assert.Greater(t, short, long)

	westwood, _ := meanOf(t, s, pt("WestwoodPlus", "1e-5", "50"), 20)
	assert.Greater(t, westwood, long)

	for _, v := range []float64{low, mid, high, short, long} {
		assert.LessOrEqual(t, v, 5000*1.2)
		assert.Greater(t, v, 0.0)
	}

	_, valid := meanOf(t, s, pt("Vegas", "1e-3", "10"), 20)
	assert.Less(t, valid, 2, "nearly every packet is corrupted at ber 1e-3")
}

func TestSynthetic_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Synthetic{}).Trial(ctx, pt("Vegas", "1e-6", "1"), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSynthetic_UnknownVariantAndAxes(t *testing.T) {
	s := &Synthetic{Seed: 3}
	p := sweep.Point{{Axis: "tcp", Value: sweep.ParseValue("Cubic")}}
	v, err := s.Trial(context.Background(), p, 0)
	require.NoError(t, err)
	assert.Greater(t, v, 0.0)
}
