// Package config loads sweep configuration files.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/throughput.report/internal/results"
	"github.com/banshee-data/throughput.report/internal/sweep"
	"github.com/banshee-data/throughput.report/internal/units"
)

// DefaultConfigPath is the example sweep file shipped with the repository.
// It reproduces the original four-variant experiment.
const DefaultConfigPath = "config/sweep.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Trial binding kinds.
const (
	TrialSynthetic = "synthetic"
	TrialExec      = "exec"
)

// AxisConfig declares one sweep axis. Either Values or Range is set. Values
// may be JSON strings or numbers. When Unit names a time unit, bare numbers
// are read in that unit and stored in milliseconds.
type AxisConfig struct {
	Name   string        `json:"name"`
	Unit   string        `json:"unit,omitempty"`
	Values []interface{} `json:"values,omitempty"`
	Range  string        `json:"range,omitempty"` // "min:max:step" or "min:max:xfactor"
}

// TrialConfig selects the trial callback.
type TrialConfig struct {
	Kind    *string           `json:"kind,omitempty"`    // "synthetic" (default) or "exec"
	Command []string          `json:"command,omitempty"` // argv with {axis}, {seed}, {run} placeholders
	Timeout *string           `json:"timeout,omitempty"` // per-trial duration string like "5m"
	Env     map[string]string `json:"env,omitempty"`
	Dir     *string           `json:"dir,omitempty"`
}

// SweepConfig is the root of a sweep file. Omitted fields fall back to the
// defaults returned by the Get* methods, so partial files are safe.
type SweepConfig struct {
	Axes        []AxisConfig `json:"axes,omitempty"`
	Trials      *int         `json:"trials,omitempty"`
	Levels      []float64    `json:"levels,omitempty"`
	Seed        *uint64      `json:"seed,omitempty"`
	Output      *string      `json:"output,omitempty"`
	Duplicates  *string      `json:"duplicates,omitempty"`
	Trial       *TrialConfig `json:"trial,omitempty"`
	HistoryDB   *string      `json:"history_db,omitempty"`
	MetricsAddr *string      `json:"metrics_addr,omitempty"`
}

// EmptySweepConfig returns a SweepConfig with every field unset.
func EmptySweepConfig() *SweepConfig {
	return &SweepConfig{}
}

// LoadSweepConfig loads a SweepConfig from a JSON file. The file must have a
// .json extension and be under 1MB.
func LoadSweepConfig(path string) (*SweepConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseSweepConfig(data)
}

// ParseSweepConfig parses and validates JSON config data.
func ParseSweepConfig(data []byte) (*SweepConfig, error) {
	cfg := EmptySweepConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *SweepConfig) Validate() error {
	if c.Trials != nil && *c.Trials < 1 {
		return fmt.Errorf("trials must be at least 1, got %d", *c.Trials)
	}
	for _, l := range c.Levels {
		if err := sweep.ValidateLevel(l); err != nil {
			return fmt.Errorf("levels: %w", err)
		}
	}
	if c.Duplicates != nil {
		if _, err := results.ParseDuplicatePolicy(*c.Duplicates); err != nil {
			return err
		}
	}
	if c.Output != nil && strings.TrimSpace(*c.Output) == "" {
		return fmt.Errorf("output must not be empty")
	}
	if len(c.Axes) > 0 {
		if _, err := c.BuildAxes(); err != nil {
			return err
		}
	}
	if c.Trial != nil {
		switch kind := c.GetTrialKind(); kind {
		case TrialSynthetic:
		case TrialExec:
			if len(c.Trial.Command) == 0 {
				return fmt.Errorf("trial kind %q requires a command", TrialExec)
			}
		default:
			return fmt.Errorf("unknown trial kind %q (valid: %s, %s)", kind, TrialSynthetic, TrialExec)
		}
		if c.Trial.Timeout != nil && *c.Trial.Timeout != "" {
			if d, err := time.ParseDuration(*c.Trial.Timeout); err != nil || d < 0 {
				return fmt.Errorf("invalid trial timeout '%s'", *c.Trial.Timeout)
			}
		}
	}
	return nil
}

// DefaultAxes returns the original experiment: four TCP variants, four
// bit-error rates and four link delays.
func DefaultAxes() []sweep.Axis {
	return []sweep.Axis{
		sweep.NewAxis("tcp", "NewReno", "Vegas", "Veno", "WestwoodPlus"),
		sweep.NumericAxis("ber", 1e-6, 1e-5, 1e-4, 1e-3),
		sweep.NewAxis("delay", "1ms", "10ms", "20ms", "50ms"),
	}
}

// BuildAxes converts the configured axes, or returns DefaultAxes when none
// are configured.
func (c *SweepConfig) BuildAxes() ([]sweep.Axis, error) {
	if len(c.Axes) == 0 {
		return DefaultAxes(), nil
	}
	axes := make([]sweep.Axis, 0, len(c.Axes))
	for _, ac := range c.Axes {
		a, err := ac.build()
		if err != nil {
			return nil, err
		}
		axes = append(axes, a)
	}
	if err := sweep.ValidateAxes(axes); err != nil {
		return nil, err
	}
	return axes, nil
}

func (ac AxisConfig) build() (sweep.Axis, error) {
	name := strings.TrimSpace(ac.Name)
	if name == "" {
		return sweep.Axis{}, fmt.Errorf("axis with empty name")
	}
	if ac.Unit != "" && !units.IsValidTime(ac.Unit) {
		return sweep.Axis{}, fmt.Errorf("axis %q: unknown unit %q (valid: %s)", name, ac.Unit, units.GetValidTimeUnitsString())
	}
	if (len(ac.Values) > 0) == (ac.Range != "") {
		return sweep.Axis{}, fmt.Errorf("axis %q: set exactly one of values or range", name)
	}

	if ac.Range != "" {
		parts := strings.Split(ac.Range, ":")
		for i := range parts {
			step := strings.TrimSpace(parts[i])
			if i < 2 || !(strings.HasPrefix(step, "x") || strings.HasPrefix(step, "*")) {
				parts[i] = ac.withUnit(parts[i])
			}
		}
		a, err := sweep.ParseAxis(name + "=" + strings.Join(parts, ":"))
		if err != nil {
			return sweep.Axis{}, err
		}
		if ac.Unit != "" {
			a.Unit = units.CanonicalTime
		}
		return a, nil
	}

	raw := make([]string, 0, len(ac.Values))
	for _, v := range ac.Values {
		s, err := coerceValue(v)
		if err != nil {
			return sweep.Axis{}, fmt.Errorf("axis %q: %w", name, err)
		}
		raw = append(raw, ac.withUnit(s))
	}
	a := sweep.NewAxis(name, raw...)
	if ac.Unit != "" {
		a.Unit = units.CanonicalTime
	}
	return a, nil
}

// withUnit appends the axis unit to a bare number.
func (ac AxisConfig) withUnit(s string) string {
	s = strings.TrimSpace(s)
	if ac.Unit == "" {
		return s
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return s + ac.Unit
	}
	return s
}

// coerceValue converts a decoded JSON value to parameter text.
func coerceValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	}
	return "", fmt.Errorf("unsupported value %v (%T)", v, v)
}

// GetTrials returns the trial count or the default (10).
func (c *SweepConfig) GetTrials() int {
	if c.Trials == nil {
		return sweep.DefaultTrialCount
	}
	return *c.Trials
}

// GetLevels returns the confidence levels or the default (0.99, 0.95).
func (c *SweepConfig) GetLevels() []float64 {
	if len(c.Levels) == 0 {
		return append([]float64(nil), sweep.DefaultLevels...)
	}
	return c.Levels
}

// GetSeed returns the master seed or the default (1).
func (c *SweepConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetOutput returns the result file path or the default.
func (c *SweepConfig) GetOutput() string {
	if c.Output == nil {
		return "results.csv"
	}
	return *c.Output
}

// GetDuplicatePolicy returns the duplicate policy or the default (replace).
func (c *SweepConfig) GetDuplicatePolicy() results.DuplicatePolicy {
	if c.Duplicates == nil {
		return results.Replace
	}
	p, err := results.ParseDuplicatePolicy(*c.Duplicates)
	if err != nil {
		return results.Replace
	}
	return p
}

// GetTrialKind returns the trial binding kind or the default (synthetic).
func (c *SweepConfig) GetTrialKind() string {
	if c.Trial == nil || c.Trial.Kind == nil || *c.Trial.Kind == "" {
		return TrialSynthetic
	}
	return strings.ToLower(*c.Trial.Kind)
}

// GetTrialCommand returns the exec argv template.
func (c *SweepConfig) GetTrialCommand() []string {
	if c.Trial == nil {
		return nil
	}
	return c.Trial.Command
}

// GetTrialEnv returns extra environment variables for exec trials.
func (c *SweepConfig) GetTrialEnv() map[string]string {
	if c.Trial == nil {
		return nil
	}
	return c.Trial.Env
}

// GetTrialDir returns the working directory for exec trials.
func (c *SweepConfig) GetTrialDir() string {
	if c.Trial == nil || c.Trial.Dir == nil {
		return ""
	}
	return *c.Trial.Dir
}

// GetTrialTimeout returns the per-trial timeout or the default (10m).
func (c *SweepConfig) GetTrialTimeout() time.Duration {
	const def = 10 * time.Minute
	if c.Trial == nil || c.Trial.Timeout == nil || *c.Trial.Timeout == "" {
		return def
	}
	d, err := time.ParseDuration(*c.Trial.Timeout)
	if err != nil {
		return def
	}
	return d
}

// GetHistoryDB returns the history database path; empty disables history.
func (c *SweepConfig) GetHistoryDB() string {
	if c.HistoryDB == nil {
		return ""
	}
	return *c.HistoryDB
}

// GetMetricsAddr returns the metrics listen address; empty disables it.
func (c *SweepConfig) GetMetricsAddr() string {
	if c.MetricsAddr == nil {
		return ""
	}
	return *c.MetricsAddr
}
