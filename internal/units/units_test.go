package units

import (
	"math"
	"testing"
)

func TestToMillis(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected float64
		wantErr  bool
	}{
		{"milliseconds", "10ms", 10, false},
		{"bare number", "20", 20, false},
		{"padded", "  50ms ", 50, false},
		{"spaced suffix", "1 ms", 1, false},
		{"microseconds", "500us", 0.5, false},
		{"micro sign", "250µs", 0.25, false},
		{"seconds", "1s", 1000, false},
		{"fractional seconds", "0.02s", 20, false},
		{"nanoseconds", "2000000ns", 2, false},
		{"empty", "", 0, true},
		{"unit only", "ms", 0, true},
		{"garbage", "ten", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMillis(tt.text)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToMillis(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("ToMillis(%q) = %v, want %v", tt.text, got, tt.expected)
			}
		})
	}
}

func TestSplitQuantity(t *testing.T) {
	v, unit, err := SplitQuantity("1e-6")
	if err != nil || v != 1e-6 || unit != "" {
		t.Errorf("SplitQuantity(1e-6) = %v, %q, %v", v, unit, err)
	}
	v, unit, err = SplitQuantity("10ms")
	if err != nil || v != 10 || unit != MS {
		t.Errorf("SplitQuantity(10ms) = %v, %q, %v", v, unit, err)
	}
}

func TestConvertTime(t *testing.T) {
	got, err := ConvertTime(1.5, S, US)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-1.5e6) > 1e-6 {
		t.Errorf("expected 1.5e6, got %v", got)
	}
	if _, err := ConvertTime(1, "min", MS); err == nil {
		t.Error("expected error for unknown unit")
	}
}

func TestConvertThroughput(t *testing.T) {
	tests := []struct {
		target   string
		expected float64
	}{
		{BPS, 2500000},
		{KBPS, 2500},
		{"Mbps", 2.5},
		{GBPS, 0.0025},
		{"unknown", 2500},
	}
	for _, tt := range tests {
		if got := ConvertThroughput(2500, tt.target); math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("ConvertThroughput(2500, %s) = %v, want %v", tt.target, got, tt.expected)
		}
	}
}

func TestThroughputKbps(t *testing.T) {
	if got := ThroughputKbps(125000, 1); got != 1000 {
		t.Errorf("expected 1000 Kbps, got %v", got)
	}
	if got := ThroughputKbps(125000, 0); got != 0 {
		t.Errorf("expected 0 for zero duration, got %v", got)
	}
}

func TestIsValid(t *testing.T) {
	for _, u := range ValidTimeUnits {
		if !IsValidTime(u) {
			t.Errorf("IsValidTime(%q) = false", u)
		}
	}
	if IsValidTime("min") {
		t.Error("IsValidTime(min) = true")
	}
	if !IsValidThroughput("Kbps") || IsValidThroughput("baud") {
		t.Error("IsValidThroughput mismatch")
	}
	if got := GetValidThroughputUnitsString(); got != "bps, kbps, mbps, gbps" {
		t.Errorf("GetValidThroughputUnitsString() = %q", got)
	}
}
