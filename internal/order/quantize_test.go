package order

import (
	"math"
	"testing"
)

func TestFloorToStep(t *testing.T) {
	cases := []struct {
		name  string
		value float64
		step  float64
		want  float64
	}{
		{"exact multiple", 0.003, 0.001, 0.003},
		{"rounds down", 0.0035, 0.001, 0.003},
		{"below one step", 0.0009, 0.001, 0},
		{"price tick", 65123.45, 0.1, 65123.4},
		{"zero step", 1, 0, 0},
		{"zero value", 0, 0.001, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FloorToStep(tc.value, tc.step)
			if math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("FloorToStep(%v, %v) = %v, want %v", tc.value, tc.step, got, tc.want)
			}
		})
	}
}

func TestFloorToStepNeverRoundsUp(t *testing.T) {
	values := []float64{0.0014999, 1.9999999, 100.049, 0.3333333}
	steps := []float64{0.001, 0.01, 0.05, 0.1}

	for _, v := range values {
		for _, s := range steps {
			got := FloorToStep(v, s)
			if got > v {
				t.Errorf("FloorToStep(%v, %v) = %v exceeds input", v, s, got)
			}
			if !IsStepMultiple(got, s) {
				t.Errorf("FloorToStep(%v, %v) = %v is not a multiple of step", v, s, got)
			}
		}
	}
}

func TestSplitEven(t *testing.T) {
	cases := []struct {
		name      string
		total     float64
		parts     int
		step      float64
		wantSlice float64
		wantLast  float64
	}{
		// 0.3/3 in binary floats is 0.09999..., a plain float floor
		// would shrink every slice by one step.
		{"exact thirds", 0.003, 3, 0.001, 0.001, 0.001},
		{"thirds with float artifact", 0.3, 3, 0.1, 0.1, 0.1},
		{"remainder absorbed by last", 0.005, 3, 0.001, 0.001, 0.003},
		{"single part", 0.0025, 1, 0.001, 0.002, 0.002},
		{"total too small", 0.0005, 2, 0.001, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			slice, last := SplitEven(tc.total, tc.parts, tc.step)
			if math.Abs(slice-tc.wantSlice) > 1e-12 || math.Abs(last-tc.wantLast) > 1e-12 {
				t.Errorf("SplitEven(%v, %d, %v) = (%v, %v), want (%v, %v)",
					tc.total, tc.parts, tc.step, slice, last, tc.wantSlice, tc.wantLast)
			}

			sum := slice*float64(tc.parts-1) + last
			if sum > tc.total+1e-12 {
				t.Errorf("dispatched sum %v exceeds total %v", sum, tc.total)
			}
		})
	}
}

func TestQuantizeRejectsNonFiniteInputs(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if got := FloorToStep(v, 0.001); got != 0 {
			t.Errorf("FloorToStep(%v, 0.001) = %v, want 0", v, got)
		}
		if got := FloorToStep(1, v); got != 0 {
			t.Errorf("FloorToStep(1, %v) = %v, want 0", v, got)
		}
		if IsStepMultiple(v, 0.001) {
			t.Errorf("IsStepMultiple(%v, 0.001) = true, want false", v)
		}
		if got := Notional(v, 0.01); got != 0 {
			t.Errorf("Notional(%v, 0.01) = %v, want 0", v, got)
		}
		slice, last := SplitEven(v, 3, 0.001)
		if slice != 0 || last != 0 {
			t.Errorf("SplitEven(%v, 3, 0.001) = (%v, %v), want zeros", v, slice, last)
		}
	}
}

func TestNotional(t *testing.T) {
	if got := Notional(65000, 0.001); math.Abs(got-65) > 1e-12 {
		t.Errorf("Notional(65000, 0.001) = %v, want 65", got)
	}
}
