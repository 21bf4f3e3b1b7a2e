package analysis

import (
	"encoding/json"
	"testing"
)

func TestPercent(t *testing.T) {
	cases := []struct {
		processed, total, want int
	}{
		{0, 100, 0},
		{50, 100, 50},
		{100, 100, 100},
		{150, 100, 100}, // over-report clips
		{-5, 100, 0},
		{10, 0, 100},  // zero total guards to 1
		{1, 3, 33},    // floor, not round
		{2, 3, 66},
	}
	for _, tc := range cases {
		if got := Percent(tc.processed, tc.total); got != tc.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tc.processed, tc.total, got, tc.want)
		}
	}
}

func TestCoerceInt(t *testing.T) {
	good := []struct {
		in   any
		want int
	}{
		{42, 42},
		{int64(7), 7},
		{uint32(9), 9},
		{3.9, 3}, // truncation, matching integer division semantics
		{json.Number("12"), 12},
		{json.Number("12.7"), 12},
		{"25", 25},
		{"25.9", 25},
	}
	for _, tc := range good {
		got, ok := coerceInt(tc.in)
		if !ok || got != tc.want {
			t.Errorf("coerceInt(%v) = (%d, %v), want (%d, true)", tc.in, got, ok, tc.want)
		}
	}
	bad := []any{"not a number", nil, []int{1}, map[string]int{}}
	for _, in := range bad {
		if _, ok := coerceInt(in); ok {
			t.Errorf("coerceInt(%v) should fail", in)
		}
	}
}
