package firestore

import (
	"math"
	"testing"
)

func TestWholeRupees(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{in: 450, want: 450},
		{in: 450.5, want: 451},
		{in: 450.49, want: 450},
		{in: 0, want: 0},
		{in: -12.6, want: -13},
		{in: math.NaN(), want: -1},
		{in: math.Inf(1), want: -1},
	}
	for _, tc := range cases {
		if got := wholeRupees(tc.in); got != tc.want {
			t.Fatalf("wholeRupees(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
