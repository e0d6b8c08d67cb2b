package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStateCode(t *testing.T) {
	cases := []struct {
		code string
		want State
	}{
		{"R", StateRunning},
		{"PD", StatePending},
		{"CG", StateCompleting},
		{"F", StateUnknown},
		{"", StateUnknown},
	}
	for _, c := range cases {
		t.Run(c.code, func(t *testing.T) {
			assert.Equal(t, c.want, ParseStateCode(c.code))
		})
	}
}

// TestWallTimeRoundTrip is spec.md §8 property 7.
func TestWallTimeRoundTrip(t *testing.T) {
	minutes := []float64{0, 1, 59, 60, 61.5, 125, 1500, 90000}
	for _, m := range minutes {
		formatted := FormatWallTime(m)
		parsed, err := ParseWallTime(formatted)
		require.NoError(t, err)
		assert.InDelta(t, m, parsed, 1.0/60.0, "round trip of %v via %q", m, formatted)
	}
}

func TestParseWallTimeComponents(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"30", 0.5},
		{"01:30", 1.5},
		{"01:01:30", 61.5},
		{"2-01:01:30", 2*24*60 + 61.5}, // SLURM day-prefix form
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := ParseWallTime(c.in)
			require.NoError(t, err)
			assert.InDelta(t, c.want, got, 1e-9)
		})
	}
}

func TestFormatWallTimeNegativeClampsToZero(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatWallTime(-5))
}
