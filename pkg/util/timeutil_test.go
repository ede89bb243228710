package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCeilHour(t *testing.T) {
	loc := time.FixedZone("MDT", -6*60*60)
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2024, 6, 1, 10, 0, 0, 0, loc), time.Date(2024, 6, 1, 10, 0, 0, 0, loc)},
		{time.Date(2024, 6, 1, 10, 0, 1, 0, loc), time.Date(2024, 6, 1, 11, 0, 0, 0, loc)},
		{time.Date(2024, 6, 1, 10, 59, 59, 0, loc), time.Date(2024, 6, 1, 11, 0, 0, 0, loc)},
		{time.Date(2024, 6, 1, 23, 30, 0, 0, loc), time.Date(2024, 6, 2, 0, 0, 0, 0, loc)},
	}
	for _, tc := range tests {
		require.True(t, tc.want.Equal(CeilHour(tc.in)), "ceil(%s)", tc.in)
	}
}

func TestRound2(t *testing.T) {
	require.Equal(t, 1.23, Round2(1.234))
	require.Equal(t, 1.24, Round2(1.235001))
	require.Equal(t, 0.0, Round2(0.001))
}
