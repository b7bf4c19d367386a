package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name       string
		start, end Timespec
		want       Timespec
	}{
		{"no borrow", Timespec{1, 100}, Timespec{3, 500}, Timespec{2, 400}},
		{"borrow", Timespec{1, 900_000_000}, Timespec{3, 100_000_000}, Timespec{1, 200_000_000}},
		{"equal", Timespec{5, 5}, Timespec{5, 5}, Timespec{0, 0}},
		{"sub second borrow", Timespec{0, 999_999_999}, Timespec{1, 0}, Timespec{0, 1}},
		{"negative span", Timespec{3, 0}, Timespec{1, 500_000_000}, Timespec{-2, 500_000_000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.start, tt.end)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.end.Duration()-tt.start.Duration(), got.Duration())
		})
	}
}

func TestFromDuration(t *testing.T) {
	assert.Equal(t, Timespec{2, 5}, FromDuration(2*time.Second+5))
	assert.Equal(t, Timespec{-1, 999_999_999}, FromDuration(-1))
	assert.Equal(t, 1500*time.Millisecond, FromDuration(1500*time.Millisecond).Duration())
}

func TestFormatAndParse(t *testing.T) {
	ts := Timespec{Sec: 12, Nsec: 287327749}
	assert.Equal(t, "12.287327749", ts.String())
	assert.Equal(t, "0.000000042", Timespec{Nsec: 42}.String())

	got, err := ParseTimespec("12.287327749")
	require.NoError(t, err)
	assert.Equal(t, ts, got)

	for _, bad := range []string{"", "12", "12.5", "x.000000001", "1.-00000001"} {
		_, err := ParseTimespec(bad)
		assert.Error(t, err, bad)
	}
}

func TestBefore(t *testing.T) {
	assert.True(t, Timespec{1, 5}.Before(Timespec{1, 6}))
	assert.True(t, Timespec{1, 999}.Before(Timespec{2, 0}))
	assert.False(t, Timespec{2, 0}.Before(Timespec{2, 0}))
}

func TestMonotonicClock(t *testing.T) {
	c := NewMonotonicClock()
	a := c.Now()
	time.Sleep(2 * time.Millisecond)
	b := c.Now()
	assert.True(t, a.Before(b))
	assert.GreaterOrEqual(t, Diff(a, b).Duration(), 2*time.Millisecond)
	assert.False(t, c.Wall().IsZero())
}
