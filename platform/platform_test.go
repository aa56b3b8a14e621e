package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultNowIsMonotonic(t *testing.T) {
	p := Default()
	a := p.Now()
	b := p.Now()
	assert.GreaterOrEqual(t, b, a, "Now must not go backwards")
}

func TestDefaultFrequencyIsNanosecondResolution(t *testing.T) {
	p := Default()
	assert.Equal(t, uint64(1e9), p.Frequency())
}

func TestClock2Ms(t *testing.T) {
	require.Equal(t, float64(1000), Clock2Ms(1_000_000_000, 1_000_000_000))
	require.Equal(t, float64(500), Clock2Ms(500, 1000))
}

func TestClock2MsZeroFrequency(t *testing.T) {
	assert.Equal(t, float64(0), Clock2Ms(1234, 0))
}

func TestTagForGOOSKnown(t *testing.T) {
	assert.Equal(t, Linux, tagForGOOS("linux"))
	assert.Equal(t, Windows, tagForGOOS("windows"))
	assert.Equal(t, OSX, tagForGOOS("darwin"))
}

func TestTagForGOOSUnknown(t *testing.T) {
	assert.Equal(t, Unknown, tagForGOOS("plan9"))
}

func TestNameRoundTrip(t *testing.T) {
	assert.Equal(t, "Linux", Name(Linux))
	assert.Equal(t, "Unknown", Name(0xFE))
}
