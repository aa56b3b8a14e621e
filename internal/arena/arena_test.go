package arena

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddReturnsEqualString(t *testing.T) {
	a := New(64)
	got := a.Add("hello")
	assert.Equal(t, "hello", got)
	assert.Equal(t, 5, a.Len())
}

func TestAddAdvancesCursor(t *testing.T) {
	a := New(64)
	a.Add("foo")
	a.Add("bar")
	assert.Equal(t, 6, a.Len())
}

func TestAddOverflowReturnsSentinel(t *testing.T) {
	a := New(4)
	got := a.Add("this is way too long")
	assert.Equal(t, OverflowSentinel, got)
	assert.Equal(t, 0, a.Len(), "a rejected add must not partially consume capacity")
}

func TestResetReclaimsCapacity(t *testing.T) {
	a := New(8)
	a.Add("12345678")
	require.Equal(t, OverflowSentinel, a.Add("x"))
	a.Reset()
	assert.Equal(t, "x", a.Add("x"))
}

func TestAddEmptyString(t *testing.T) {
	a := New(8)
	assert.Equal(t, "", a.Add(""))
	assert.Equal(t, 0, a.Len())
}

func TestAddExactFit(t *testing.T) {
	a := New(4)
	s := strings.Repeat("a", 4)
	assert.Equal(t, s, a.Add(s))
}
