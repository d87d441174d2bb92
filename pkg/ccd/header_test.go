package ccd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderCaseInsensitive(t *testing.T) {
	t.Parallel()
	h := NewHeader()
	h.Set("filter", "V")

	got, ok := h.GetString("FILTER")
	require.True(t, ok)
	assert.Equal(t, "V", got)

	h.Set("Filter", "B") // same key, updated in place
	got, _ = h.GetString("filter")
	assert.Equal(t, "B", got)
	assert.Equal(t, 1, h.Len())
}

func TestHeaderKeyOrder(t *testing.T) {
	t.Parallel()
	h := NewHeader()
	h.Set("OBJECT", "m57")
	h.Set("FILTER", "V")
	h.Set("EXPTIME", 30.0)
	h.Set("OBJECT", "m13") // update keeps the original position

	assert.Equal(t, []string{"OBJECT", "FILTER", "EXPTIME"}, h.Keys())
}

func TestHeaderDel(t *testing.T) {
	t.Parallel()
	h := NewHeader()
	h.Set("A", 1)
	h.Set("B", 2)
	h.Del("a")

	assert.Equal(t, []string{"B"}, h.Keys())
	assert.False(t, h.Has("A"))
}

func TestHeaderGetFloat(t *testing.T) {
	t.Parallel()
	h := NewHeader()
	h.Set("F", 1.5)
	h.Set("I", 2)
	h.Set("S", "3.25")
	h.Set("BAD", "not a number")

	for key,want := range map[string]float64{"F": 1.5, "I": 2, "S": 3.25} {
		v, ok := h.GetFloat(key)
		require.True(t, ok, key)
		assert.Equal(t, want, v, key)
	}
	_, ok := h.GetFloat("BAD")
	assert.False(t, ok)
	_, ok = h.GetFloat("MISSING")
	assert.False(t, ok)
}

func TestHeaderClone(t *testing.T) {
	t.Parallel()
	h := NewHeader()
	h.SetWithComment("FILTER", "V", "passband")

	c := h.Clone()
	c.Set("FILTER", "R")
	c.Set("EXTRA", 1)

	got, _ := h.GetString("FILTER")
	assert.Equal(t, "V", got)
	assert.False(t, h.Has("EXTRA"))
	assert.Equal(t, "passband", c.Comment("FILTER"))
}
