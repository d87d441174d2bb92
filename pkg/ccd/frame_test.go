package ccd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameShape(t *testing.T) {
	t.Parallel()
	f := NewFrame(4, 3)
	assert.Equal(t, 4, f.Dx())
	assert.Equal(t, 3, f.Dy())
	assert.Equal(t, 12, f.Npix())
}

func TestFrameFromValues(t *testing.T) {
	t.Parallel()
	f := NewFrameFromValues("t", [][]float64{
		{1, 2, 3},
		{4, 5, 6},
	})
	assert.Equal(t, 3, f.Dx())
	assert.Equal(t, 2, f.Dy())
	assert.Equal(t, 6.0, f.Get(2, 1))
}

func TestFrameAtOutOfBounds(t *testing.T) {
	t.Parallel()
	f := NewFrame(2, 2)
	assert.True(t, math.IsNaN(f.At(-1, 0)))
	assert.True(t, math.IsNaN(f.At(0, 2)))
	assert.False(t, math.IsNaN(f.At(1, 1)))
}

func TestFrameClone(t *testing.T) {
	t.Parallel()
	f := NewFrame(2, 2)
	f.Fill(7)
	f.Header.Set("FILTER", "V")

	c := f.Clone()
	c.Set(0, 0, 99)
	c.Header.Set("FILTER", "B")

	assert.Equal(t, 7.0, f.Get(0, 0), "clone writes must not touch the original")
	got, _ := f.Header.GetString("FILTER")
	assert.Equal(t, "V", got)
}

func TestFrameArith(t *testing.T) {
	t.Parallel()
	a := NewFrameFromValues("a", [][]float64{{10, 20}})
	b := NewFrameFromValues("b", [][]float64{{4, 5}})

	sub, err := a.Arith(b, OpSub)
	require.NoError(t, err)
	assert.Equal(t, 6.0, sub.Get(0, 0))
	assert.Equal(t, 15.0, sub.Get(1, 0))

	// Inputs untouched
	assert.Equal(t, 10.0, a.Get(0, 0))
}

func TestFrameArithDivideByZero(t *testing.T) {
	t.Parallel()
	a := NewFrameFromValues("a", [][]float64{{8}})
	b := NewFrameFromValues("b", [][]float64{{0}})

	q, err := a.Arith(b, OpDiv)
	require.NoError(t, err)
	assert.Equal(t, 0.0, q.Get(0, 0), "divide by zero passes zero through, never Inf")
}

func TestFrameArithShapeMismatch(t *testing.T) {
	t.Parallel()
	a := NewFrame(2, 2)
	b := NewFrame(3, 2)
	_, err := a.Arith(b, OpAdd)
	var sm *ShapeMismatchError
	require.ErrorAs(t, err, &sm)
}

func TestFrameArithUnknownOp(t *testing.T) {
	t.Parallel()
	a := NewFrame(1, 1)
	_, err := a.ArithScalar(1, ArithOp("%"))
	var um *UnsupportedMethodError
	require.ErrorAs(t, err, &um)
}

func TestExposureTime(t *testing.T) {
	t.Parallel()
	f := NewFrame(1, 1)
	_, ok := f.ExposureTime()
	assert.False(t, ok)

	f.Header.Set("EXPOSURE", 30.0)
	v, ok := f.ExposureTime()
	require.True(t, ok)
	assert.Equal(t, 30.0, v)

	f.Header.Set("EXPTIME", 60.0) // EXPTIME wins over EXPOSURE
	v, _ = f.ExposureTime()
	assert.Equal(t, 60.0, v)
}
