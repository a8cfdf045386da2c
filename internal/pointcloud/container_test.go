package pointcloud

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerPutReplacesLabel(t *testing.T) {
	c := NewContainer()

	n, err := c.Put(1, []float32{1, 2, 3}, []float32{0, 0, 0}, []float32{10, 20, 30})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = c.Put(1, []float32{4}, []float32{0.5}, []float32{40})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, c.Size())
	var got []r3.Vector
	c.Iterate(func(_ int, p r3.Vector) bool {
		got = append(got, p)
		return true
	})
	assert.Equal(t, []r3.Vector{{X: 4, Y: 0.5, Z: 40}}, got)
}

func TestContainerPutSkipsInvalid(t *testing.T) {
	c := NewContainer()
	inv := float32(math.MaxFloat32)

	n, err := c.Put(2,
		[]float32{1, inv, 3, 4},
		[]float32{0, 0, 0, 0},
		[]float32{10, 20, inv, float32(math.NaN())})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{2}, c.Labels())
}

func TestContainerPutLengthMismatch(t *testing.T) {
	c := NewContainer()
	_, err := c.Put(1, []float32{1, 2}, []float32{0}, []float32{1, 2})
	assert.Error(t, err)
	assert.Zero(t, c.Size())
}

func TestContainerIteratesByLabel(t *testing.T) {
	c := NewContainer()
	_, _ = c.Put(3, []float32{1}, []float32{1}, []float32{1})
	_, _ = c.Put(1, []float32{2}, []float32{2}, []float32{2})
	assert.Equal(t, []int{1, 3}, c.Labels())

	var order []int
	c.Iterate(func(label int, _ r3.Vector) bool {
		order = append(order, label)
		return true
	})
	assert.Equal(t, []int{1, 3}, order)

	n := 0
	c.Iterate(func(int, r3.Vector) bool {
		n++
		return false
	})
	assert.Equal(t, 1, n, "iteration stops when fn returns false")
}

func TestContainerBounds(t *testing.T) {
	c := NewContainer()
	_, _, ok := c.Bounds()
	assert.False(t, ok)

	_, err := c.Put(1, []float32{-1, 5}, []float32{0, 2}, []float32{60, 55})
	require.NoError(t, err)
	lo, hi, ok := c.Bounds()
	require.True(t, ok)
	assert.Equal(t, r3.Vector{X: -1, Y: 0, Z: 55}, lo)
	assert.Equal(t, r3.Vector{X: 5, Y: 2, Z: 60}, hi)
}
