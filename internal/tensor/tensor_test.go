package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFromFlatRoundTrip(t *testing.T) {
	s := Shape{N: 2, C: 3, H: 2, W: 4}
	data := make([]float64, s.N*s.C*s.H*s.W)
	for i := range data {
		data[i] = float64(i)
	}

	b, err := FromFlat(data, s)
	require.NoError(t, err)

	got, shape, err := b.Flat()
	require.NoError(t, err)
	assert.Equal(t, s, shape)
	assert.Equal(t, data, got)

	// image 1, channel 2, row 1, col 3 is the last element
	assert.Equal(t, float64(len(data)-1), b.Images[1].At(2, 1, 3))
}

func TestFromFlatErrors(t *testing.T) {
	_, err := FromFlat(nil, Shape{N: 1, C: 1, H: 0, W: 4})
	assert.ErrorIs(t, err, ErrEmptySpatial)

	_, err = FromFlat(make([]float64, 3), Shape{N: 1, C: 1, H: 2, W: 2})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestNewBatchRejectsMixedShapes(t *testing.T) {
	a, err := NewImage(3, 4, 4)
	require.NoError(t, err)
	b, err := NewImage(3, 4, 5)
	require.NoError(t, err)
	c, err := NewImage(1, 4, 4)
	require.NoError(t, err)

	_, err = NewBatch(a, b)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = NewBatch(a, c)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = NewImage(1, 0, 4)
	assert.ErrorIs(t, err, ErrEmptySpatial)
}

func TestConcatAndSliceCopy(t *testing.T) {
	a := Image{Planes: []*mat.Dense{mat.NewDense(1, 2, []float64{1, 2})}}
	b := Image{Planes: []*mat.Dense{mat.NewDense(1, 2, []float64{3, 4})}}

	joined := a.Concat(b)
	require.Equal(t, 2, joined.Channels())
	assert.Equal(t, 3.0, joined.At(1, 0, 0))

	tail := joined.Slice(1, 2)
	tail.Planes[0].Set(0, 0, 99)
	assert.Equal(t, 3.0, joined.At(1, 0, 0), "slice must not alias")
	assert.Equal(t, 3.0, b.At(0, 0, 0), "concat must not alias")
}
