package correspond

import (
	"testing"

	"synthcorr/internal/augment"
	"synthcorr/internal/grid"
	"synthcorr/internal/tensor"
	"synthcorr/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coords(t *testing.T, h, w int) tensor.Image {
	t.Helper()
	g, err := grid.Coordinates(h, w)
	require.NoError(t, err)
	return g
}

func warped(t *testing.T, g tensor.Image, tr augment.Transform) tensor.Image {
	t.Helper()
	out, err := augment.NearestWarper{}.Warp(g, tr.Forward)
	require.NoError(t, err)
	return out
}

func TestLinspace(t *testing.T) {
	tests := []struct {
		name     string
		n, steps int
		want     []int
	}{
		{"single step", 10, 1, []int{0}},
		{"endpoints included", 10, 4, []int{0, 3, 6, 9}},
		{"repeats when short", 3, 5, []int{0, 1, 1, 2, 2}},
		{"one element", 1, 3, []int{0, 0, 0}},
		{"rounds half away from zero", 4, 3, []int{0, 2, 3}},
		{"empty range", 0, 4, nil},
		{"no steps", 4, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Linspace(tt.n, tt.steps))
		})
	}
}

func TestPredicates(t *testing.T) {
	assert.False(t, ValidSource(0, 0))
	assert.True(t, ValidSource(0, 1))
	assert.True(t, ValidSource(3, 0))
	assert.True(t, ExactMatch(0))
	assert.False(t, ExactMatch(1e-9))
	assert.True(t, WithinTolerance(1.5)(1.4))
	assert.False(t, WithinTolerance(1.5)(1.6))
	assert.Equal(t, 2.0, Round(2.5))
	assert.Equal(t, 4.0, Round(3.5))
}

func TestIdentityMatchesItself(t *testing.T) {
	g := coords(t, 9, 11)
	m := NewMatcher(16)

	set, err := m.Match(g, g.Clone())
	require.NoError(t, err)
	require.Equal(t, 16, set.Len())
	assert.Equal(t, ReasonNone, set.Reason)
	assert.Equal(t, 9*11-1, set.Candidates)
	// every subsampled source finds exactly one destination: itself
	assert.Equal(t, 5*16, set.Matches)
	assert.Equal(t, set.Source, set.Destination)
}

func TestTranslationExample(t *testing.T) {
	images, err := tensor.FromFlat(make([]float64, 3*8*8), tensor.Shape{N: 1, C: 3, H: 8, W: 8})
	require.NoError(t, err)
	enc, err := grid.Encode(images)
	require.NoError(t, err)
	moved, err := augment.Translate(2, 0).Apply(enc, augment.NearestWarper{})
	require.NoError(t, err)

	_, gridsA, err := grid.Decode(enc, 3)
	require.NoError(t, err)
	_, gridsB, err := grid.Decode(moved, 3)
	require.NoError(t, err)

	sets, err := NewMatcher(4).MatchBatch(gridsA, gridsB)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	set := sets[0]
	require.Equal(t, 4, set.Len())
	for i := 0; i < 4; i++ {
		assert.Equal(t, set.Source[i].Row+2, set.Destination[i].Row, "pair %d", i)
		assert.Equal(t, set.Source[i].Col, set.Destination[i].Col, "pair %d", i)
	}
}

func TestPureTranslationOffsets(t *testing.T) {
	for _, shift := range [][2]int{{1, 3}, {-2, 1}, {0, -4}, {3, 3}} {
		g := coords(t, 16, 16)
		set, err := NewMatcher(12).Match(g, warped(t, g, augment.Translate(float64(shift[0]), float64(shift[1]))))
		require.NoError(t, err)
		require.Equal(t, 12, set.Len())
		for i := range set.Source {
			assert.Equal(t, set.Source[i].Offset(shift[0], shift[1]), set.Destination[i], "shift %v pair %d", shift, i)
		}
	}
}

func TestPairsShareProvenance(t *testing.T) {
	a := augment.New(11)
	g := coords(t, 24, 20)
	for i := 0; i < 20; i++ {
		tr, err := a.Sample(24, 20)
		require.NoError(t, err)
		gb := warped(t, g, tr)

		set, err := NewMatcher(8).Match(g, gb)
		require.NoError(t, err)
		if set.Empty() {
			continue
		}
		require.Equal(t, 8, set.Len())
		for j := range set.Source {
			d := set.Destination[j]
			assert.Equal(t, float64(set.Source[j].Row), Round(gb.At(0, d.Row, d.Col)))
			assert.Equal(t, float64(set.Source[j].Col), Round(gb.At(1, d.Row, d.Col)))
		}
	}
}

func TestFewMatchesRepeat(t *testing.T) {
	g := coords(t, 4, 4)
	set, err := NewMatcher(3).Match(g, warped(t, g, augment.Translate(3, 2)))
	require.NoError(t, err)

	require.Equal(t, 3, set.Len())
	assert.Equal(t, 1, set.Matches)
	assert.Equal(t, 1, set.Distinct())
	for i := range set.Source {
		assert.Equal(t, geometry.Pixel{Row: 0, Col: 1}, set.Source[i])
		assert.Equal(t, geometry.Pixel{Row: 3, Col: 3}, set.Destination[i])
	}
}

func TestDegenerateSets(t *testing.T) {
	t.Run("no valid source pixels", func(t *testing.T) {
		zero, err := tensor.NewImage(2, 5, 5)
		require.NoError(t, err)
		set, err := NewMatcher(4).Match(zero, zero)
		require.NoError(t, err)
		assert.True(t, set.Empty())
		assert.Equal(t, ReasonNoValidPixels, set.Reason)
	})

	t.Run("everything moved out of frame", func(t *testing.T) {
		g := coords(t, 4, 4)
		set, err := NewMatcher(4).Match(g, warped(t, g, augment.Translate(3, 3)))
		require.NoError(t, err)
		assert.True(t, set.Empty())
		assert.Equal(t, ReasonNoMatches, set.Reason)
		assert.Equal(t, 15, set.Candidates)
	})
}

func TestToleranceMatchesMore(t *testing.T) {
	g := coords(t, 12, 12)
	gb := g.Clone()
	// store every column one too far to the right
	for r := 0; r < 12; r++ {
		for c := 0; c < 12; c++ {
			gb.Planes[1].Set(r, c, gb.At(1, r, c)+1)
		}
	}

	exact, err := NewMatcher(4).Match(g, gb)
	require.NoError(t, err)

	loose := NewMatcher(4)
	loose.IsMatch = WithinTolerance(1)
	near, err := loose.Match(g, gb)
	require.NoError(t, err)

	assert.Greater(t, near.Matches, exact.Matches)
	assert.Equal(t, 4, near.Len())
}

func TestMatchShapeErrors(t *testing.T) {
	g := coords(t, 4, 4)
	other := coords(t, 4, 5)
	m := NewMatcher(2)

	_, err := m.Match(g, other)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = m.Match(g.Slice(0, 1), g)
	assert.ErrorIs(t, err, tensor.ErrChannelCount)

	m.K = 0
	_, err = m.Match(g, g)
	assert.Error(t, err)

	_, err = NewMatcher(2).MatchBatch(tensor.Batch{Images: []tensor.Image{g}}, tensor.Batch{})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestMatchRejectsHugeK(t *testing.T) {
	g := coords(t, 8, 8)
	for _, k := range []int{MaxCandidates/DefaultOversample + 1, 1 << 62} {
		_, err := NewMatcher(k).Match(g, g)
		assert.ErrorIs(t, err, ErrTooManyCandidates, "k=%d", k)
	}

	m := NewMatcher(4)
	m.Oversample = MaxCandidates
	_, err := m.Match(g, g)
	assert.ErrorIs(t, err, ErrTooManyCandidates, "oversample counts toward the bound")
}

func TestMatchBatchWorkers(t *testing.T) {
	a := augment.New(3)
	var ga, gb []tensor.Image
	for i := 0; i < 6; i++ {
		g := coords(t, 10, 10)
		tr, err := a.Sample(10, 10)
		require.NoError(t, err)
		ga = append(ga, g)
		gb = append(gb, warped(t, g, tr))
	}
	batchA := tensor.Batch{Images: ga}
	batchB := tensor.Batch{Images: gb}

	seq, err := NewMatcher(5).MatchBatch(batchA, batchB)
	require.NoError(t, err)

	par := NewMatcher(5)
	par.Workers = 3
	got, err := par.MatchBatch(batchA, batchB)
	require.NoError(t, err)
	assert.Equal(t, seq, got)
}
