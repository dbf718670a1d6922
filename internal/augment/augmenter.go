package augment

import (
	"errors"
	"fmt"
	"math/rand"

	"synthcorr/internal/tensor"
)

// ErrEmptyFamily is returned when an Augmenter has no samplers to draw from.
var ErrEmptyFamily = errors.New("augmenter has no transform kinds")

// DefaultFamily returns the affine / perspective pair with its stock ranges.
func DefaultFamily() []Sampler {
	return []Sampler{
		AffineSampler{MaxDegrees: 60, MaxTranslate: 0.5},
		PerspectiveSampler{DistortionScale: 0.5},
	}
}

// Augmenter picks one sampler uniformly per call and applies the sampled
// transform to the whole batch. It is not safe for concurrent use.
type Augmenter struct {
	Family []Sampler
	Warper Warper

	rng *rand.Rand
}

// New returns an Augmenter drawing from family with a seeded random source.
// A nil family selects DefaultFamily.
func New(seed int64, family ...Sampler) *Augmenter {
	if len(family) == 0 {
		family = DefaultFamily()
	}
	return &Augmenter{
		Family: family,
		Warper: DefaultWarper(),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Sample draws one transform for an h×w image.
func (a *Augmenter) Sample(h, w int) (Transform, error) {
	if len(a.Family) == 0 {
		return Transform{}, ErrEmptyFamily
	}
	s := a.Family[a.rng.Intn(len(a.Family))]
	return s.Sample(a.rng, h, w)
}

// Augment samples a transform and applies it to every image of the batch.
func (a *Augmenter) Augment(batch tensor.Batch) (tensor.Batch, Transform, error) {
	s, err := batch.Shape()
	if err != nil {
		return tensor.Batch{}, Transform{}, fmt.Errorf("augment: %w", err)
	}
	if s.N == 0 {
		return tensor.Batch{}, Identity(), nil
	}
	t, err := a.Sample(s.H, s.W)
	if err != nil {
		return tensor.Batch{}, Transform{}, fmt.Errorf("augment: %w", err)
	}
	out, err := t.Apply(batch, a.Warper)
	if err != nil {
		return tensor.Batch{}, Transform{}, fmt.Errorf("augment: %w", err)
	}
	return out, t, nil
}
