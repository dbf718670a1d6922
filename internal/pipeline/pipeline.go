// Package pipeline wires grid encoding, augmentation and matching into the
// single call used by training code.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"synthcorr/internal/augment"
	"synthcorr/internal/config"
	"synthcorr/internal/correspond"
	"synthcorr/internal/grid"
	"synthcorr/internal/metrics"
	"synthcorr/internal/tensor"

	"github.com/sirupsen/logrus"
)

// ErrInvalidCount is returned when fewer than one correspondence is requested.
var ErrInvalidCount = errors.New("correspondence count must be at least 1")

// ErrNoAugmenter is returned by Run when no augmenter is configured.
var ErrNoAugmenter = errors.New("pipeline has no augmenter")

// Result is the output of one Run.
type Result struct {
	// Reference is the identity-transformed batch (unchanged content).
	Reference tensor.Batch
	// Augmented is the batch after Transform.
	Augmented tensor.Batch
	Transform augment.Transform
	// Sets holds one correspondence set per image.
	Sets []correspond.Set
}

// Stack returns source and destination coordinates as N×K×2 arrays.
func (r *Result) Stack(k int) (src, dst []float64, err error) {
	return correspond.Stack(r.Sets, k)
}

// Pipeline runs encode → augment → decode → match. It is not safe for
// concurrent use because the augmenter owns a random source.
type Pipeline struct {
	Augmenter *augment.Augmenter
	Matcher   correspond.Matcher

	logger  logrus.FieldLogger
	metrics *metrics.Metrics
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records run outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New builds a Pipeline around an augmenter.
func New(a *augment.Augmenter, opts ...Option) *Pipeline {
	p := &Pipeline{
		Augmenter: a,
		Matcher:   *correspond.NewMatcher(1),
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FromConfig builds a Pipeline from configuration.
func FromConfig(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	family, err := Family(cfg.Augment)
	if err != nil {
		return nil, err
	}
	p := New(augment.New(cfg.Pipeline.Seed, family...), opts...)
	p.Matcher.Oversample = cfg.Pipeline.Oversample
	p.Matcher.Workers = cfg.Pipeline.Workers
	if cfg.Pipeline.Tolerance > 0 {
		p.Matcher.IsMatch = correspond.WithinTolerance(cfg.Pipeline.Tolerance)
	}
	return p, nil
}

// Family maps configured kind names to samplers.
func Family(cfg config.Augment) ([]augment.Sampler, error) {
	family := make([]augment.Sampler, 0, len(cfg.Kinds))
	for _, name := range cfg.Kinds {
		kind, err := augment.ParseKind(name)
		if err != nil {
			return nil, err
		}
		switch kind {
		case augment.KindAffine:
			family = append(family, augment.AffineSampler{MaxDegrees: cfg.MaxDegrees, MaxTranslate: cfg.MaxTranslate})
		case augment.KindPerspective:
			family = append(family, augment.PerspectiveSampler{DistortionScale: cfg.DistortionScale})
		default:
			return nil, fmt.Errorf("transform kind %s cannot be sampled", kind)
		}
	}
	return family, nil
}

// Run augments images and extracts k correspondences per image.
func (p *Pipeline) Run(images tensor.Batch, k int) (*Result, error) {
	t, err := p.sample(images)
	if err != nil {
		return nil, err
	}
	return p.RunWith(images, k, t)
}

func (p *Pipeline) sample(images tensor.Batch) (augment.Transform, error) {
	s, err := images.Shape()
	if err != nil {
		return augment.Transform{}, err
	}
	if s.N == 0 {
		return augment.Identity(), nil
	}
	if p.Augmenter == nil {
		return augment.Transform{}, ErrNoAugmenter
	}
	return p.Augmenter.Sample(s.H, s.W)
}

// RunWith is Run with a caller-chosen transform for the augmented branch.
func (p *Pipeline) RunWith(images tensor.Batch, k int, t augment.Transform) (*Result, error) {
	start := time.Now()
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCount, k)
	}
	s, err := images.Shape()
	if err != nil {
		return nil, err
	}

	encoded, err := grid.Encode(images)
	if err != nil {
		return nil, err
	}

	var warper augment.Warper
	if p.Augmenter != nil {
		warper = p.Augmenter.Warper
	}
	refEncoded, err := augment.Identity().Apply(encoded, warper)
	if err != nil {
		return nil, fmt.Errorf("reference branch: %w", err)
	}
	augEncoded, err := t.Apply(encoded, warper)
	if err != nil {
		return nil, fmt.Errorf("augmented branch: %w", err)
	}

	reference, gridsA, err := grid.Decode(refEncoded, s.C)
	if err != nil {
		return nil, err
	}
	augmented, gridsB, err := grid.Decode(augEncoded, s.C)
	if err != nil {
		return nil, err
	}

	m := p.Matcher
	m.K = k
	sets, err := m.MatchBatch(gridsA, gridsB)
	if err != nil {
		return nil, err
	}

	p.record(t, sets, k, time.Since(start))
	return &Result{
		Reference: reference,
		Augmented: augmented,
		Transform: t,
		Sets:      sets,
	}, nil
}

func (p *Pipeline) record(t augment.Transform, sets []correspond.Set, k int, elapsed time.Duration) {
	if p.metrics != nil {
		p.metrics.Runs.WithLabelValues(t.Kind.String()).Inc()
		p.metrics.RunDuration.Observe(elapsed.Seconds())
	}

	degenerate := 0
	for i, s := range sets {
		if p.metrics != nil {
			p.metrics.Matches.Observe(float64(s.Matches))
		}
		if !s.Empty() {
			continue
		}
		degenerate++
		if p.metrics != nil {
			p.metrics.Degenerate.WithLabelValues(s.Reason.String()).Inc()
		}
		p.logger.WithFields(logrus.Fields{
			"image":      i,
			"kind":       t.Kind,
			"reason":     s.Reason,
			"candidates": s.Candidates,
		}).Warn("empty correspondence set")
	}

	p.logger.WithFields(logrus.Fields{
		"kind":       t.Kind,
		"images":     len(sets),
		"k":          k,
		"degenerate": degenerate,
		"elapsed":    elapsed,
	}).Debug("pipeline run")
}
