package faceauth

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"
)

// DefaultThreshold is the similarity a gallery entry must strictly exceed.
const DefaultThreshold = 0.6

// Policy selects how the gallery scan picks a winner.
type Policy string

const (
	// BestMatch scans the whole gallery and keeps the highest score above threshold.
	BestMatch Policy = "best"
	// FirstMatch stops at the first entry above threshold, in gallery order.
	FirstMatch Policy = "first"
)

// ParsePolicy parses a policy name. An empty name yields BestMatch.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", BestMatch:
		return BestMatch, nil
	case FirstMatch:
		return FirstMatch, nil
	default:
		return "", fmt.Errorf("unknown match policy %q (want %q or %q)", s, BestMatch, FirstMatch)
	}
}

// ImageSource is a lazily decoded gallery entry.
type ImageSource interface {
	Name() string
	Decode() (image.Image, error)
}

// Candidate is an already embedded gallery entry.
type Candidate struct {
	Name      string
	Embedding Embedding
}

// MatchResult is the outcome of one authorization attempt.
type MatchResult struct {
	Authorized bool    `json:"authorized"`
	Score      float64 `json:"score"`           // 0 unless Authorized
	Entry      string  `json:"entry,omitempty"` // matched gallery entry
	Index      int     `json:"index"`           // -1 unless Authorized
	Closest    float64 `json:"closest"`         // highest similarity seen, even below threshold
	Compared   int     `json:"compared"`
	Skipped    int     `json:"skipped"`
}

// Matcher decides whether a probe face matches any enrolled face.
// It holds no per-attempt state and can be reused across attempts.
type Matcher struct {
	prep      *Preprocessor
	embedder  Embedder
	threshold float64
	policy    Policy
	logger    *zap.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) { m.threshold = threshold }
}

// WithPolicy overrides the default BestMatch policy.
func WithPolicy(p Policy) Option {
	return func(m *Matcher) { m.policy = p }
}

// WithLogger sets the logger used for per-entry diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Matcher) { m.logger = logger }
}

// NewMatcher creates a matcher that encodes probe and gallery images with the
// same preprocessor and embedder.
func NewMatcher(prep *Preprocessor, embedder Embedder, opts ...Option) *Matcher {
	m := &Matcher{
		prep:      prep,
		embedder:  embedder,
		threshold: DefaultThreshold,
		policy:    BestMatch,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the configured similarity threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Policy returns the configured scan policy.
func (m *Matcher) Policy() Policy { return m.policy }

// Embed runs the full preprocessing and embedding pipeline on img.
func (m *Matcher) Embed(ctx context.Context, img image.Image) (Embedding, error) {
	t, err := m.prep.Prepare(img)
	if err != nil {
		return nil, err
	}
	emb, err := m.embedder.Embed(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("%s embed: %w", m.embedder.Name(), err)
	}
	return emb, nil
}

// Authenticate embeds probe and compares it against every gallery entry in order.
// Entries that fail to decode or embed to a degenerate vector are skipped.
// Probe failures and embedder errors abort the attempt.
// An empty gallery, or one where nothing decodes, yields an unauthorized result.
func (m *Matcher) Authenticate(ctx context.Context, probe image.Image, gallery []ImageSource) (*MatchResult, error) {
	probeEmb, err := m.Embed(ctx, probe)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	if err := probeEmb.CheckNorm(); err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}

	s := newScan(m)
	for i, src := range gallery {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := src.Decode()
		if err != nil {
			s.skip(src.Name(), err)
			continue
		}
		emb, err := m.Embed(ctx, img)
		if errors.Is(err, ErrDecodeFailure) {
			s.skip(src.Name(), err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("gallery entry %s: %w", src.Name(), err)
		}

		stop, err := s.consider(i, src.Name(), probeEmb, emb)
		if err != nil {
			return nil, fmt.Errorf("gallery entry %s: %w", src.Name(), err)
		}
		if stop {
			break
		}
	}

	return s.finish(), nil
}

// Decide runs the gallery scan over precomputed embeddings.
func (m *Matcher) Decide(probe Embedding, gallery []Candidate) (*MatchResult, error) {
	if err := probe.CheckNorm(); err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	s := newScan(m)
	for i, c := range gallery {
		stop, err := s.consider(i, c.Name, probe, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("gallery entry %s: %w", c.Name, err)
		}
		if stop {
			break
		}
	}
	return s.finish(), nil
}

// scan accumulates the state of a single gallery pass.
type scan struct {
	m      *Matcher
	result MatchResult
	seen   bool
}

func newScan(m *Matcher) *scan {
	return &scan{m: m, result: MatchResult{Index: -1}}
}

func (s *scan) skip(name string, err error) {
	s.result.Skipped++
	s.m.logger.Debug("skipping gallery entry", zap.String("entry", name), zap.Error(err))
}

// consider compares one entry and reports whether the scan should stop.
func (s *scan) consider(i int, name string, probe, emb Embedding) (bool, error) {
	score, err := CosineSimilarity(probe, emb)
	if errors.Is(err, ErrDegenerateEmbedding) {
		s.skip(name, err)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.result.Compared++
	if !s.seen || score > s.result.Closest {
		s.result.Closest = score
		s.seen = true
	}
	s.m.logger.Debug("compared gallery entry",
		zap.String("entry", name),
		zap.Float64("similarity", score),
	)

	if score <= s.m.threshold {
		return false, nil
	}
	if !s.result.Authorized || score > s.result.Score {
		s.result.Authorized = true
		s.result.Score = score
		s.result.Entry = name
		s.result.Index = i
	}
	return s.m.policy == FirstMatch, nil
}

func (s *scan) finish() *MatchResult {
	r := s.result
	return &r
}
