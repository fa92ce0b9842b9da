package faceauth

import (
	"context"
	"fmt"
	"math"
)

// Embedding is a fixed-length face descriptor produced by an Embedder.
type Embedding []float32

// Embedder turns a normalized tensor into an embedding.
// Implementations load their model once and must be released with Close.
// For a fixed model and input the output is deterministic.
type Embedder interface {
	Embed(ctx context.Context, t *Tensor) (Embedding, error)
	Name() string
	Close() error
}

// Norm returns the L2 norm of the embedding.
func (e Embedding) Norm() float64 {
	var sum float64
	for _, v := range e {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CheckNorm returns ErrDegenerateEmbedding when e cannot be unit-normalized.
func (e Embedding) CheckNorm() error {
	n := e.Norm()
	if !(n > 0) || math.IsInf(n, 0) {
		return fmt.Errorf("%w: norm %v over %d values", ErrDegenerateEmbedding, n, len(e))
	}
	return nil
}

// Normalized returns a unit-length copy of e.
func (e Embedding) Normalized() (Embedding, error) {
	if err := e.CheckNorm(); err != nil {
		return nil, err
	}
	n := e.Norm()
	out := make(Embedding, len(e))
	for i, v := range e {
		out[i] = float32(float64(v) / n)
	}
	return out, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, clamped to [-1, 1].
// Both vectors are unit-normalized first; a zero-norm vector is an error rather than a score.
func CosineSimilarity(a, b Embedding) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if err := a.CheckNorm(); err != nil {
		return 0, err
	}
	if err := b.CheckNorm(); err != nil {
		return 0, err
	}

	na, nb := a.Norm(), b.Norm()
	var dot float64
	for i := range a {
		dot += (float64(a[i]) / na) * (float64(b[i]) / nb)
	}

	// Rounding can push the result slightly outside [-1, 1].
	return max(-1, min(1, dot)), nil
}
