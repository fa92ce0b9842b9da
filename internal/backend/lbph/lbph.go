// Package lbph implements a model-free embedder based on Local Binary Pattern
// histograms (8 neighbors, radius 1, 8x8 grid of 256-bin cell histograms).
//
// Histogram vectors are non-negative, so cosine similarities between them are
// bunched near 1. Use a match threshold around 0.9 with this backend, or
// compare vectors with ChiSquare.
package lbph

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/kozaktomas/face-gate/internal/faceauth"
)

const (
	neighbors = 8
	bins      = 256
	gridX     = 8
	gridY     = 8

	// Dim is the length of every feature vector.
	Dim = gridX * gridY * bins
)

// Neighbor offsets, clockwise starting at (x+1, y).
var (
	dx = [neighbors]int{1, 1, 0, -1, -1, -1, 0, 1}
	dy = [neighbors]int{0, -1, -1, -1, 0, 1, 1, 1}
)

// Embedder computes LBP histogram feature vectors.
type Embedder struct {
	closed atomic.Bool
}

// New returns an LBPH embedder. It holds no external resources.
func New() *Embedder {
	return &Embedder{}
}

func (e *Embedder) Name() string { return "lbph" }

func (e *Embedder) Close() error {
	e.closed.Store(true)
	return nil
}

// Embed converts the tensor back to 8-bit grayscale and returns its
// concatenated, per-cell normalized LBP histograms.
func (e *Embedder) Embed(ctx context.Context, t *faceauth.Tensor) (faceauth.Embedding, error) {
	if e.closed.Load() {
		return nil, fmt.Errorf("lbph embedder is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	gray := Grayscale(t)
	codes := Codes(gray, faceauth.InputSize, faceauth.InputSize)
	return Histograms(codes, faceauth.InputSize, faceauth.InputSize), nil
}

// Grayscale recovers 8-bit luma (ITU-R BT.601) from a normalized tensor.
func Grayscale(t *faceauth.Tensor) []uint8 {
	gray := make([]uint8, faceauth.InputSize*faceauth.InputSize)
	for y := range faceauth.InputSize {
		for x := range faceauth.InputSize {
			r := denormalize(t.At(x, y, 0))
			g := denormalize(t.At(x, y, 1))
			b := denormalize(t.At(x, y, 2))
			luma := 0.299*r + 0.587*g + 0.114*b
			gray[y*faceauth.InputSize+x] = uint8(min(255, max(0, luma+0.5)))
		}
	}
	return gray
}

func denormalize(v float32) float64 {
	return float64(v)*128 + 127.5
}

// Codes computes the LBP code of every pixel. Border pixels get code 0.
func Codes(img []uint8, w, h int) []uint8 {
	codes := make([]uint8, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			center := img[y*w+x]
			var code uint8
			for n := range neighbors {
				code <<= 1
				if img[(y+dy[n])*w+x+dx[n]] >= center {
					code |= 1
				}
			}
			codes[y*w+x] = code
		}
	}
	return codes
}

// Histograms builds the gridX x gridY cell histograms of codes, each
// normalized to sum to 1. The last row and column of cells absorb any
// remainder when the size is not divisible by the grid.
func Histograms(codes []uint8, w, h int) faceauth.Embedding {
	cellW := w / gridX
	cellH := h / gridY
	hist := make(faceauth.Embedding, Dim)

	for gy := range gridY {
		for gx := range gridX {
			x0, y0 := gx*cellW, gy*cellH
			x1, y1 := x0+cellW, y0+cellH
			if gx == gridX-1 {
				x1 = w
			}
			if gy == gridY-1 {
				y1 = h
			}

			base := (gy*gridX + gx) * bins
			var count float32
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[base+int(codes[y*w+x])]++
					count++
				}
			}
			if count > 0 {
				for b := range bins {
					hist[base+b] /= count
				}
			}
		}
	}
	return hist
}

// ChiSquare returns the chi-square distance between two histogram vectors.
// Lower is more similar; identical vectors give 0.
func ChiSquare(a, b faceauth.Embedding) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", faceauth.ErrDimensionMismatch, len(a), len(b))
	}
	var s float64
	for i := range a {
		num := float64(a[i]) - float64(b[i])
		den := float64(a[i]) + float64(b[i]) + 1e-10
		s += 0.5 * num * num / den
	}
	return s, nil
}
