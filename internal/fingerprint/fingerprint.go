// Package fingerprint computes perceptual hashes of face images so that the
// same capture is not enrolled twice.
package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/bits"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	dctSize   = 32 // side of the luma grid fed to the DCT
	blockSize = 8  // side of the low-frequency block kept from it
)

// Hash holds the DCT-based perceptual hash and the gradient-based difference
// hash of one image.
type Hash struct {
	Perceptual uint64
	Difference uint64
}

// Of hashes a decoded image.
func Of(img image.Image) Hash {
	return Hash{
		Perceptual: perceptual(img),
		Difference: difference(img),
	}
}

// Decode decodes image data in any registered format and hashes it.
func Decode(data []byte) (Hash, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Hash{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return Of(img), nil
}

// PHash returns the perceptual hash as 16 hex digits.
func (h Hash) PHash() string { return fmt.Sprintf("%016x", h.Perceptual) }

// DHash returns the difference hash as 16 hex digits.
func (h Hash) DHash() string { return fmt.Sprintf("%016x", h.Difference) }

// Distance is the larger of the two Hamming distances, so two images are
// only close when both hashes agree.
func (h Hash) Distance(other Hash) int {
	return max(
		bits.OnesCount64(h.Perceptual^other.Perceptual),
		bits.OnesCount64(h.Difference^other.Difference),
	)
}

// Duplicate reports whether other is within maxDistance bits of h.
func (h Hash) Duplicate(other Hash, maxDistance int) bool {
	return h.Distance(other) <= maxDistance
}

// perceptual sets one bit per low-frequency DCT coefficient above the median.
// The DC term only carries mean brightness and is left out, so bit 63 is
// always zero.
func perceptual(img image.Image) uint64 {
	coeffs := lowFrequencies(luma(img, dctSize, dctSize))
	ac := coeffs[1:]
	median := medianOf(ac)

	var h uint64
	for _, c := range ac {
		h <<= 1
		if c > median {
			h |= 1
		}
	}
	return h
}

// difference sets one bit per horizontal pair whose left pixel is brighter.
func difference(img image.Image) uint64 {
	g := luma(img, blockSize+1, blockSize)

	var h uint64
	for y := range blockSize {
		for x := range blockSize {
			h <<= 1
			if g[y][x] > g[y][x+1] {
				h |= 1
			}
		}
	}
	return h
}

// luma scales img to w x h and returns its BT.601 luma, indexed [y][x].
func luma(img image.Image, w, h int) [][]float64 {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	rows := make([][]float64, h)
	for y := range h {
		rows[y] = make([]float64, w)
		for x := range w {
			o := dst.PixOffset(x, y)
			rows[y][x] = 0.299*float64(dst.Pix[o]) + 0.587*float64(dst.Pix[o+1]) + 0.114*float64(dst.Pix[o+2])
		}
	}
	return rows
}

// lowFrequencies returns the top-left blockSize x blockSize coefficients of
// the 2-D DCT-II of a square grid, row-major. Only the kept block is computed,
// one separable pass per axis.
func lowFrequencies(g [][]float64) []float64 {
	n := len(g)
	basis := make([][]float64, blockSize)
	for k := range basis {
		basis[k] = make([]float64, n)
		for i := range n {
			basis[k][i] = math.Cos(math.Pi * float64(k) * (2*float64(i) + 1) / (2 * float64(n)))
		}
	}

	// rows[y][v]: DCT of row y along x.
	rows := make([][]float64, n)
	for y := range n {
		rows[y] = make([]float64, blockSize)
		for v := range blockSize {
			var sum float64
			for x := range n {
				sum += g[y][x] * basis[v][x]
			}
			rows[y][v] = sum
		}
	}

	out := make([]float64, blockSize*blockSize)
	for u := range blockSize {
		for v := range blockSize {
			var sum float64
			for y := range n {
				sum += rows[y][v] * basis[u][y]
			}
			out[u*blockSize+v] = sum
		}
	}
	return out
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
