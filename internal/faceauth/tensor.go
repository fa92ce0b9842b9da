package faceauth

import (
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"
)

const (
	// InputSize is the edge length of the square model input in pixels.
	InputSize = 112
	// Channels is the number of color channels fed to the model (RGB).
	Channels = 3

	pixelMean  = 127.5
	pixelScale = 128.0
)

// TensorShape is the NHWC shape every model input must have.
var TensorShape = [4]int{1, InputSize, InputSize, Channels}

// Tensor is a normalized model input in NHWC layout with RGB channel order.
type Tensor struct {
	Shape [4]int
	Data  []float32
}

// Validate checks the tensor against TensorShape.
func (t *Tensor) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil tensor", ErrShapeMismatch)
	}
	if t.Shape != TensorShape {
		return fmt.Errorf("%w: got %v, want %v", ErrShapeMismatch, t.Shape, TensorShape)
	}
	want := TensorShape[0] * TensorShape[1] * TensorShape[2] * TensorShape[3]
	if len(t.Data) != want {
		return fmt.Errorf("%w: %d values, want %d", ErrShapeMismatch, len(t.Data), want)
	}
	return nil
}

// At returns the normalized value at pixel (x, y) for channel c.
func (t *Tensor) At(x, y, c int) float32 {
	return t.Data[(y*InputSize+x)*Channels+c]
}

// Interpolation names accepted by ParseInterpolation.
const (
	InterpolationNearest        = "nearest"
	InterpolationBilinear       = "bilinear"
	InterpolationApproxBilinear = "approx-bilinear"
	InterpolationCatmullRom     = "catmull-rom"
)

// DefaultInterpolation is used when none is configured.
const DefaultInterpolation = InterpolationBilinear

// ParseInterpolation maps a configuration name to a resampling kernel.
func ParseInterpolation(name string) (draw.Interpolator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", InterpolationBilinear:
		return draw.BiLinear, nil
	case InterpolationNearest:
		return draw.NearestNeighbor, nil
	case InterpolationApproxBilinear:
		return draw.ApproxBiLinear, nil
	case InterpolationCatmullRom:
		return draw.CatmullRom, nil
	default:
		return nil, fmt.Errorf("unknown interpolation %q", name)
	}
}

// Preprocessor converts decoded images into model tensors.
// A single instance must be used for probe and gallery images so both
// go through the same resampling.
type Preprocessor struct {
	name   string
	scaler draw.Interpolator
}

// NewPreprocessor creates a preprocessor using the named interpolation.
func NewPreprocessor(interpolation string) (*Preprocessor, error) {
	scaler, err := ParseInterpolation(interpolation)
	if err != nil {
		return nil, err
	}
	name := strings.ToLower(strings.TrimSpace(interpolation))
	if name == "" {
		name = DefaultInterpolation
	}
	return &Preprocessor{name: name, scaler: scaler}, nil
}

// Interpolation returns the configured interpolation name.
func (p *Preprocessor) Interpolation() string {
	return p.name
}

// Prepare resizes img to InputSize x InputSize, maps every channel value v to
// (v - 127.5) / 128 and returns it with a leading batch axis.
func (p *Preprocessor) Prepare(img image.Image) (*Tensor, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrDecodeFailure)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: empty image %v", ErrDecodeFailure, bounds)
	}

	dst := image.NewRGBA(image.Rect(0, 0, InputSize, InputSize))
	p.scaler.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)

	data := make([]float32, InputSize*InputSize*Channels)
	for y := range InputSize {
		for x := range InputSize {
			off := dst.PixOffset(x, y)
			i := (y*InputSize + x) * Channels
			data[i] = normalizePixel(dst.Pix[off])
			data[i+1] = normalizePixel(dst.Pix[off+1])
			data[i+2] = normalizePixel(dst.Pix[off+2])
		}
	}

	t := &Tensor{Shape: TensorShape, Data: data}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func normalizePixel(v uint8) float32 {
	return (float32(v) - pixelMean) / pixelScale
}
