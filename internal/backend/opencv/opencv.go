// Package opencv runs face embedding models with the OpenCV DNN module, which
// can target accelerators (CUDA, OpenVINO, Vulkan) where available.
package opencv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/kozaktomas/face-gate/internal/faceauth"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Config selects the model and DNN execution backend.
type Config struct {
	ModelPath  string
	Backend    string // default, halide, openvino, opencv, vulkan, cuda
	Target     string // cpu, fp32, fp16, vpu, vulkan, fpga, cuda, cudafp16
	InputName  string
	OutputName string
}

// Embedder wraps a loaded gocv.Net. The net is not safe for concurrent use,
// so Embed serializes calls.
type Embedder struct {
	mu     sync.Mutex
	net    gocv.Net
	cfg    Config
	closed bool
}

// New loads the model once. The returned embedder must be closed.
func New(cfg Config, logger *zap.Logger) (*Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("failed to load model from %s", cfg.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.ParseNetBackend(cfg.Backend)); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set dnn backend %q: %w", cfg.Backend, err)
	}
	if err := net.SetPreferableTarget(gocv.ParseNetTarget(cfg.Target)); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set dnn target %q: %w", cfg.Target, err)
	}

	logger.Info("loaded opencv dnn model",
		zap.String("path", cfg.ModelPath),
		zap.String("backend", cfg.Backend),
		zap.String("target", cfg.Target),
	)
	return &Embedder{net: net, cfg: cfg}, nil
}

func (e *Embedder) Name() string { return "opencv" }

// Embed feeds the NHWC tensor as a 4-D float Mat and returns the flattened output.
func (e *Embedder) Embed(ctx context.Context, t *faceauth.Tensor) (faceauth.Embedding, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New("opencv embedder is closed")
	}

	sizes := faceauth.TensorShape[:]
	blob, err := gocv.NewMatWithSizesFromBytes(sizes, gocv.MatTypeCV32F, tensorBytes(t.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to build input blob: %w", err)
	}
	defer blob.Close()

	e.net.SetInput(blob, e.cfg.InputName)
	out := e.net.Forward(e.cfg.OutputName)
	defer out.Close()
	if out.Empty() {
		return nil, errors.New("model produced no output")
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read model output: %w", err)
	}
	emb := make(faceauth.Embedding, len(data))
	copy(emb, data)
	return emb, nil
}

func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.net.Close()
}

// tensorBytes serializes float32 values in native byte order, as Mat expects.
func tensorBytes(data []float32) []byte {
	buf := make([]byte, 4*len(data))
	for i, v := range data {
		binary.NativeEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}
