// Package onnx runs face embedding models with ONNX Runtime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kozaktomas/face-gate/internal/faceauth"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// Config selects the model and runtime library.
type Config struct {
	ModelPath      string
	RuntimeLibrary string // empty uses the platform default search path
	InputName      string // empty selects the model's first input
	OutputName     string // empty selects the model's first output
	Threads        int
}

// The runtime environment is process-wide; embedders share it.
var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(library string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if library != "" {
			ort.SetSharedLibraryPath(library)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	envRefs--
	if envRefs > 0 {
		return nil
	}
	envRefs = 0
	return ort.DestroyEnvironment()
}

// Embedder holds one loaded session and its reusable input/output tensors.
type Embedder struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	name    string
	closed  bool
}

// New loads the model once. The returned embedder must be closed.
func New(cfg Config, logger *zap.Logger) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := acquireEnvironment(cfg.RuntimeLibrary); err != nil {
		return nil, err
	}

	e, err := load(cfg)
	if err != nil {
		_ = releaseEnvironment()
		return nil, err
	}

	logger.Info("loaded onnx model",
		zap.String("path", cfg.ModelPath),
		zap.String("input", e.name),
		zap.Int64s("output_shape", []int64(e.output.GetShape())),
	)
	return e, nil
}

func load(cfg Config) (*Embedder, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", cfg.ModelPath, err)
	}
	in, err := selectInfo(inputs, cfg.InputName, "input")
	if err != nil {
		return nil, err
	}
	out, err := selectInfo(outputs, cfg.OutputName, "output")
	if err != nil {
		return nil, err
	}
	if err := checkInput(in); err != nil {
		return nil, err
	}
	outShape, err := resolveOutput(out)
	if err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](inputShape())
	if err != nil {
		return nil, fmt.Errorf("failed to allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("failed to allocate output tensor: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.Threads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.Threads); err != nil {
			input.Destroy()
			output.Destroy()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{in.Name}, []string{out.Name},
		[]ort.Value{input}, []ort.Value{output},
		opts,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Embedder{session: session, input: input, output: output, name: in.Name}, nil
}

func (e *Embedder) Name() string { return "onnx" }

// Embed copies the tensor into the session input, runs the model and returns a
// copy of the output.
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
		return nil, errors.New("onnx embedder is closed")
	}

	copy(e.input.GetData(), t.Data)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	out := e.output.GetData()
	emb := make(faceauth.Embedding, len(out))
	copy(emb, out)
	return emb, nil
}

// Close releases the session, tensors and, for the last embedder, the runtime.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	return errors.Join(
		e.session.Destroy(),
		e.input.Destroy(),
		e.output.Destroy(),
		releaseEnvironment(),
	)
}

func inputShape() ort.Shape {
	s := faceauth.TensorShape
	return ort.NewShape(int64(s[0]), int64(s[1]), int64(s[2]), int64(s[3]))
}

// selectInfo returns the named tensor, or the first one when name is empty.
func selectInfo(infos []ort.InputOutputInfo, name, kind string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, fmt.Errorf("model has no %s", kind)
	}
	if name == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, fmt.Errorf("model has no %s named %q", kind, name)
}

// checkInput verifies the model accepts (1, 112, 112, 3) float32.
// Dynamic dimensions (-1) are accepted.
func checkInput(info ort.InputOutputInfo) error {
	if info.DataType != ort.TensorElementDataTypeFloat {
		return fmt.Errorf("%w: input %q has element type %v, want float32",
			faceauth.ErrShapeMismatch, info.Name, info.DataType)
	}
	want := faceauth.TensorShape
	if len(info.Dimensions) != len(want) {
		return fmt.Errorf("%w: input %q has shape %v, want %v",
			faceauth.ErrShapeMismatch, info.Name, info.Dimensions, want)
	}
	for i, d := range info.Dimensions {
		if d != -1 && d != int64(want[i]) {
			return fmt.Errorf("%w: input %q has shape %v, want %v",
				faceauth.ErrShapeMismatch, info.Name, info.Dimensions, want)
		}
	}
	return nil
}

// resolveOutput replaces a dynamic batch dimension with 1 and rejects other
// dynamic dimensions.
func resolveOutput(info ort.InputOutputInfo) (ort.Shape, error) {
	if info.DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("output %q has element type %v, want float32", info.Name, info.DataType)
	}
	if len(info.Dimensions) == 0 {
		return nil, fmt.Errorf("output %q has no dimensions", info.Name)
	}
	shape := make(ort.Shape, len(info.Dimensions))
	for i, d := range info.Dimensions {
		switch {
		case d > 0:
			shape[i] = d
		case i == 0:
			shape[i] = 1
		default:
			return nil, fmt.Errorf("output %q has dynamic dimension %d", info.Name, i)
		}
	}
	if shape[0] != 1 {
		return nil, fmt.Errorf("output %q has batch size %d, want 1", info.Name, shape[0])
	}
	return shape, nil
}
