// Package backend opens the embedding backend selected in the configuration.
package backend

import (
	"fmt"

	"github.com/kozaktomas/face-gate/internal/backend/lbph"
	"github.com/kozaktomas/face-gate/internal/backend/onnx"
	"github.com/kozaktomas/face-gate/internal/backend/opencv"
	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/faceauth"
	"go.uber.org/zap"
)

// Open loads the configured model once. Callers must Close the returned embedder.
func Open(cfg config.ModelConfig, logger *zap.Logger) (faceauth.Embedder, error) {
	switch cfg.Backend {
	case config.BackendONNX:
		e, err := onnx.New(onnx.Config{
			ModelPath:      cfg.Path,
			RuntimeLibrary: cfg.RuntimeLibrary,
			InputName:      cfg.InputName,
			OutputName:     cfg.OutputName,
			Threads:        cfg.Threads,
		}, logger)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.BackendOpenCV:
		e, err := opencv.New(opencv.Config{
			ModelPath:  cfg.Path,
			Backend:    cfg.DNNBackend,
			Target:     cfg.DNNTarget,
			InputName:  cfg.InputName,
			OutputName: cfg.OutputName,
		}, logger)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.BackendLBPH:
		return lbph.New(), nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Backend)
	}
}
