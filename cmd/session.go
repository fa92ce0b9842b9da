package cmd

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/kozaktomas/face-gate/internal/backend"
	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/faceauth"
	"github.com/kozaktomas/face-gate/internal/gallery"
	"github.com/kozaktomas/face-gate/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// session holds what the matching commands share: configuration, logger,
// the loaded model and the gallery. The model is loaded once per process.
type session struct {
	cfg      *config.Config
	logger   *zap.Logger
	embedder faceauth.Embedder
	matcher  *faceauth.Matcher
	gallery  *gallery.Dir
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Load()

	overrides := []struct {
		flag string
		dst  *string
	}{
		{"gallery", &cfg.Gallery.Dir},
		{"backend", &cfg.Model.Backend},
		{"model", &cfg.Model.Path},
		{"log-level", &cfg.Log.Level},
		{"policy", &cfg.Match.Policy},
		{"device", &cfg.Camera.Device},
		{"indicator", &cfg.Indicator.Driver},
	}
	for _, o := range overrides {
		if changed(cmd, o.flag) {
			*o.dst = mustGetString(cmd, o.flag)
		}
	}
	cfg.Model.Backend = strings.ToLower(cfg.Model.Backend)
	cfg.Indicator.Driver = strings.ToLower(cfg.Indicator.Driver)

	if changed(cmd, "threshold") {
		cfg.Match.Threshold = mustGetFloat64(cmd, "threshold")
	}
	if changed(cmd, "headless") && mustGetBool(cmd, "headless") {
		cfg.Camera.Window = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// openSession loads configuration, logger, model and gallery.
// Callers must Close the session.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	prep, err := faceauth.NewPreprocessor(cfg.Preprocess.Interpolation)
	if err != nil {
		return nil, err
	}
	policy, err := faceauth.ParsePolicy(cfg.Match.Policy)
	if err != nil {
		return nil, err
	}

	dir, err := gallery.Open(cfg.Gallery.Dir, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := backend.Open(cfg.Model, logger)
	if err != nil {
		return nil, logging.NewOperationError("load model", "", err)
	}

	return &session{
		cfg:      cfg,
		logger:   logger,
		embedder: embedder,
		gallery:  dir,
		matcher: faceauth.NewMatcher(prep, embedder,
			faceauth.WithThreshold(cfg.Match.Threshold),
			faceauth.WithPolicy(policy),
			faceauth.WithLogger(logger),
		),
	}, nil
}

// Close releases the model and flushes the logger.
func (s *session) Close() error {
	err := s.embedder.Close()
	// Sync fails on terminals (ENOTTY/EINVAL); only the model error matters.
	_ = s.logger.Sync()
	return err
}

// readProbe decodes a probe image. Unlike gallery entries, a probe that
// cannot be decoded fails the command.
func readProbe(path string) (image.Image, error) {
	img, err := gallery.DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read probe: %w", err)
	}
	return img, nil
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
