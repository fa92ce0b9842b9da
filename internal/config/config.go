package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-gate/internal/faceauth"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Embedding backends selectable with FACEGATE_MODEL_BACKEND.
const (
	BackendONNX   = "onnx"
	BackendOpenCV = "opencv"
	BackendLBPH   = "lbph"
)

// Indicator drivers selectable with FACEGATE_INDICATOR.
const (
	IndicatorGPIO = "gpio"
	IndicatorLog  = "log"
)

type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	Gallery    GalleryConfig    `yaml:"gallery"`
	Match      MatchConfig      `yaml:"match"`
	Camera     CameraConfig     `yaml:"camera"`
	Indicator  IndicatorConfig  `yaml:"indicator"`
	Log        LogConfig        `yaml:"log"`
}

type ModelConfig struct {
	Backend        string `yaml:"backend"`         // onnx, opencv or lbph
	Path           string `yaml:"path"`            // model file, unused by lbph
	RuntimeLibrary string `yaml:"runtime_library"` // onnxruntime shared library, empty for the platform default
	InputName      string `yaml:"input_name"`      // empty to use the model's first input
	OutputName     string `yaml:"output_name"`     // empty to use the model's first output
	Threads        int    `yaml:"threads"`
	DNNBackend     string `yaml:"dnn_backend"` // OpenCV DNN backend (default, openvino, cuda, ...)
	DNNTarget      string `yaml:"dnn_target"`  // OpenCV DNN target (cpu, fp16, cuda, ...)
}

type PreprocessConfig struct {
	Interpolation string `yaml:"interpolation"`
}

type GalleryConfig struct {
	Dir               string `yaml:"dir"`
	DuplicateDistance int    `yaml:"duplicate_distance"`
}

type MatchConfig struct {
	Threshold float64 `yaml:"threshold"`
	Policy    string  `yaml:"policy"`
}

type CameraConfig struct {
	Device       string  `yaml:"device"` // device index or capture URL
	Cascade      string  `yaml:"cascade"`
	Window       bool    `yaml:"window"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
}

type IndicatorConfig struct {
	Driver        string        `yaml:"driver"`
	AuthorizedPin string        `yaml:"authorized_pin"`
	DeniedPin     string        `yaml:"denied_pin"`
	Hold          time.Duration `yaml:"hold"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// envString returns the environment variable or the default when unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat parses a float environment variable, falling back on invalid input.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envBool parses a boolean environment variable (1, true, false, 0, ...).
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envDuration parses a positive duration such as "4s" or "1500ms".
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// Defaults returns the configuration embedded in the binary.
func Defaults() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return cfg
}

// Load returns the embedded defaults overridden by FACEGATE_* environment variables.
func Load() *Config {
	d := Defaults()

	return &Config{
		Model: ModelConfig{
			Backend:        strings.ToLower(envString("FACEGATE_MODEL_BACKEND", d.Model.Backend)),
			Path:           envString("FACEGATE_MODEL_PATH", d.Model.Path),
			RuntimeLibrary: envString("FACEGATE_ORT_LIBRARY", d.Model.RuntimeLibrary),
			InputName:      envString("FACEGATE_MODEL_INPUT", d.Model.InputName),
			OutputName:     envString("FACEGATE_MODEL_OUTPUT", d.Model.OutputName),
			Threads:        envInt("FACEGATE_MODEL_THREADS", d.Model.Threads),
			DNNBackend:     envString("FACEGATE_DNN_BACKEND", d.Model.DNNBackend),
			DNNTarget:      envString("FACEGATE_DNN_TARGET", d.Model.DNNTarget),
		},
		Preprocess: PreprocessConfig{
			Interpolation: envString("FACEGATE_INTERPOLATION", d.Preprocess.Interpolation),
		},
		Gallery: GalleryConfig{
			Dir:               envString("FACEGATE_GALLERY_DIR", d.Gallery.Dir),
			DuplicateDistance: envInt("FACEGATE_DUPLICATE_DISTANCE", d.Gallery.DuplicateDistance),
		},
		Match: MatchConfig{
			Threshold: envFloat("FACEGATE_THRESHOLD", d.Match.Threshold),
			Policy:    envString("FACEGATE_POLICY", d.Match.Policy),
		},
		Camera: CameraConfig{
			Device:       envString("FACEGATE_CAMERA_DEVICE", d.Camera.Device),
			Cascade:      envString("FACEGATE_CASCADE", d.Camera.Cascade),
			Window:       envBool("FACEGATE_WINDOW", d.Camera.Window),
			ScaleFactor:  d.Camera.ScaleFactor,
			MinNeighbors: d.Camera.MinNeighbors,
		},
		Indicator: IndicatorConfig{
			Driver:        strings.ToLower(envString("FACEGATE_INDICATOR", d.Indicator.Driver)),
			AuthorizedPin: envString("FACEGATE_AUTHORIZED_PIN", d.Indicator.AuthorizedPin),
			DeniedPin:     envString("FACEGATE_DENIED_PIN", d.Indicator.DeniedPin),
			Hold:          envDuration("FACEGATE_HOLD", d.Indicator.Hold),
		},
		Log: LogConfig{
			Level:       envString("FACEGATE_LOG_LEVEL", d.Log.Level),
			Development: envBool("FACEGATE_LOG_DEV", d.Log.Development),
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Model.Backend {
	case BackendONNX, BackendOpenCV:
		if c.Model.Path == "" {
			errs = append(errs, fmt.Errorf("model path is required for backend %q", c.Model.Backend))
		}
	case BackendLBPH:
	default:
		errs = append(errs, fmt.Errorf("unknown model backend %q", c.Model.Backend))
	}

	if _, err := faceauth.ParseInterpolation(c.Preprocess.Interpolation); err != nil {
		errs = append(errs, err)
	}
	if _, err := faceauth.ParsePolicy(c.Match.Policy); err != nil {
		errs = append(errs, err)
	}
	if c.Match.Threshold < -1 || c.Match.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("match threshold %v outside [-1, 1)", c.Match.Threshold))
	}
	if c.Gallery.Dir == "" {
		errs = append(errs, errors.New("gallery dir is required"))
	}

	switch c.Indicator.Driver {
	case IndicatorGPIO:
		if c.Indicator.AuthorizedPin == "" || c.Indicator.DeniedPin == "" {
			errs = append(errs, errors.New("gpio indicator needs both authorized and denied pins"))
		} else if c.Indicator.AuthorizedPin == c.Indicator.DeniedPin {
			errs = append(errs, fmt.Errorf("authorized and denied indicators share pin %s", c.Indicator.AuthorizedPin))
		}
	case IndicatorLog:
	default:
		errs = append(errs, fmt.Errorf("unknown indicator driver %q", c.Indicator.Driver))
	}
	if c.Indicator.Hold <= 0 {
		errs = append(errs, fmt.Errorf("indicator hold must be positive, got %v", c.Indicator.Hold))
	}

	return errors.Join(errs...)
}
