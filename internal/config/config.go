// Package config loads service settings from defaults, an optional YAML
// file, the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	flag "github.com/ogier/pflag"
	"gopkg.in/yaml.v2"

	"github.com/ayusman/handpose/internal/annotate"
	"github.com/ayusman/handpose/internal/detector"
	"github.com/ayusman/handpose/internal/gateway"
	"github.com/ayusman/handpose/internal/yolo"
)

// Defaults.
const (
	DefaultAddr      = "0.0.0.0:8000"
	DefaultModelPath = "best.onnx"
	DefaultModelName = "YOLOv8 Hand Pose Detection"
)

// Config holds all service settings.
type Config struct {
	Addr string `yaml:"addr"`

	ModelPath  string  `yaml:"model_path"`
	ModelName  string  `yaml:"model_name"`
	Backend    string  `yaml:"backend"`
	Device     string  `yaml:"device"`
	Threshold  float64 `yaml:"threshold"`
	IOU        float64 `yaml:"iou"`
	InputSize  int     `yaml:"input_size"`
	ORTLibrary string  `yaml:"ort_library"`

	// StaticDir serves the web frontend when set.
	StaticDir string `yaml:"static_dir"`
	// DBPath enables the request log when set.
	DBPath string `yaml:"db_path"`

	Debug bool `yaml:"debug"`

	Palette annotate.Palette `yaml:"palette"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:      DefaultAddr,
		ModelPath: DefaultModelPath,
		ModelName: DefaultModelName,
		Backend:   yolo.BackendOpenCV,
		Device:    string(detector.DeviceGPU),
		Threshold: gateway.DefaultThreshold,
		IOU:       yolo.DefaultIOU,
		InputSize: yolo.DefaultInputSize,
	}
}

// Load builds the configuration for a process started with args.
// getenv is usually os.LookupEnv.
func Load(args []string, getenv func(string) (string, bool)) (Config, error) {
	// First pass only finds the config file.
	scratch := Default()
	var path string
	if err := newFlagSet(&scratch, &path).Parse(args); err != nil {
		return Config{}, err
	}
	if path == "" {
		path, _ = getenv("HANDPOSE_CONFIG")
	}

	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return Config{}, err
	}

	// Flags are bound with the current values as defaults, so only flags
	// present in args change anything.
	if err := newFlagSet(&cfg, &path).Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Device = strings.ToLower(cfg.Device)
	cfg.Backend = strings.ToLower(cfg.Backend)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newFlagSet(cfg *Config, path *string) *flag.FlagSet {
	fs := flag.NewFlagSet("handpose", flag.ContinueOnError)

	fs.StringVarP(path, "config", "c", *path, "YAML configuration file")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVarP(&cfg.ModelPath, "model", "m", cfg.ModelPath, "model artifact (ONNX)")
	fs.StringVar(&cfg.ModelName, "model-name", cfg.ModelName, "model name reported by /api/model-info")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "inference backend: opencv or onnx")
	fs.StringVar(&cfg.Device, "device", cfg.Device, "inference device: cpu or gpu")
	fs.Float64Var(&cfg.Threshold, "threshold", cfg.Threshold, "minimum hand confidence")
	fs.Float64Var(&cfg.IOU, "iou", cfg.IOU, "non-maximum suppression IoU")
	fs.IntVar(&cfg.InputSize, "input-size", cfg.InputSize, "model input size in pixels")
	fs.StringVar(&cfg.ORTLibrary, "ort-lib", cfg.ORTLibrary, "path to the onnxruntime shared library")
	fs.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "web frontend directory")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite request log (disabled when empty)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "log per-request timings")

	return fs
}

// LoadFile overlays settings from a YAML file. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays settings from HANDPOSE_* variables, PORT and DEBUG.
func (c *Config) ApplyEnv(getenv func(string) (string, bool)) error {
	if v, ok := getenv("PORT"); ok && v != "" {
		c.Addr = "0.0.0.0:" + v
	}

	strs := map[string]*string{
		"HANDPOSE_ADDR":        &c.Addr,
		"HANDPOSE_MODEL_PATH":  &c.ModelPath,
		"HANDPOSE_MODEL_NAME":  &c.ModelName,
		"HANDPOSE_BACKEND":     &c.Backend,
		"HANDPOSE_DEVICE":      &c.Device,
		"HANDPOSE_ORT_LIBRARY": &c.ORTLibrary,
		"HANDPOSE_STATIC_DIR":  &c.StaticDir,
		"HANDPOSE_DB_PATH":     &c.DBPath,
	}
	for key, dst := range strs {
		if v, ok := getenv(key); ok && v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"HANDPOSE_THRESHOLD": &c.Threshold,
		"HANDPOSE_IOU":       &c.IOU,
	}
	for key, dst := range floats {
		if v, ok := getenv(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	if v, ok := getenv("HANDPOSE_INPUT_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HANDPOSE_INPUT_SIZE: %w", err)
		}
		c.InputSize = n
	}

	for _, key := range []string{"DEBUG", "HANDPOSE_DEBUG"} {
		if v, ok := getenv(key); ok && v != "" {
			c.Debug = v == "true" || v == "1"
		}
	}

	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.ModelPath == "" {
		return errors.New("model path must not be empty")
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold %v is outside (0, 1]", c.Threshold)
	}
	if c.IOU <= 0 || c.IOU > 1 {
		return fmt.Errorf("iou %v is outside (0, 1]", c.IOU)
	}
	if c.InputSize <= 0 || c.InputSize%32 != 0 {
		return fmt.Errorf("input size %d must be a positive multiple of 32", c.InputSize)
	}

	switch c.Backend {
	case yolo.BackendOpenCV, yolo.BackendONNX:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	switch detector.Device(c.Device) {
	case detector.DeviceCPU, detector.DeviceGPU:
	default:
		return fmt.Errorf("unknown device %q", c.Device)
	}

	if _, err := c.Style(); err != nil {
		return err
	}
	return nil
}

// Style returns the annotation style with the configured palette applied.
func (c Config) Style() (annotate.Style, error) {
	return annotate.DefaultStyle().WithPalette(c.Palette)
}

// LoaderOptions returns the backend options for yolo.NewLoader.
func (c Config) LoaderOptions() yolo.Options {
	return yolo.Options{
		Backend:    c.Backend,
		Device:     detector.Device(c.Device),
		InputSize:  c.InputSize,
		IOU:        c.IOU,
		ORTLibrary: c.ORTLibrary,
	}
}

// GatewayConfig returns the model gateway settings. The loader is supplied
// by the caller.
func (c Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		ModelPath: c.ModelPath,
		ModelName: c.ModelName,
		Threshold: c.Threshold,
		Device:    detector.Device(c.Device),
	}
}
