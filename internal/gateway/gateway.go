// Package gateway owns the process-wide handle to the hand pose model.
package gateway

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/handpose/internal/detector"
)

// DefaultThreshold is the minimum confidence for a hand to be reported.
const DefaultThreshold = 0.6

// ModelNotFoundError is returned when no candidate location holds the model artifact.
type ModelNotFoundError struct {
	Candidates []string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model file not found at %s", strings.Join(e.Candidates, " or "))
}

// InferenceError wraps a failure reported by the model while predicting.
type InferenceError struct {
	Cause error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Cause)
}

func (e *InferenceError) Unwrap() error {
	return e.Cause
}

// Loader constructs a model from a resolved artifact path.
type Loader func(path string) (detector.Model, error)

// Config holds the gateway configuration.
type Config struct {
	// ModelPath is the artifact location. Relative paths are looked up next to
	// the executable first, then in the working directory.
	ModelPath string

	// ModelName is reported by Info.
	ModelName string

	Threshold float64
	Device    detector.Device
	Loader    Loader
}

// Info is the static model metadata served by the model-info endpoint.
type Info struct {
	ModelName           string  `json:"model_name"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	Device              string  `json:"device"`
}

// Gateway lazily loads the model on first use and caches it for the
// lifetime of the process.
type Gateway struct {
	config Config

	mu    sync.Mutex
	model detector.Model
	path  string

	// executable is swapped in tests.
	executable func() (string, error)
}

// New creates a Gateway. The model is not loaded until EnsureLoaded or Infer.
func New(config Config) *Gateway {
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	if config.Device == "" {
		config.Device = detector.DeviceCPU
	}
	return &Gateway{
		config:     config,
		executable: os.Executable,
	}
}

// NewWithModel creates a Gateway around an already constructed model.
func NewWithModel(config Config, model detector.Model) *Gateway {
	g := New(config)
	g.model = model
	return g
}

// EnsureLoaded returns the cached model, loading it on the first call.
// A failed load is not cached; the next call tries again.
func (g *Gateway) EnsureLoaded() (detector.Model, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.model != nil {
		return g.model, nil
	}

	if g.config.Loader == nil {
		return nil, errors.New("no model loader configured")
	}

	path, err := g.resolve()
	if err != nil {
		return nil, err
	}

	model, err := g.config.Loader(path)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}

	g.model = model
	g.path = path
	return model, nil
}

// Infer runs the model on img with the configured threshold and device.
func (g *Gateway) Infer(img gocv.Mat) ([]detector.Result, error) {
	model, err := g.EnsureLoaded()
	if err != nil {
		return nil, err
	}

	results, err := model.Predict(img, g.config.Threshold, g.config.Device)
	if err != nil {
		return nil, &InferenceError{Cause: err}
	}
	return results, nil
}

// Info returns the static model metadata.
func (g *Gateway) Info() Info {
	return Info{
		ModelName:           g.config.ModelName,
		ConfidenceThreshold: g.config.Threshold,
		Device:              g.config.Device.Label(),
	}
}

// Path returns the resolved artifact path, or "" before the first load.
func (g *Gateway) Path() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.path
}

// Close releases the cached model, if any.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.model == nil {
		return nil
	}
	err := g.model.Close()
	g.model = nil
	return err
}

// candidates returns the locations checked for the artifact, in order.
func (g *Gateway) candidates() []string {
	p := g.config.ModelPath
	if filepath.IsAbs(p) {
		return []string{p}
	}

	var paths []string
	if execPath, err := g.executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(execPath), p))
	}
	return append(paths, p)
}

func (g *Gateway) resolve() (string, error) {
	candidates := g.candidates()
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath, nil
			}
			return path, nil
		}
	}
	return "", &ModelNotFoundError{Candidates: candidates}
}
