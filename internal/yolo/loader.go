package yolo

import (
	"fmt"

	"github.com/ayusman/handpose/internal/detector"
)

// Supported backends.
const (
	BackendOpenCV = "opencv"
	BackendONNX   = "onnx"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	Device     detector.Device
	InputSize  int
	IOU        float64
	ORTLibrary string
}

// NewLoader returns a function that constructs the configured backend for a
// resolved model path.
func NewLoader(opts Options) (func(path string) (detector.Model, error), error) {
	decoder := NewDecoder(opts.InputSize, opts.IOU)

	switch opts.Backend {
	case BackendOpenCV, "":
		return func(path string) (detector.Model, error) {
			return NewDNN(path, opts.Device, decoder)
		}, nil

	case BackendONNX:
		return func(path string) (detector.Model, error) {
			if err := InitializeRuntime(opts.ORTLibrary); err != nil {
				return nil, fmt.Errorf("initialize onnxruntime: %w", err)
			}
			return NewORT(path, opts.Device, decoder)
		}, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}
